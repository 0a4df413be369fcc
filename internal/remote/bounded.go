package remote

import "log/slog"

// BoundedClient decorates a Client with a cap on the number of files it
// downloads in one run. Once the cap is reached every further Download
// returns ErrDownloadLimit; all other operations delegate unchanged.
type BoundedClient struct {
	Client
	limit   int
	fetched int
	logger  *slog.Logger
}

// NewBoundedClient wraps client with a download cap. A limit of zero or
// less means unbounded.
func NewBoundedClient(client Client, limit int, logger *slog.Logger) *BoundedClient {
	return &BoundedClient{
		Client: client,
		limit:  limit,
		logger: logger,
	}
}

// Download fetches through the wrapped client while capacity remains
func (b *BoundedClient) Download(remotePath, localPath string) error {
	if b.limit > 0 && b.fetched >= b.limit {
		return ErrDownloadLimit
	}

	if err := b.Client.Download(remotePath, localPath); err != nil {
		return err
	}
	b.fetched++

	if b.limit > 0 && b.fetched == b.limit {
		b.logger.Info("download limit reached, further fetches are skipped", "limit", b.limit)
	}
	return nil
}

// Fetched returns the number of downloads issued so far
func (b *BoundedClient) Fetched() int {
	return b.fetched
}
