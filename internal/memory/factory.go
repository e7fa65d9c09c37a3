package memory

import (
	"context"
	"strings"
)

// NewStore picks a backend: postgres when a database URL is configured,
// JSON files when a data dir is configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL, dataDir string) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	if strings.TrimSpace(dataDir) != "" {
		return NewFileStore(dataDir)
	}
	return NewInMemoryStore(), nil
}
