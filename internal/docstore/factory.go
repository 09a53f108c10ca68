package docstore

import (
	"context"
	"log"
	"strings"
)

// NewStore picks Postgres when a database URL is configured, otherwise an
// in-memory store that lives for the process.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		log.Printf("docstore: DATABASE_URL not set, using in-memory store")
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
