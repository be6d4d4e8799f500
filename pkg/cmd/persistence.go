package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vesselhq/vessel/pkg/persistence"
	"github.com/vesselhq/vessel/pkg/persistence/file"
	"github.com/vesselhq/vessel/pkg/persistence/postgresql"
)

// NewPersistence picks the storage backend from the database URL scheme:
// postgres:// and postgresql:// get the SQL backend, anything else is
// treated as a directory for the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		root := strings.TrimPrefix(databaseURL, "file://")

		return file.NewPersistence(root), nil
	}
}
