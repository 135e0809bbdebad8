package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/csgstat/csgstat/pkg/types"
)

var (
	ErrEntryNotFound    = errors.New("config entry not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Database persists config entries (one per vendor login) and the refresh
// snapshots produced for them.
type Database interface {
	// Entries
	GetEntry(ctx context.Context, username string) (types.ConfigEntry, error)
	PutEntry(ctx context.Context, entry types.ConfigEntry) error
	DeleteEntry(ctx context.Context, username string) error
	ListEntries(ctx context.Context) ([]types.ConfigEntry, error)

	// Snapshots
	RecordSnapshot(ctx context.Context, username string, snap types.RefreshSnapshot) error
	GetLatestSnapshot(ctx context.Context, username string) (types.RefreshSnapshot, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "file", "Storage provider to use (available: file, firestore)")

	var p struct{ Database }

	file := configuredFile()
	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "file":
			if err := file.Validate(); err != nil {
				panic(fmt.Sprintf("file storage validation failed: %v", err))
			}
			p.Database = file
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Database = fs
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
