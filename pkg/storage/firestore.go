package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/csgstat/csgstat/pkg/log"
	"github.com/csgstat/csgstat/pkg/types"
)

// FirestoreProvider implements Database using Google Cloud Firestore. Entries
// live in the "logins" collection keyed by username; each login document has
// a "snapshots" subcollection keyed by the snapshot's RFC3339 timestamp.
// Documents store their payload as a json string for portability.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// allow empty project id, the client can infer it
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) loginDoc(username string) (*firestore.DocumentRef, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	return f.client.Collection("logins").Doc(username), nil
}

func decodeJSONField(doc *firestore.DocumentSnapshot, dest any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("'json' field is not a string")
	}
	if err := json.Unmarshal([]byte(jsonStr), dest); err != nil {
		return fmt.Errorf("failed to unmarshal 'json' field: %w", err)
	}
	return nil
}

func (f *FirestoreProvider) GetEntry(ctx context.Context, username string) (types.ConfigEntry, error) {
	ref, err := f.loginDoc(username)
	if err != nil {
		return types.ConfigEntry{}, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.ConfigEntry{}, ErrEntryNotFound
		}
		return types.ConfigEntry{}, fmt.Errorf("failed to fetch login doc: %w", err)
	}
	var entry types.ConfigEntry
	if err := decodeJSONField(doc, &entry); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "bad login doc", slog.String("username", username), slog.Any("err", err))
		return types.ConfigEntry{}, err
	}
	return entry, nil
}

func (f *FirestoreProvider) PutEntry(ctx context.Context, entry types.ConfigEntry) error {
	ref, err := f.loginDoc(entry.Username)
	if err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"updatedAt": time.UnixMilli(entry.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to save login doc: %w", err)
	}
	return nil
}

func (f *FirestoreProvider) DeleteEntry(ctx context.Context, username string) error {
	ref, err := f.loginDoc(username)
	if err != nil {
		return err
	}
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrEntryNotFound
		}
		return fmt.Errorf("failed to fetch login doc: %w", err)
	}
	// snapshots are left to expire; deleting a subcollection requires
	// iterating every document and entries are rarely removed
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete login doc: %w", err)
	}
	return nil
}

func (f *FirestoreProvider) ListEntries(ctx context.Context) ([]types.ConfigEntry, error) {
	iter := f.client.Collection("logins").Documents(ctx)
	defer iter.Stop()

	var entries []types.ConfigEntry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate login docs: %w", err)
		}
		var entry types.ConfigEntry
		if err := decodeJSONField(doc, &entry); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping bad login doc", slog.String("doc", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (f *FirestoreProvider) RecordSnapshot(ctx context.Context, username string, snap types.RefreshSnapshot) error {
	ref, err := f.loginDoc(username)
	if err != nil {
		return err
	}
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	docID := snap.TakenAt.UTC().Format(time.RFC3339)
	_, err = ref.Collection("snapshots").Doc(docID).Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"takenAt": snap.TakenAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot doc: %w", err)
	}
	return nil
}

func (f *FirestoreProvider) GetLatestSnapshot(ctx context.Context, username string) (types.RefreshSnapshot, error) {
	ref, err := f.loginDoc(username)
	if err != nil {
		return types.RefreshSnapshot{}, err
	}
	iter := ref.Collection("snapshots").
		OrderBy("takenAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.RefreshSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return types.RefreshSnapshot{}, fmt.Errorf("failed to query snapshots: %w", err)
	}
	var snap types.RefreshSnapshot
	if err := decodeJSONField(doc, &snap); err != nil {
		return types.RefreshSnapshot{}, err
	}
	return snap, nil
}
