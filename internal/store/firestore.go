package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
)

// collectionName is the single Firestore collection backing both template
// and result documents; doc IDs are store keys with "/" folded to "_" so
// the flat key space ("templates/st-marys", "results/st-marys") maps onto
// valid Firestore document names.
const collectionName = "mtextract_store"

// FirestoreStore is a Firestore-backed Backend, grounded on the same
// collection-of-documents shape the project's Firestore persistence has
// always used, adapted here to hold opaque JSON payloads instead of a
// fixed church-service schema.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestore opens a Firestore client for the given GCP project.
func NewFirestore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &FirestoreStore{client: client}, nil
}

// Close releases the underlying Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type storedDocument struct {
	Payload   string    `firestore:"payload"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func docID(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}

// GetJSON retrieves and unmarshals the JSON payload stored under key.
func (s *FirestoreStore) GetJSON(key string, v interface{}) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := s.client.Collection(collectionName).Doc(docID(key)).Get(ctx)
	if err != nil {
		return false
	}

	var doc storedDocument
	if err := snap.DataTo(&doc); err != nil {
		return false
	}
	return json.Unmarshal([]byte(doc.Payload), v) == nil
}

// SetJSON marshals v and stores it under key, overwriting any prior
// document with the same key.
func (s *FirestoreStore) SetJSON(key string, v interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = s.client.Collection(collectionName).Doc(docID(key)).Set(ctx, storedDocument{
		Payload:   string(payload),
		UpdatedAt: time.Now(),
	})
	return err
}
