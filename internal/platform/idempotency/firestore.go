package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/rentwheel/api/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore keeps entries in the idempotencyKeys collection keyed by the SHA-256 of the key.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore binds the store to provider. An empty collection uses idempotencyKeys.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}, nil
}

type entryDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"responseStatus"`
	Headers     map[string][]string `firestore:"responseHeaders,omitempty"`
	Body        []byte              `firestore:"responseBody,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func toDocument(e Entry) entryDocument {
	return entryDocument{
		Key:         e.Key,
		Fingerprint: e.Fingerprint,
		Completed:   e.Completed,
		Status:      e.Status,
		Headers:     e.Headers,
		Body:        e.Body,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

func (d entryDocument) entry() Entry {
	return Entry{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		Completed:   d.Completed,
		Status:      d.Status,
		Headers:     d.Headers,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt.UTC(),
		ExpiresAt:   d.ExpiresAt.UTC(),
	}
}

func (s *FirestoreStore) doc(client *firestore.Client, key string) *firestore.DocumentRef {
	return client.Collection(s.collection).Doc(documentID(key))
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Entry, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, Entry{}, err
	}
	ref := s.doc(client, key)

	var (
		state State
		entry Entry
	)
	err = s.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var doc entryDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			existing := doc.entry()
			if !existing.expired(now) {
				entry = existing
				state, err = classify(existing, fingerprint)
				return err
			}
		}
		entry = newEntry(key, fingerprint, now, ttl)
		state = StateNew
		return tx.Set(ref, toDocument(entry))
	})
	if err != nil {
		if errors.Is(err, ErrKeyReused) {
			return 0, entry, err
		}
		return 0, Entry{}, pfirestore.WrapError("idempotency.reserve", err)
	}
	return state, entry, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := s.doc(client, key)

	err = s.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		created := now
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var doc entryDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != fingerprint {
				return ErrKeyReused
			}
			if !doc.CreatedAt.IsZero() {
				created = doc.CreatedAt
			}
		}
		entry := newEntry(key, fingerprint, now, ttl)
		entry.CreatedAt = created
		entry.Completed = true
		entry.Status = resp.Status
		entry.Headers = storableHeaders(resp.Headers)
		entry.Body = append([]byte(nil), resp.Body...)
		return tx.Set(ref, toDocument(entry))
	})
	if err != nil && !errors.Is(err, ErrKeyReused) {
		return pfirestore.WrapError("idempotency.complete", err)
	}
	return err
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := s.doc(client, key).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

// PurgeExpired deletes up to limit expired entries in one batch.
func (s *FirestoreStore) PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 200
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := client.Collection(s.collection).
		Where("expiresAt", "<=", now).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.purge", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	bw := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return 0, pfirestore.WrapError("idempotency.purge", err)
		}
	}
	bw.End()
	return len(docs), nil
}
