package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound indicates the session does not exist in the cache.
var ErrSessionNotFound = errors.New("session not found")

// Record is the cached session payload: identity, free-form data, and
// activity bookkeeping. It is serialized as JSON in the cache backend.
type Record struct {
	ID           string         `json:"id"`
	Data         map[string]any `json:"data"`
	MessageCount int            `json:"message_count"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActive   time.Time      `json:"last_active"`
}

// Store is a namespaced session store over a Cache backend. Namespaces
// partition sessions by chat type; keys are `namespace:id`.
//
// Update is a read-modify-write merge with no per-session lock or
// version check. Concurrent updates to the same id are last-writer-wins;
// callers are expected to serialize turns per session.
type Store struct {
	cache  Cache
	logger *slog.Logger
}

// NewStore creates a session store over the given cache backend.
func NewStore(cache Cache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cache:  cache,
		logger: logger.With("component", "session_store"),
	}
}

func sessionKey(ns, id string) string {
	return ns + ":" + id
}

// Get returns the session, refreshing and persisting its last-activity
// timestamp on a hit. Returns ErrSessionNotFound on a miss.
func (s *Store) Get(ctx context.Context, ns, id string) (*Record, error) {
	rec, err := s.load(ctx, ns, id)
	if err != nil {
		return nil, err
	}

	rec.LastActive = time.Now().UTC()
	if err := s.persist(ctx, ns, rec); err != nil {
		// The read itself succeeded; a failed touch only delays reaping.
		s.logger.Warn("failed to persist activity touch",
			"namespace", ns, "session_id", id, "error", err)
	}
	return rec, nil
}

// Create seeds and persists a new session. An empty id gets a generated
// UUID. Returns the stored record.
func (s *Store) Create(ctx context.Context, ns, id string, data map[string]any) (*Record, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if data == nil {
		data = make(map[string]any)
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:         id,
		Data:       data,
		CreatedAt:  now,
		LastActive: now,
	}
	if err := s.persist(ctx, ns, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges partial into the session's data and refreshes
// last-activity. If the session is absent and createIfMissing is set, a
// new session is seeded from partial; otherwise ErrSessionNotFound.
func (s *Store) Update(ctx context.Context, ns, id string, partial map[string]any, createIfMissing bool) (*Record, error) {
	rec, err := s.load(ctx, ns, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) && createIfMissing {
			return s.Create(ctx, ns, id, partial)
		}
		return nil, err
	}

	if rec.Data == nil {
		rec.Data = make(map[string]any)
	}
	for k, v := range partial {
		rec.Data[k] = v
	}
	rec.LastActive = time.Now().UTC()

	if err := s.persist(ctx, ns, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Save persists the record as-is, refreshing last-activity. Used by
// callers that mutate fields beyond the data map, such as the message
// count.
func (s *Store) Save(ctx context.Context, ns string, rec *Record) error {
	rec.LastActive = time.Now().UTC()
	return s.persist(ctx, ns, rec)
}

// Delete removes the session entirely.
func (s *Store) Delete(ctx context.Context, ns, id string) error {
	return s.cache.Delete(ctx, sessionKey(ns, id))
}

// ClearData keeps the session identity but wipes its payload and resets
// the message count.
func (s *Store) ClearData(ctx context.Context, ns, id string) error {
	rec, err := s.load(ctx, ns, id)
	if err != nil {
		return err
	}

	rec.Data = make(map[string]any)
	rec.MessageCount = 0
	rec.LastActive = time.Now().UTC()
	return s.persist(ctx, ns, rec)
}

// ReapIdle deletes every session in the namespace whose last activity
// predates the idle threshold. Returns the number reaped. Unreadable
// records are skipped with a warning, not reaped.
func (s *Store) ReapIdle(ctx context.Context, ns string, threshold time.Duration) (int, error) {
	keys, err := s.cache.Keys(ctx, ns+":")
	if err != nil {
		return 0, fmt.Errorf("list sessions in namespace %q: %w", ns, err)
	}

	cutoff := time.Now().UTC().Add(-threshold)
	reaped := 0
	for _, key := range keys {
		raw, err := s.cache.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrCacheMiss) {
				continue
			}
			return reaped, fmt.Errorf("read session %q: %w", key, err)
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("skipping undecodable session record",
				"key", key, "error", err)
			continue
		}

		if rec.LastActive.After(cutoff) {
			continue
		}
		if err := s.cache.Delete(ctx, key); err != nil {
			return reaped, fmt.Errorf("delete session %q: %w", key, err)
		}
		reaped++
	}

	if reaped > 0 {
		s.logger.Info("reaped idle sessions",
			"namespace", ns, "reaped", reaped, "threshold", threshold)
	}
	return reaped, nil
}

func (s *Store) load(ctx context.Context, ns, id string) (*Record, error) {
	raw, err := s.cache.Get(ctx, sessionKey(ns, id))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s/%s", ErrSessionNotFound, ns, id)
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s/%s: %w", ns, id, err)
	}
	return &rec, nil
}

func (s *Store) persist(ctx context.Context, ns string, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s/%s: %w", ns, rec.ID, err)
	}
	if err := s.cache.Set(ctx, sessionKey(ns, rec.ID), raw); err != nil {
		return fmt.Errorf("write session %s/%s: %w", ns, rec.ID, err)
	}
	return nil
}
