package persist

import (
	"context"
	"sync"

	"chatsync/internal/domain"
)

// MemoryStore keeps the encoded snapshot in process memory. It is used when
// no store path is configured.
type MemoryStore struct {
	mu     sync.Mutex
	caches [][]byte
	drafts map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: map[string]string{}}
}

func (s *MemoryStore) Load(_ context.Context) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &domain.Snapshot{Drafts: make(map[string]string, len(s.drafts))}
	for _, body := range s.caches {
		c, err := DecodeCache(body)
		if err != nil {
			continue
		}
		snap.Caches = append(snap.Caches, c)
	}
	for k, v := range s.drafts {
		snap.Drafts[k] = v
	}
	return snap, nil
}

func (s *MemoryStore) Save(_ context.Context, snap *domain.Snapshot) error {
	caches := make([][]byte, 0, len(snap.Caches))
	for _, c := range snap.Caches {
		body, err := EncodeCache(c)
		if err != nil {
			return domain.WrapOp("MemoryStore.Save", err)
		}
		caches = append(caches, body)
	}
	drafts := make(map[string]string, len(snap.Drafts))
	for k, v := range snap.Drafts {
		drafts[k] = v
	}

	s.mu.Lock()
	s.caches = caches
	s.drafts = drafts
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ domain.SnapshotStore = (*MemoryStore)(nil)
