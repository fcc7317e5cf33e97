package memory

import (
	"context"
	"fmt"
	"sync"

	"training-ledger-service/internal/domain"
)

// ledgerUpdateRetries caps how often a lost read-modify-write race is
// re-run before surfacing domain.ErrConflict.
const ledgerUpdateRetries = 5

type ledgerDoc struct {
	ledger  domain.LearnerLedger
	version uint64
}

// LedgerStore is the in-memory implementation of app.LedgerStore. The
// transition function runs outside the lock against a snapshot; the commit
// re-checks the document version and re-runs the whole transition when a
// concurrent writer got there first, mirroring how the redis store loses a
// WATCH. Ledgers materialize on first write.
type LedgerStore struct {
	mu          sync.Mutex
	docs        map[string]*ledgerDoc
	subscribers map[string]map[chan domain.LearnerLedger]struct{}
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		docs:        make(map[string]*ledgerDoc),
		subscribers: make(map[string]map[chan domain.LearnerLedger]struct{}),
	}
}

func (s *LedgerStore) Get(_ context.Context, userID string) (domain.LearnerLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(userID), nil
}

func (s *LedgerStore) Update(ctx context.Context, userID string, fn func(domain.LearnerLedger) (domain.LearnerLedger, error)) (domain.LearnerLedger, error) {
	for attempt := 0; attempt < ledgerUpdateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.LearnerLedger{}, err
		}

		s.mu.Lock()
		current := s.snapshotLocked(userID)
		readVersion := s.versionLocked(userID)
		s.mu.Unlock()

		next, err := fn(current)
		if err != nil {
			return domain.LearnerLedger{}, err
		}

		s.mu.Lock()
		if s.versionLocked(userID) != readVersion {
			s.mu.Unlock()
			continue
		}
		doc, ok := s.docs[userID]
		if !ok {
			doc = &ledgerDoc{}
			s.docs[userID] = doc
		}
		// Time spent is owned by AddTime; keep whatever it accumulated
		// while fn ran.
		next.TotalTimeSpent = doc.ledger.TotalTimeSpent
		doc.ledger = next.Clone()
		doc.version++
		out := s.broadcastLocked(userID)
		s.mu.Unlock()
		return out, nil
	}
	return domain.LearnerLedger{}, fmt.Errorf("update for %s: %w", userID, domain.ErrConflict)
}

func (s *LedgerStore) AddTime(_ context.Context, userID string, seconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[userID]
	if !ok {
		doc = &ledgerDoc{ledger: domain.LearnerLedger{UserID: userID}}
		s.docs[userID] = doc
	}
	doc.ledger.TotalTimeSpent += seconds
	doc.version++
	s.broadcastLocked(userID)
	return nil
}

func (s *LedgerStore) Watch(_ context.Context, userID string) (<-chan domain.LearnerLedger, func(), error) {
	ch := make(chan domain.LearnerLedger, 8)

	s.mu.Lock()
	subs, ok := s.subscribers[userID]
	if !ok {
		subs = make(map[chan domain.LearnerLedger]struct{})
		s.subscribers[userID] = subs
	}
	subs[ch] = struct{}{}
	initial := s.snapshotLocked(userID)
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if subs, ok := s.subscribers[userID]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(s.subscribers, userID)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *LedgerStore) List(_ context.Context) ([]domain.LearnerLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LearnerLedger, 0, len(s.docs))
	for userID := range s.docs {
		out = append(out, s.snapshotLocked(userID))
	}
	return out, nil
}

func (s *LedgerStore) snapshotLocked(userID string) domain.LearnerLedger {
	if doc, ok := s.docs[userID]; ok {
		return doc.ledger.Clone()
	}
	return domain.LearnerLedger{UserID: userID}
}

func (s *LedgerStore) versionLocked(userID string) uint64 {
	if doc, ok := s.docs[userID]; ok {
		return doc.version
	}
	return 0
}

// broadcastLocked fans the fresh snapshot out to subscribers, replacing a
// stale buffered update rather than blocking on a slow consumer.
func (s *LedgerStore) broadcastLocked(userID string) domain.LearnerLedger {
	snapshot := s.snapshotLocked(userID)
	for ch := range s.subscribers[userID] {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
	return snapshot
}
