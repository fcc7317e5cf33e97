package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"training-ledger-service/internal/domain"
)

// ledgerUpdateRetries caps WATCH/EXEC retries before domain.ErrConflict.
const ledgerUpdateRetries = 5

// LedgerStore keeps one JSON document per learner plus a sibling integer
// key for time spent:
//
//	SET    ledger:{userID}        {json, totalTimeSpent always 0}
//	INCRBY ledger:{userID}:time   {seconds}
//	PUBLISH ledger:events:{userID} {merged json}
//
// The document is written under WATCH of both keys, so Update is a true
// compare-and-swap scoped to one learner. Time lives in the sibling counter
// because concurrent session flushes must commute without entering the CAS
// loop; Get merges it back into the document view.
type LedgerStore struct {
	client *redis.Client
}

func NewLedgerStore(client *redis.Client) *LedgerStore {
	return &LedgerStore{client: client}
}

func (s *LedgerStore) Get(ctx context.Context, userID string) (domain.LearnerLedger, error) {
	ledger, err := s.read(ctx, userID, s.client)
	if err != nil {
		return domain.LearnerLedger{}, mapStoreErr(err)
	}
	return ledger, nil
}

func (s *LedgerStore) Update(ctx context.Context, userID string, fn func(domain.LearnerLedger) (domain.LearnerLedger, error)) (domain.LearnerLedger, error) {
	docKey := s.docKey(userID)
	timeKey := s.timeKey(userID)

	var updated domain.LearnerLedger
	txn := func(tx *redis.Tx) error {
		current, err := s.read(ctx, userID, tx)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		// The counter key owns time spent; the document always stores zero
		// so a later merge never double counts.
		timeSpent := next.TotalTimeSpent
		next.TotalTimeSpent = 0
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey, raw, 0)
			return nil
		})
		if err != nil {
			return err
		}
		next.TotalTimeSpent = timeSpent
		updated = next
		return nil
	}

	for attempt := 0; attempt < ledgerUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txn, docKey, timeKey)
		if err == nil {
			s.publish(ctx, userID)
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return domain.LearnerLedger{}, mapStoreErr(err)
	}
	return domain.LearnerLedger{}, fmt.Errorf("update for %s: %w", userID, domain.ErrConflict)
}

func (s *LedgerStore) AddTime(ctx context.Context, userID string, seconds int64) error {
	if err := s.client.IncrBy(ctx, s.timeKey(userID), seconds).Err(); err != nil {
		return mapStoreErr(err)
	}
	s.publish(ctx, userID)
	return nil
}

// Watch subscribes to the learner's change channel and delivers an initial
// snapshot followed by one snapshot per change. For true cross-instance
// fan-out this already rides redis pub/sub; no local registry needed.
func (s *LedgerStore) Watch(ctx context.Context, userID string) (<-chan domain.LearnerLedger, func(), error) {
	pubsub := s.client.Subscribe(ctx, s.eventsKey(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, mapStoreErr(err)
	}

	ch := make(chan domain.LearnerLedger, 8)
	initial, err := s.Get(ctx, userID)
	if err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}
	ch <- initial

	go func() {
		defer close(ch)
		for msg := range pubsub.Channel() {
			var ledger domain.LearnerLedger
			if err := json.Unmarshal([]byte(msg.Payload), &ledger); err != nil {
				continue
			}
			select {
			case ch <- ledger:
			default:
				// Drop a stale buffered snapshot rather than block.
				select {
				case <-ch:
				default:
				}
				ch <- ledger
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return ch, cancel, nil
}

func (s *LedgerStore) List(ctx context.Context) ([]domain.LearnerLedger, error) {
	var out []domain.LearnerLedger
	iter := s.client.Scan(ctx, 0, "ledger:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, ":time") {
			continue
		}
		userID := strings.TrimPrefix(key, "ledger:")
		ledger, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger)
	}
	if err := iter.Err(); err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

// read loads and merges the document and time keys through cmd, which is
// either the plain client or a WATCH transaction.
func (s *LedgerStore) read(ctx context.Context, userID string, cmd redis.Cmdable) (domain.LearnerLedger, error) {
	ledger := domain.LearnerLedger{UserID: userID}

	raw, err := cmd.Get(ctx, s.docKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.LearnerLedger{}, err
	}
	if err == nil {
		if err := json.Unmarshal([]byte(raw), &ledger); err != nil {
			return domain.LearnerLedger{}, fmt.Errorf("decode ledger %s: %w", userID, err)
		}
	}

	rawTime, err := cmd.Get(ctx, s.timeKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.LearnerLedger{}, err
	}
	if err == nil {
		if seconds, convErr := strconv.ParseInt(rawTime, 10, 64); convErr == nil {
			ledger.TotalTimeSpent = seconds
		}
	}
	return ledger, nil
}

func (s *LedgerStore) publish(ctx context.Context, userID string) {
	ledger, err := s.Get(ctx, userID)
	if err != nil {
		return
	}
	raw, err := json.Marshal(ledger)
	if err != nil {
		return
	}
	_ = s.client.Publish(ctx, s.eventsKey(userID), raw).Err()
}

func (s *LedgerStore) docKey(userID string) string {
	return "ledger:" + userID
}

func (s *LedgerStore) timeKey(userID string) string {
	return "ledger:" + userID + ":time"
}

func (s *LedgerStore) eventsKey(userID string) string {
	return "ledger:events:" + userID
}

// mapStoreErr surfaces a refused operation as the terminal permission
// error; everything else passes through for the caller to classify.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "NOPERM") || strings.HasPrefix(msg, "READONLY") || strings.HasPrefix(msg, "NOAUTH") {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	return err
}
