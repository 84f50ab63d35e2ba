package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finchat/finchat/internal/warehouse"
)

// ErrUnknownConversation is returned when a supplied conversation id has no
// live conversation. The caller should start a new conversation instead.
var ErrUnknownConversation = errors.New("conversation: unknown conversation id")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one request/response exchange. It is immutable once appended.
type Turn struct {
	Role      Role
	Message   string
	SQL       string
	Result    *warehouse.QueryResult
	Err       string
	Duration  time.Duration
	CreatedAt time.Time
}

type entry struct {
	// mu serializes mutation of a single conversation, so concurrent
	// requests on the same id never interleave partial turns.
	mu           sync.Mutex
	turns        []Turn
	createdAt    time.Time
	lastActivity time.Time
}

// Store holds all live conversations in memory, keyed by opaque id. Distinct
// conversations proceed fully in parallel; history is lost on restart.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: map[string]*entry{}}
}

// GetOrCreate resolves an existing conversation or, for an empty id, creates
// a fresh one with a new unique id.
func (s *Store) GetOrCreate(id string) (string, error) {
	if id == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		id = uuid.NewString()
		for s.entries[id] != nil {
			id = uuid.NewString()
		}
		now := time.Now()
		s.entries[id] = &entry{createdAt: now, lastActivity: now}
		return id, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entries[id] == nil {
		return "", ErrUnknownConversation
	}
	return id, nil
}

// AppendTurns appends completed turns as one atomic mutation. Appends on the
// same conversation are mutually exclusive; append order defines turn order,
// and a request's user/assistant pair can never interleave with another
// request's.
func (s *Store) AppendTurns(id string, turns ...Turn) error {
	s.mu.RLock()
	conv := s.entries[id]
	s.mu.RUnlock()
	if conv == nil {
		return ErrUnknownConversation
	}

	now := time.Now()
	for i := range turns {
		if turns[i].CreatedAt.IsZero() {
			turns[i].CreatedAt = now
		}
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.turns = append(conv.turns, turns...)
	conv.lastActivity = now
	return nil
}

// History returns up to maxTurns most recent turns, oldest first.
func (s *Store) History(id string, maxTurns int) ([]Turn, error) {
	s.mu.RLock()
	conv := s.entries[id]
	s.mu.RUnlock()
	if conv == nil {
		return nil, ErrUnknownConversation
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	turns := conv.turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Len reports the number of live conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EvictIdle drops conversations with no activity for at least maxIdle and
// returns how many were removed. Correctness does not depend on eviction; it
// only bounds memory for long-lived processes.
func (s *Store) EvictIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, conv := range s.entries {
		conv.mu.Lock()
		idle := conv.lastActivity.Before(cutoff)
		conv.mu.Unlock()
		if idle {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}

// StartJanitor evicts idle conversations on an interval until stop is closed.
func (s *Store) StartJanitor(maxIdle time.Duration, stop <-chan struct{}) {
	if maxIdle <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(maxIdle / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.EvictIdle(maxIdle)
			}
		}
	}()
}
