package conversation

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGetOrCreateGeneratesFreshIDs(t *testing.T) {
	store := NewStore()

	first, err := store.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := store.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if first == "" || second == "" {
		t.Fatal("expected non-empty ids")
	}
	if first == second {
		t.Fatalf("ids should be unique, both = %q", first)
	}
}

func TestGetOrCreateUnknownIDFails(t *testing.T) {
	store := NewStore()
	if _, err := store.GetOrCreate("no-such-conversation"); !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("GetOrCreate() error = %v, want ErrUnknownConversation", err)
	}
}

func TestGetOrCreateResolvesExisting(t *testing.T) {
	store := NewStore()
	id, err := store.GetOrCreate("")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	resolved, err := store.GetOrCreate(id)
	if err != nil {
		t.Fatalf("GetOrCreate(existing) error = %v", err)
	}
	if resolved != id {
		t.Fatalf("resolved = %q, want %q", resolved, id)
	}
}

func TestHistoryWindowsMostRecentOldestFirst(t *testing.T) {
	store := NewStore()
	id, _ := store.GetOrCreate("")

	for i := 0; i < 6; i++ {
		if err := store.AppendTurns(id, Turn{Role: RoleUser, Message: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("AppendTurns() error = %v", err)
		}
	}

	history, err := store.History(id, 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d", len(history))
	}
	for i, want := range []string{"m3", "m4", "m5"} {
		if history[i].Message != want {
			t.Fatalf("history[%d] = %q, want %q", i, history[i].Message, want)
		}
	}
}

func TestHistoryUnknownID(t *testing.T) {
	store := NewStore()
	if _, err := store.History("missing", 5); !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("History() error = %v, want ErrUnknownConversation", err)
	}
}

func TestAppendTurnUnknownID(t *testing.T) {
	store := NewStore()
	if err := store.AppendTurns("missing", Turn{Role: RoleUser}); !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("AppendTurns() error = %v, want ErrUnknownConversation", err)
	}
}

func TestConcurrentAppendsOnSameConversation(t *testing.T) {
	store := NewStore()
	id, _ := store.GetOrCreate("")

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_ = store.AppendTurns(id,
				Turn{Role: RoleUser, Message: fmt.Sprintf("m%d", i)},
				Turn{Role: RoleAssistant, Message: fmt.Sprintf("a%d", i)},
			)
		}(i)
	}
	wg.Wait()

	history, err := store.History(id, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != workers*2 {
		t.Fatalf("len(history) = %d, want %d", len(history), workers*2)
	}
	for i := 0; i < len(history); i += 2 {
		user, assistant := history[i], history[i+1]
		if user.Role != RoleUser || assistant.Role != RoleAssistant {
			t.Fatalf("interleaved exchange at %d: %q then %q", i, user.Message, assistant.Message)
		}
		if "a"+user.Message[1:] != assistant.Message {
			t.Fatalf("mismatched exchange at %d: %q then %q", i, user.Message, assistant.Message)
		}
		if user.CreatedAt.IsZero() || assistant.CreatedAt.IsZero() {
			t.Fatalf("partial turn appended at %d", i)
		}
	}
}

func TestConcurrentCreatesProduceUniqueIDs(t *testing.T) {
	store := NewStore()

	const workers = 64
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			id, err := store.GetOrCreate("")
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if store.Len() != workers {
		t.Fatalf("Len() = %d, want %d", store.Len(), workers)
	}
}

func TestEvictIdle(t *testing.T) {
	store := NewStore()
	stale, _ := store.GetOrCreate("")
	store.entries[stale].lastActivity = time.Now().Add(-time.Hour)
	fresh, _ := store.GetOrCreate("")

	if evicted := store.EvictIdle(time.Minute); evicted != 1 {
		t.Fatalf("EvictIdle() = %d, want 1", evicted)
	}
	if _, err := store.GetOrCreate(stale); !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("stale conversation should be gone, err = %v", err)
	}
	if _, err := store.GetOrCreate(fresh); err != nil {
		t.Fatalf("fresh conversation should survive, err = %v", err)
	}
}

func TestEvictIdleDisabled(t *testing.T) {
	store := NewStore()
	_, _ = store.GetOrCreate("")
	if evicted := store.EvictIdle(0); evicted != 0 {
		t.Fatalf("EvictIdle(0) = %d, want 0", evicted)
	}
}
