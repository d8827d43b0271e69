package analysis

import (
	"sync"
	"testing"
	"time"
)

func storedSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		UserID:     "u1",
		Language:   "en",
		StartTime:  now,
		LastUpdate: now,
	}
}

func TestStorePutGetCount(t *testing.T) {
	store := NewSessionStore()
	if store.Count() != 0 {
		t.Fatalf("fresh store count = %d", store.Count())
	}

	store.Put(storedSession("a"))
	store.Put(storedSession("b"))

	if store.Count() != 2 {
		t.Errorf("count = %d, want 2", store.Count())
	}
	if _, ok := store.Get("a"); !ok {
		t.Error("expected session a")
	}
	if _, ok := store.Get("missing"); ok {
		t.Error("unexpected hit for missing id")
	}
}

func TestStoreDeleteOnce(t *testing.T) {
	store := NewSessionStore()
	store.Put(storedSession("a"))

	if _, ok := store.Delete("a"); !ok {
		t.Fatal("first delete must succeed")
	}
	if _, ok := store.Delete("a"); ok {
		t.Error("second delete must report miss")
	}
	if store.Count() != 0 {
		t.Errorf("count after delete = %d", store.Count())
	}
}

func TestStoreUpdateAfterDeleteDropped(t *testing.T) {
	store := NewSessionStore()
	store.Put(storedSession("a"))
	store.Delete("a")

	ran := false
	if store.Update("a", func(*Session) { ran = true }) {
		t.Error("update on deleted session must report false")
	}
	if ran {
		t.Error("update function must not run for a deleted session")
	}
}

func TestStoreConcurrentUpdates(t *testing.T) {
	store := NewSessionStore()
	store.Put(storedSession("a"))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Update("a", func(s *Session) {
				s.TotalWords++
			})
		}()
	}
	wg.Wait()

	session, _ := store.Get("a")
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.TotalWords != n {
		t.Errorf("total words = %d, want %d", session.TotalWords, n)
	}
}
