package live

import (
	"context"
	"strconv"
	"sync"
	"testing"
)

func TestHub_Register(t *testing.T) {
	hub := NewHub()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub.Register("session-1", "watcher-1", cancel)

	if got := hub.Count("session-1"); got != 1 {
		t.Errorf("Expected 1 watcher, got %d", got)
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub.Register("session-1", "watcher-1", cancel)
	hub.Unregister("session-1", "watcher-1")

	if got := hub.Count("session-1"); got != 0 {
		t.Errorf("Expected 0 watchers, got %d", got)
	}
	if ctx.Err() != nil {
		t.Error("Unregister should not cancel the stream")
	}
}

func TestHub_ReplaceCancelsPrevious(t *testing.T) {
	hub := NewHub()
	first, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	_, cancelSecond := context.WithCancel(context.Background())
	defer cancelSecond()

	hub.Register("session-1", "watcher-1", cancelFirst)
	hub.Register("session-1", "watcher-1", cancelSecond)

	if first.Err() == nil {
		t.Error("Expected replaced watcher to be cancelled")
	}
	if got := hub.Count("session-1"); got != 1 {
		t.Errorf("Expected 1 watcher, got %d", got)
	}
}

func TestHub_CloseCancelsAllWatchers(t *testing.T) {
	hub := NewHub()
	a, cancelA := context.WithCancel(context.Background())
	b, cancelB := context.WithCancel(context.Background())
	other, cancelOther := context.WithCancel(context.Background())
	defer cancelOther()

	hub.Register("session-1", "tab-1", cancelA)
	hub.Register("session-1", "tab-2", cancelB)
	hub.Register("session-2", "tab-1", cancelOther)

	hub.Close("session-1")

	if a.Err() == nil || b.Err() == nil {
		t.Error("Expected every watcher of session-1 to be cancelled")
	}
	if other.Err() != nil {
		t.Error("Watcher of another session should stay open")
	}
	if got := hub.Count("session-1"); got != 0 {
		t.Errorf("Expected session-1 to be removed, got %d watchers", got)
	}

	// Closing an unknown session is a no-op.
	hub.Close("missing")
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_, cancel := context.WithCancel(context.Background())
			hub.Register("session-1", "tab-"+strconv.Itoa(i), cancel)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			hub.Count("session-1")
			hub.Unregister("session-1", "tab-"+strconv.Itoa(i))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			hub.Close("session-1")
		}
	}()

	wg.Wait()
}
