package sessionviewer

import (
	"context"
	"testing"
	"time"

	"github.com/JustaPenguin/kart-session-viewer/pkg/when"
)

func newTestViewManager(t *testing.T) (*ViewManager, *JSONStore) {
	store := newTestJSONStore(t)

	for _, s := range defaultSessions() {
		if err := store.UpsertSession(s); err != nil {
			t.Fatal(err)
		}
	}

	vm := NewViewManager(store, ViewOptions{Scheduler: &when.Manual{}})
	t.Cleanup(vm.CloseAll)

	return vm, store
}

func TestViewManager_LoadComparisons(t *testing.T) {
	vm, _ := newTestViewManager(t)

	sessions, errs := vm.LoadComparisons(context.Background(), []string{"b,missing", "a", "b"})

	if len(sessions) != 2 || sessions[0].ID != "b" || sessions[1].ID != "a" {
		t.Errorf("expected b then a, got %d sessions", len(sessions))
	}

	if errs["missing"] != ErrSessionNotFound {
		t.Errorf("expected the missing session to be reported, got %v", errs)
	}
}

func TestViewManager_Open(t *testing.T) {
	t.Run("Primary is not compared with itself", func(t *testing.T) {
		vm, _ := newTestViewManager(t)

		view, err := vm.Open(context.Background(), "a", []string{"a", "b"}, ViewModePC)

		if err != nil {
			t.Fatal(err)
		}

		var state ViewState

		view.Do(func() { state = view.State() })

		if len(state.Comparisons) != 1 || state.Comparisons[0].ID != "b" {
			t.Errorf("unexpected comparisons: %+v", state.Comparisons)
		}

		if got, err := vm.Get(view.ID); err != nil || got != view {
			t.Errorf("expected the view to be found, got %v", err)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		vm, _ := newTestViewManager(t)

		if _, err := vm.Open(context.Background(), "missing", nil, ViewModePC); err != ErrSessionNotFound {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}

		if _, err := vm.Open(context.Background(), "broken", nil, ViewModePC); err == nil {
			t.Error("expected an error opening a session without valid laps")
		}

		if vm.Len() != 0 {
			t.Errorf("expected no open views, got %d", vm.Len())
		}
	})

	t.Run("Close", func(t *testing.T) {
		vm, _ := newTestViewManager(t)

		view, err := vm.Open(context.Background(), "a", nil, ViewModePC)

		if err != nil {
			t.Fatal(err)
		}

		if err := vm.Close(view.ID); err != nil {
			t.Fatal(err)
		}

		if err := vm.Close(view.ID); err != ErrViewNotFound {
			t.Errorf("expected ErrViewNotFound closing twice, got %v", err)
		}

		if _, err := vm.Get(view.ID); err != ErrViewNotFound {
			t.Errorf("expected ErrViewNotFound, got %v", err)
		}
	})
}

func TestViewManager_Reap(t *testing.T) {
	vm, _ := newTestViewManager(t)

	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	vm.opts.Now = func() time.Time { return now }
	vm.IdleTimeout = time.Minute

	idle, err := vm.Open(context.Background(), "a", nil, ViewModePC)

	if err != nil {
		t.Fatal(err)
	}

	watched, err := vm.Open(context.Background(), "b", nil, ViewModePC)

	if err != nil {
		t.Fatal(err)
	}

	watched.Do(watched.PageConnected)

	now = now.Add(2 * time.Minute)

	vm.Reap()

	if _, err := vm.Get(idle.ID); err != ErrViewNotFound {
		t.Error("expected the idle view to be closed")
	}

	if _, err := vm.Get(watched.ID); err != nil {
		t.Error("expected the view with a page connected to stay open")
	}
}
