package video_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JustaPenguin/kart-session-viewer/pkg/video"
	"github.com/JustaPenguin/kart-session-viewer/pkg/video/videotest"
)

func url(n int) string {
	return fmt.Sprintf("https://youtu.be/kartvid%04d", n)
}

func newRegistry() (*video.Registry, *videotest.Factory, *[]video.Event) {
	var events []video.Event

	factory := &videotest.Factory{Ready: true}
	registry := video.NewRegistry(factory, func(e video.Event) {
		events = append(events, e)
	})

	return registry, factory, &events
}

// checkAudio verifies that exactly one mounted video is unmuted.
func checkAudio(t *testing.T, registry *video.Registry, factory *videotest.Factory) {
	t.Helper()

	unmuted := 0

	for _, id := range registry.Mounted() {
		if !factory.Surfaces[id].IsMuted() {
			unmuted++

			if id != registry.AudioOwner() {
				t.Errorf("session %s is unmuted but %s owns the audio", id, registry.AudioOwner())
			}
		}
	}

	if len(registry.Mounted()) > 0 && unmuted != 1 {
		t.Errorf("expected exactly one unmuted video, got %d", unmuted)
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Run("Invalid URL", func(t *testing.T) {
		registry, factory, _ := newRegistry()

		if registry.Register("a", "not a video", 0, "A") {
			t.Error("expected registration to fail")
		}

		if _, ok := registry.Config("a"); ok || len(factory.Created) != 0 {
			t.Error("nothing should be stored for a failed registration")
		}
	})

	t.Run("Fifth registration evicts the oldest", func(t *testing.T) {
		registry, _, _ := newRegistry()

		for i := 1; i <= 5; i++ {
			if !registry.Register(fmt.Sprint(i), url(i), 0, "") {
				t.Fatalf("could not register %d", i)
			}
		}

		active := registry.Active()

		if fmt.Sprint(active) != "[2 3 4 5]" {
			t.Errorf("unexpected active set: %v", active)
		}

		// the default dual layout mounts the first two
		if fmt.Sprint(registry.Mounted()) != "[2 3]" {
			t.Errorf("unexpected mounted set: %v", registry.Mounted())
		}
	})

	t.Run("Pinned video is not evicted", func(t *testing.T) {
		registry, _, _ := newRegistry()
		registry.Pin("1")

		for i := 1; i <= 6; i++ {
			registry.Register(fmt.Sprint(i), url(i), 0, "")
		}

		if active := registry.Active(); fmt.Sprint(active) != "[1 4 5 6]" {
			t.Errorf("unexpected active set: %v", active)
		}

		if fmt.Sprint(registry.Mounted()) != "[1 4]" {
			t.Errorf("expected the pinned video to stay mounted, got %v", registry.Mounted())
		}
	})

	t.Run("Re-registering does not duplicate", func(t *testing.T) {
		registry, _, _ := newRegistry()

		registry.Register("a", url(1), 0, "")
		registry.Register("a", url(2), 5, "")

		if len(registry.Active()) != 1 {
			t.Error("expected a single active entry")
		}

		if config, _ := registry.Config("a"); config.StartTime != 5 || config.VideoID != "kartvid0002" {
			t.Errorf("expected config to be replaced, got %+v", config)
		}
	})
}

func TestRegistry_Render(t *testing.T) {
	registry, factory, _ := newRegistry()

	registry.Register("a", url(1), 0, "")
	registry.Register("b", url(2), 0, "")
	first := factory.Surfaces["a"]

	if err := registry.SetLayout(video.LayoutSingle); err != nil {
		t.Fatal(err)
	}

	if fmt.Sprint(registry.Mounted()) != "[a]" {
		t.Errorf("single layout should mount one video, got %v", registry.Mounted())
	}

	if !factory.Surfaces["b"].Destroyed {
		t.Error("dropped video should be destroyed")
	}

	registry.SetLayout(video.LayoutGrid)

	if factory.Surfaces["a"] != first || first.Destroyed {
		t.Error("video which stayed mounted should keep its player")
	}

	if len(factory.Created) != 3 {
		t.Errorf("expected b to be recreated, created: %v", factory.Created)
	}

	if err := registry.SetLayout("mosaic"); err != video.ErrUnknownLayout {
		t.Errorf("expected unknown layout error, got %v", err)
	}

	checkAudio(t, registry, factory)
}

func TestRegistry_MountedBound(t *testing.T) {
	layouts := map[video.Layout]int{
		video.LayoutSingle:   1,
		video.LayoutDual:     2,
		video.LayoutPiP:      2,
		video.LayoutMainSide: 3,
		video.LayoutGrid:     4,
	}

	for layout, capacity := range layouts {
		registry, _, _ := newRegistry()
		registry.SetLayout(layout)

		for i := 0; i < 6; i++ {
			registry.Register(fmt.Sprint(i), url(i), 0, "")

			if len(registry.Mounted()) > capacity || len(registry.Mounted()) > len(registry.Active()) {
				t.Errorf("%s: %d mounted with capacity %d", layout, len(registry.Mounted()), capacity)
			}
		}
	}
}

func TestRegistry_Audio(t *testing.T) {
	registry, factory, _ := newRegistry()
	registry.SetLayout(video.LayoutGrid)

	registry.Register("a", url(1), 0, "")
	registry.Register("b", url(2), 0, "")
	registry.Register("c", url(3), 0, "")

	if registry.AudioOwner() != "a" {
		t.Errorf("audio should default to the first video, got %s", registry.AudioOwner())
	}

	checkAudio(t, registry, factory)

	if err := registry.SetAudio("c"); err != nil {
		t.Fatal(err)
	}

	checkAudio(t, registry, factory)

	if !factory.Surfaces["a"].IsMuted() {
		t.Error("previous owner should be muted")
	}

	registry.ToggleActive("c", false)

	if registry.AudioOwner() != "a" {
		t.Errorf("audio should move to the first mounted video, got %s", registry.AudioOwner())
	}

	checkAudio(t, registry, factory)

	if err := registry.SetAudio("c"); err != video.ErrNotMounted {
		t.Errorf("expected ErrNotMounted, got %v", err)
	}

	t.Run("Applied once ready", func(t *testing.T) {
		factory := &videotest.Factory{}
		registry := video.NewRegistry(factory, nil)

		registry.Register("a", url(1), 0, "")
		registry.Register("b", url(2), 0, "")

		for _, s := range factory.Surfaces {
			s.Ready = true
		}

		registry.HandleReady("b")

		checkAudio(t, registry, factory)
	})
}

func TestRegistry_Swap(t *testing.T) {
	registry, _, _ := newRegistry()

	registry.Register("a", url(1), 0, "")
	registry.Register("b", url(2), 0, "")

	if armed, swapped := registry.SelectForSwap("a"); armed != "a" || swapped {
		t.Error("first selection should arm")
	}

	if armed, _ := registry.SelectForSwap("a"); armed != "" {
		t.Error("selecting the armed video again should disarm")
	}

	registry.SelectForSwap("a")

	if _, swapped := registry.SelectForSwap("b"); !swapped {
		t.Error("second selection should swap")
	}

	if fmt.Sprint(registry.Active()) != "[b a]" {
		t.Errorf("unexpected order after swap: %v", registry.Active())
	}

	if registry.SwapArmed() != "" {
		t.Error("swap should disarm")
	}
}

func TestRegistry_SwapDisarmedOnDeactivate(t *testing.T) {
	registry, _, _ := newRegistry()

	registry.Register("a", url(1), 0, "")
	registry.Register("b", url(2), 0, "")
	registry.SelectForSwap("b")

	if err := registry.ToggleActive("b", false); err != nil {
		t.Fatal(err)
	}

	if registry.SwapArmed() != "" {
		t.Errorf("expected the swap to be disarmed, got %q", registry.SwapArmed())
	}

	if _, swapped := registry.SelectForSwap("a"); swapped {
		t.Error("a deactivated video should not be swapped in")
	}
}

func TestRegistry_CreateFailure(t *testing.T) {
	registry, factory, events := newRegistry()
	factory.Fail = map[string]error{"b": errors.New("no player")}

	registry.Register("a", url(1), 0, "")
	registry.Register("b", url(2), 0, "")

	if fmt.Sprint(registry.Mounted()) != "[a]" {
		t.Errorf("failed player should not be mounted, got %v", registry.Mounted())
	}

	if len(*events) != 1 || (*events)[0].Type != video.EventError || (*events)[0].SessionID != "b" {
		t.Errorf("expected an error event for b, got %+v", *events)
	}
}

func TestRegistry_Remove(t *testing.T) {
	registry, factory, _ := newRegistry()

	registry.Register("a", url(1), 0, "")
	registry.Register("b", url(2), 0, "")
	registry.Remove("b")

	if _, ok := registry.Config("b"); ok || !factory.Surfaces["b"].Destroyed {
		t.Error("removed video should be forgotten and destroyed")
	}

	if err := registry.ToggleActive("b", true); err != video.ErrNotRegistered {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}

	registry.Close()

	if len(registry.Mounted()) != 0 || !factory.Surfaces["a"].Destroyed {
		t.Error("close should destroy every player")
	}
}
