package sessionviewer

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/JustaPenguin/kart-session-viewer/pkg/playback"
	"github.com/JustaPenguin/kart-session-viewer/pkg/remote"
)

func writeConfig(t *testing.T, contents string) string {
	location := filepath.Join(tempDir(t), "config.yml")

	if err := ioutil.WriteFile(location, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	return location
}

func TestReadConfig(t *testing.T) {
	t.Run("Values", func(t *testing.T) {
		conf, err := ReadConfig(writeConfig(t, `
http:
  hostname: 127.0.0.1:9000
  base_url: https://karts.example.com
store:
  type: boltdb
  path: ./data
chart:
  width: 1200
playback:
  poll_interval_ms: 50
`))

		if err != nil {
			t.Fatal(err)
		}

		if conf.HTTP.Hostname != "127.0.0.1:9000" || conf.HTTP.BaseURL != "https://karts.example.com" {
			t.Errorf("unexpected http config: %+v", conf.HTTP)
		}

		if conf.Store.Type != storeTypeBoltDB || conf.Store.Path != "./data" {
			t.Errorf("unexpected store config: %+v", conf.Store)
		}

		if conf.Chart.Width != 1200 || conf.Chart.Height != defaultChartHeight {
			t.Errorf("unexpected chart config: %+v", conf.Chart)
		}

		if conf.Playback.PollInterval() != 50*time.Millisecond {
			t.Errorf("expected 50ms poll interval, got %s", conf.Playback.PollInterval())
		}

		if conf.Playback.StatsInterval() != remote.StatsInterval {
			t.Errorf("expected the default stats interval, got %s", conf.Playback.StatsInterval())
		}
	})

	t.Run("Empty file uses defaults", func(t *testing.T) {
		conf, err := ReadConfig(writeConfig(t, ""))

		if err != nil {
			t.Fatal(err)
		}

		if conf.HTTP.Hostname != defaultHostname || conf.Store.Type != storeTypeJSON || conf.Store.Path != defaultStorePath {
			t.Errorf("expected defaults, got %+v", conf)
		}

		if conf.Playback.PollInterval() != playback.DefaultPollInterval {
			t.Errorf("expected default poll interval, got %s", conf.Playback.PollInterval())
		}
	})

	t.Run("Malformed file", func(t *testing.T) {
		if _, err := ReadConfig(writeConfig(t, "http: [")); err == nil {
			t.Error("expected an error for a malformed config")
		}
	})
}

func TestStoreConfig_BuildStore(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		store, err := (&StoreConfig{Type: storeTypeJSON, Path: tempDir(t)}).BuildStore()

		if err != nil {
			t.Fatal(err)
		}

		if _, ok := store.(*JSONStore); !ok {
			t.Errorf("expected a json store, got %T", store)
		}
	})

	t.Run("boltdb in a directory", func(t *testing.T) {
		dir := tempDir(t)

		store, err := (&StoreConfig{Type: storeTypeBoltDB, Path: dir}).BuildStore()

		if err != nil {
			t.Fatal(err)
		}

		bolt, ok := store.(*BoltStore)

		if !ok {
			t.Fatalf("expected a bolt store, got %T", store)
		}

		defer bolt.Close()

		if _, err := ioutil.ReadFile(filepath.Join(dir, boltFileName)); err != nil {
			t.Errorf("expected the database to be created in the directory, got %v", err)
		}
	})

	t.Run("invalid type", func(t *testing.T) {
		if _, err := (&StoreConfig{Type: "mongo"}).BuildStore(); err == nil {
			t.Error("expected an error for an unknown store type")
		}
	})
}
