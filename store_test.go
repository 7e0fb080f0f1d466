package sessionviewer

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
)

func testSession(id, driver, date string, times ...string) *session.Session {
	s := &session.Session{
		ID:          id,
		Driver:      driver,
		SessionDate: date,
		Kart:        "7",
		Track:       session.Track{Name: "Buckmore Park", Configuration: "Full"},
		VideoURL:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}

	for i, t := range times {
		s.Laps = append(s.Laps, session.Lap{Lap: i + 1, Time: t})
	}

	return s
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "kart-viewer-test")

	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		os.RemoveAll(dir)
	})

	return dir
}

func newTestJSONStore(t *testing.T) *JSONStore {
	return NewJSONStore(tempDir(t))
}

func newTestBoltStore(t *testing.T) *BoltStore {
	db, err := bbolt.Open(filepath.Join(tempDir(t), "sessions.db"), 0644, nil)

	if err != nil {
		t.Fatal(err)
	}

	store := NewBoltStore(db)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestSessionStores(t *testing.T) {
	stores := map[string]func(t *testing.T) SessionStore{
		"json": func(t *testing.T) SessionStore {
			return newTestJSONStore(t)
		},
		"boltdb": func(t *testing.T) SessionStore {
			return newTestBoltStore(t)
		},
	}

	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("Upsert and load", func(t *testing.T) {
				store := build(t)

				if err := store.UpsertSession(testSession("a", "Alice", "2023-05-01", "45.1", "44.9")); err != nil {
					t.Fatal(err)
				}

				s, err := store.LoadSession("a")

				if err != nil {
					t.Fatal(err)
				}

				if s.Driver != "Alice" || len(s.Laps) != 2 {
					t.Errorf("loaded unexpected session: %+v", s)
				}
			})

			t.Run("Missing session", func(t *testing.T) {
				store := build(t)

				if _, err := store.LoadSession("missing"); err != ErrSessionNotFound {
					t.Errorf("expected ErrSessionNotFound, got %v", err)
				}

				if err := store.DeleteSession("missing"); err != ErrSessionNotFound {
					t.Errorf("expected ErrSessionNotFound deleting, got %v", err)
				}
			})

			t.Run("Invalid ids", func(t *testing.T) {
				store := build(t)

				for _, id := range []string{"", "../secrets", "/etc/passwd", "a/../../b", "a\\b", indexName} {
					if _, err := store.LoadSession(id); err != ErrInvalidSessionID {
						t.Errorf("id %q: expected ErrInvalidSessionID, got %v", id, err)
					}
				}
			})

			t.Run("Index follows upserts and deletes", func(t *testing.T) {
				store := build(t)

				for _, s := range []*session.Session{
					testSession("old", "Alice", "2023-01-01", "46.0"),
					testSession("new", "Bob", "2023-06-01", "45.0", "44.0"),
				} {
					if err := store.UpsertSession(s); err != nil {
						t.Fatal(err)
					}
				}

				summaries, err := store.ListSummaries()

				if err != nil {
					t.Fatal(err)
				}

				if len(summaries) != 2 {
					t.Fatalf("expected 2 summaries, got %d", len(summaries))
				}

				if summaries[0].ID != "new" {
					t.Errorf("expected newest session first, got %s", summaries[0].ID)
				}

				if summaries[0].LapsCount != 2 || summaries[0].FastestLapS != 44 {
					t.Errorf("unexpected summary: %+v", summaries[0])
				}

				if err := store.DeleteSession("new"); err != nil {
					t.Fatal(err)
				}

				summaries, err = store.ListSummaries()

				if err != nil {
					t.Fatal(err)
				}

				if len(summaries) != 1 || summaries[0].ID != "old" {
					t.Errorf("expected only the old session to remain, got %+v", summaries)
				}
			})
		})
	}
}

func TestJSONStore_LoadSession(t *testing.T) {
	t.Run("Byte order mark and missing id", func(t *testing.T) {
		store := newTestJSONStore(t)

		doc := "\xef\xbb\xbf" + `{"driver": "Carol", "laps": [{"lap": 1, "time": "45.2"}]}`

		if err := ioutil.WriteFile(filepath.Join(store.Dir(), "2023-07-01-carol.json"), []byte(doc), 0644); err != nil {
			t.Fatal(err)
		}

		s, err := store.LoadSession("2023-07-01-carol")

		if err != nil {
			t.Fatal(err)
		}

		if s.ID != "2023-07-01-carol" {
			t.Errorf("expected the file name to be used as the id, got %q", s.ID)
		}

		if s.Driver != "Carol" {
			t.Errorf("expected driver Carol, got %q", s.Driver)
		}
	})

	t.Run("Nested directories", func(t *testing.T) {
		store := newTestJSONStore(t)

		if err := store.UpsertSession(testSession("2023/buckmore", "Dave", "2023-02-01", "45")); err != nil {
			t.Fatal(err)
		}

		ids, err := store.ListSessionIDs()

		if err != nil {
			t.Fatal(err)
		}

		if len(ids) != 1 || ids[0] != "2023/buckmore" {
			t.Errorf("expected the nested session to be listed, got %v", ids)
		}
	})

	t.Run("Index is rebuilt when missing", func(t *testing.T) {
		store := newTestJSONStore(t)

		if err := store.UpsertSession(testSession("a", "Alice", "2023-05-01", "45")); err != nil {
			t.Fatal(err)
		}

		if err := os.Remove(filepath.Join(store.Dir(), indexFile)); err != nil {
			t.Fatal(err)
		}

		summaries, err := store.ListSummaries()

		if err != nil {
			t.Fatal(err)
		}

		if len(summaries) != 1 {
			t.Errorf("expected 1 summary, got %d", len(summaries))
		}

		if _, err := os.Stat(filepath.Join(store.Dir(), indexFile)); err != nil {
			t.Errorf("expected the index to be written, got %v", err)
		}
	})
}
