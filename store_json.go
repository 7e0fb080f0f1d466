package sessionviewer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cj123/watcher"
	"github.com/dimchansky/utfbom"
	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
)

const (
	indexName = "sessions-list"
	indexFile = indexName + ".json"
)

func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{
		base: dir,
	}
}

// JSONStore keeps one <id>.json document per session and the sessions-list.json index alongside
// them.
type JSONStore struct {
	base string

	mutex sync.RWMutex
}

func (rs *JSONStore) Dir() string {
	return rs.base
}

func (rs *JSONStore) encodeFile(path string, filename string, data interface{}) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	filename = filepath.Join(path, filename)

	dir := filepath.Dir(filename)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		err := os.MkdirAll(dir, 0755)

		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	f, err := os.Create(filename)

	if err != nil {
		return err
	}

	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(data)
}

func (rs *JSONStore) decodeFile(path string, filename string, out interface{}) error {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()

	filename = filepath.Join(path, filename)

	f, err := os.Open(filename)

	if err != nil {
		return err
	}

	defer f.Close()

	// session documents are often hand edited, some editors save them with a byte order mark
	return json.NewDecoder(utfbom.SkipOnly(f)).Decode(out)
}

func (rs *JSONStore) UpsertSession(s *session.Session) error {
	id, err := cleanSessionID(s.ID)

	if err != nil {
		return err
	}

	if err := rs.encodeFile(rs.base, filepath.FromSlash(id)+".json", s); err != nil {
		return errors.Wrapf(err, "could not write session %s", id)
	}

	_, err = rs.RebuildIndex()

	return err
}

func (rs *JSONStore) LoadSession(id string) (*session.Session, error) {
	id, err := cleanSessionID(id)

	if err != nil {
		return nil, err
	}

	var s *session.Session

	err = rs.decodeFile(rs.base, filepath.FromSlash(id)+".json", &s)

	if os.IsNotExist(err) {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "could not read session %s", id)
	}

	if s == nil {
		return nil, ErrSessionNotFound
	}

	s.Normalise(id)

	return s, nil
}

// ListSessionIDs finds every session document below the store directory.
func (rs *JSONStore) ListSessionIDs() ([]string, error) {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()

	files, err := zglob.Glob(filepath.Join(rs.base, "**", "*.json"))

	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	var ids []string

	for _, file := range files {
		rel, err := filepath.Rel(rs.base, file)

		if err != nil {
			continue
		}

		id := strings.TrimSuffix(filepath.ToSlash(rel), ".json")

		if id == indexName {
			continue
		}

		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

func (rs *JSONStore) DeleteSession(id string) error {
	id, err := cleanSessionID(id)

	if err != nil {
		return err
	}

	rs.mutex.Lock()
	err = os.Remove(filepath.Join(rs.base, filepath.FromSlash(id)+".json"))
	rs.mutex.Unlock()

	if os.IsNotExist(err) {
		return ErrSessionNotFound
	} else if err != nil {
		return err
	}

	_, err = rs.RebuildIndex()

	return err
}

// ListSummaries reads the session index, building it first if it does not exist yet.
func (rs *JSONStore) ListSummaries() ([]session.Summary, error) {
	var index *session.Index

	err := rs.decodeFile(rs.base, indexFile, &index)

	if os.IsNotExist(err) || (err == nil && index == nil) {
		index, err = rs.RebuildIndex()
	}

	if err != nil {
		return nil, err
	}

	return index.Sessions, nil
}

func (rs *JSONStore) RebuildIndex() (*session.Index, error) {
	index, err := buildIndex(rs)

	if err != nil {
		return nil, err
	}

	if err := rs.encodeFile(rs.base, indexFile, index); err != nil {
		return nil, errors.Wrap(err, "could not write session index")
	}

	logrus.Debugf("Wrote session index with %d sessions", len(index.Sessions))

	return index, nil
}

const watchPollInterval = time.Second

// Watch regenerates the index whenever a session document is created, changed or removed. It
// blocks until stop is closed.
func (rs *JSONStore) Watch(stop <-chan struct{}) error {
	w := watcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(watcher.Write, watcher.Create, watcher.Remove, watcher.Rename, watcher.Move)

	if err := os.MkdirAll(rs.base, 0755); err != nil {
		return err
	}

	// the index is written by RebuildIndex itself
	if err := w.Ignore(filepath.Join(rs.base, indexFile)); err != nil {
		return err
	}

	if err := w.AddRecursive(rs.base); err != nil {
		return errors.Wrapf(err, "could not watch %s", rs.base)
	}

	go func() {
		for {
			select {
			case event := <-w.Event:
				if event.IsDir() || filepath.Ext(event.Path) != ".json" {
					continue
				}

				logrus.WithField("path", event.Path).Debugf("Session file %s, regenerating index", strings.ToLower(event.Op.String()))

				if _, err := rs.RebuildIndex(); err != nil {
					logrus.WithError(err).Errorf("Could not regenerate session index")
				}
			case err := <-w.Error:
				logrus.WithError(err).Errorf("Session watcher error")
			case <-stop:
				w.Close()
				return
			case <-w.Closed:
				return
			}
		}
	}()

	return w.Start(watchPollInterval)
}
