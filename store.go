package sessionviewer

import (
	"errors"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
)

var (
	ErrSessionNotFound  = errors.New("sessionviewer: session not found")
	ErrInvalidSessionID = errors.New("sessionviewer: invalid session id")
)

type SessionStore interface {
	// Sessions
	UpsertSession(s *session.Session) error
	LoadSession(id string) (*session.Session, error)
	ListSessionIDs() ([]string, error)
	DeleteSession(id string) error

	// Index
	ListSummaries() ([]session.Summary, error)
	RebuildIndex() (*session.Index, error)
}

// cleanSessionID rejects ids which would escape the sessions directory. Ids may contain forward
// slashes for sessions kept in subdirectories.
func cleanSessionID(id string) (string, error) {
	id = strings.TrimSuffix(strings.TrimSpace(id), ".json")

	if id == "" || strings.ContainsAny(id, "\\\x00") {
		return "", ErrInvalidSessionID
	}

	cleaned := path.Clean(id)

	if cleaned != id || path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == indexName {
		return "", ErrInvalidSessionID
	}

	return cleaned, nil
}

// buildIndex summarises every session the store can load, newest first. Sessions which fail to
// load are skipped.
func buildIndex(store SessionStore) (*session.Index, error) {
	ids, err := store.ListSessionIDs()

	if err != nil {
		return nil, err
	}

	index := &session.Index{Sessions: []session.Summary{}}

	for _, id := range ids {
		s, err := store.LoadSession(id)

		if err != nil {
			logrus.WithError(err).Warnf("Could not load session %s for the index, skipping", id)
			continue
		}

		index.Sessions = append(index.Sessions, session.Summarise(s))
	}

	session.Sort(index.Sessions, session.SortByDate)

	return index, nil
}
