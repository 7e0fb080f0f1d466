package sessionviewer

import (
	"encoding/json"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
)

// BoltStore keeps sessions and the index in a single bolt database.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(db *bbolt.DB) *BoltStore {
	return &BoltStore{db: db}
}

var (
	sessionsBucketName = []byte("sessions")
	indexBucketName    = []byte("index")

	indexKey = []byte(indexName)
)

func (rs *BoltStore) bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	if !tx.Writable() {
		bkt := tx.Bucket(name)

		if bkt == nil {
			return nil, bbolt.ErrBucketNotFound
		}

		return bkt, nil
	}

	return tx.CreateBucketIfNotExists(name)
}

func (rs *BoltStore) encode(data interface{}) ([]byte, error) {
	return json.Marshal(data)
}

func (rs *BoltStore) decode(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

func (rs *BoltStore) UpsertSession(s *session.Session) error {
	id, err := cleanSessionID(s.ID)

	if err != nil {
		return err
	}

	err = rs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, sessionsBucketName)

		if err != nil {
			return err
		}

		encoded, err := rs.encode(s)

		if err != nil {
			return err
		}

		return bkt.Put([]byte(id), encoded)
	})

	if err != nil {
		return errors.Wrapf(err, "could not write session %s", id)
	}

	_, err = rs.RebuildIndex()

	return err
}

func (rs *BoltStore) LoadSession(id string) (*session.Session, error) {
	id, err := cleanSessionID(id)

	if err != nil {
		return nil, err
	}

	var s *session.Session

	err = rs.db.View(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, sessionsBucketName)

		if err == bbolt.ErrBucketNotFound {
			return ErrSessionNotFound
		} else if err != nil {
			return err
		}

		data := bkt.Get([]byte(id))

		if data == nil {
			return ErrSessionNotFound
		}

		return rs.decode(data, &s)
	})

	if err != nil {
		return nil, err
	}

	if s == nil {
		return nil, ErrSessionNotFound
	}

	s.Normalise(id)

	return s, nil
}

func (rs *BoltStore) ListSessionIDs() ([]string, error) {
	var ids []string

	err := rs.db.View(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, sessionsBucketName)

		if err == bbolt.ErrBucketNotFound {
			return nil
		} else if err != nil {
			return err
		}

		return bkt.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})

	return ids, err
}

func (rs *BoltStore) DeleteSession(id string) error {
	id, err := cleanSessionID(id)

	if err != nil {
		return err
	}

	err = rs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, sessionsBucketName)

		if err != nil {
			return err
		}

		if bkt.Get([]byte(id)) == nil {
			return ErrSessionNotFound
		}

		return bkt.Delete([]byte(id))
	})

	if err != nil {
		return err
	}

	_, err = rs.RebuildIndex()

	return err
}

func (rs *BoltStore) ListSummaries() ([]session.Summary, error) {
	var index *session.Index

	err := rs.db.View(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, indexBucketName)

		if err == bbolt.ErrBucketNotFound {
			return nil
		} else if err != nil {
			return err
		}

		data := bkt.Get(indexKey)

		if data == nil {
			return nil
		}

		return rs.decode(data, &index)
	})

	if err != nil {
		return nil, err
	}

	if index == nil {
		index, err = rs.RebuildIndex()

		if err != nil {
			return nil, err
		}
	}

	return index.Sessions, nil
}

func (rs *BoltStore) RebuildIndex() (*session.Index, error) {
	index, err := buildIndex(rs)

	if err != nil {
		return nil, err
	}

	err = rs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, indexBucketName)

		if err != nil {
			return err
		}

		encoded, err := rs.encode(index)

		if err != nil {
			return err
		}

		return bkt.Put(indexKey, encoded)
	})

	if err != nil {
		return nil, errors.Wrap(err, "could not write session index")
	}

	return index, nil
}

func (rs *BoltStore) Close() error {
	return rs.db.Close()
}
