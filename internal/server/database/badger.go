package database

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// maxTxnRetries bounds optimistic retries when concurrent writers touch the
// same link.
const maxTxnRetries = 1000

// BadgerRepository stores links and users in an embedded BadgerDB.
//
// Key layout:
//
//	link:{id}        JSON-encoded badgerLink
//	order:{seq}:{id} empty, iterated for insertion order
//	user:{email}     JSON-encoded User
type BadgerRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

// badgerLink carries the insertion sequence alongside the link so the order
// key can be removed on delete.
type badgerLink struct {
	Link
	Seq uint64 `json:"seq"`
}

// NewBadgerRepository opens a BadgerDB at path. An empty path opens an
// in-memory database.
func NewBadgerRepository(path string) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{slog.Default().With("component", "badgerdb")})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at %q: %w", path, err)
	}

	seq, err := db.GetSequence([]byte("seq:links"), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open link sequence: %w", err)
	}

	slog.Info("badger repository opened", "path", path, "in_memory", path == "")
	return &BadgerRepository{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database.
func (r *BadgerRepository) Close() error {
	if err := r.seq.Release(); err != nil {
		slog.Error("failed to release badger sequence", "error", err)
	}
	return r.db.Close()
}

func linkKey(id string) []byte {
	return []byte("link:" + id)
}

func orderKey(seq uint64, id string) []byte {
	key := make([]byte, 0, 6+8+1+len(id))
	key = append(key, "order:"...)
	key = binary.BigEndian.AppendUint64(key, seq)
	key = append(key, ':')
	return append(key, id...)
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}

func userIDKey(id string) []byte {
	return []byte("userid:" + id)
}

// Create inserts a new link record, assigning its ID.
func (r *BadgerRepository) Create(ctx context.Context, link *Link) error {
	seq, err := r.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate link sequence: %w", err)
	}
	link.ID = uuid.NewString()

	data, err := json.Marshal(badgerLink{Link: *link, Seq: seq})
	if err != nil {
		return fmt.Errorf("failed to encode link: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(linkKey(link.ID), data); err != nil {
			return err
		}
		return txn.Set(orderKey(seq, link.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetByID retrieves a link by its ID.
func (r *BadgerRepository) GetByID(ctx context.Context, id string) (*Link, error) {
	var rec *badgerLink
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getLink(txn, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return &rec.Link, nil
}

// List returns links in insertion order, filtered by owner email when set.
func (r *BadgerRepository) List(ctx context.Context, ownerEmail string) ([]*Link, error) {
	links := []*Link{}
	err := r.scan(func(l *Link) {
		if ownerEmail == "" || l.OwnerEmail == ownerEmail {
			links = append(links, l)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

// UpdateMetadata overwrites the mutable fields of a link.
func (r *BadgerRepository) UpdateMetadata(ctx context.Context, id string, m Metadata) error {
	err := r.retry(func(txn *badger.Txn) error {
		rec, err := getLink(txn, id)
		if err != nil {
			return err
		}
		rec.Title = m.Title
		rec.Visibility = m.Visibility
		rec.Password = m.Password
		rec.Expiration = m.Expiration
		return putLink(txn, rec)
	})
	if err != nil && !errors.Is(err, ErrLinkNotFound) {
		return fmt.Errorf("failed to update link: %w", err)
	}
	return err
}

// IncrementAccessCount bumps the view counter inside a conflict-checked
// transaction and returns the new value.
func (r *BadgerRepository) IncrementAccessCount(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.retry(func(txn *badger.Txn) error {
		rec, err := getLink(txn, id)
		if err != nil {
			return err
		}
		rec.AccessCount++
		count = rec.AccessCount
		return putLink(txn, rec)
	})
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to increment access count: %w", err)
	}
	return count, nil
}

// Delete removes a link record by ID.
func (r *BadgerRepository) Delete(ctx context.Context, id string) error {
	err := r.retry(func(txn *badger.Txn) error {
		rec, err := getLink(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(orderKey(rec.Seq, id)); err != nil {
			return err
		}
		return txn.Delete(linkKey(id))
	})
	if err != nil && !errors.Is(err, ErrLinkNotFound) {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return err
}

// GetExpiredBefore returns links whose expiration is earlier than cutoff.
func (r *BadgerRepository) GetExpiredBefore(ctx context.Context, cutoff time.Time) ([]*Link, error) {
	var links []*Link
	err := r.scan(func(l *Link) {
		if l.Expiration != nil && l.Expiration.Before(cutoff) {
			links = append(links, l)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query expired links: %w", err)
	}
	return links, nil
}

// GetStats returns aggregate server statistics.
func (r *BadgerRepository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	now := time.Now()
	err := r.scan(func(l *Link) {
		stats.TotalLinks++
		if l.Expiration == nil || l.Expiration.After(now) {
			stats.ActiveLinks++
		}
		stats.TotalViews += l.AccessCount
		stats.StorageUsed += l.Size
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// Ping reports whether the database is still open.
func (r *BadgerRepository) Ping(ctx context.Context) error {
	if r.db.IsClosed() {
		return errors.New("badger db is closed")
	}
	return nil
}

// CreateUserIfAbsent inserts the user unless the email or id is already
// taken.
func (r *BadgerRepository) CreateUserIfAbsent(ctx context.Context, user *User) (bool, error) {
	created := false
	err := r.retry(func(txn *badger.Txn) error {
		created = false
		for _, key := range [][]byte{userKey(user.Email), userIDKey(user.ID)} {
			_, err := txn.Get(key)
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if err := txn.Set(userKey(user.Email), data); err != nil {
			return err
		}
		created = true
		return txn.Set(userIDKey(user.ID), []byte(user.Email))
	})
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

// retry runs fn in a read-write transaction, re-running it when badger
// reports a conflict with a concurrent commit.
func (r *BadgerRepository) retry(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		err = r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// scan walks links in insertion order.
func (r *BadgerRepository) scan(fn func(*Link)) error {
	return r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("order:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			id := string(key[len(prefix)+9:])
			rec, err := getLink(txn, id)
			if err != nil {
				return fmt.Errorf("order index points at %s: %w", id, err)
			}
			fn(&rec.Link)
		}
		return nil
	})
}

func getLink(txn *badger.Txn, id string) (*badgerLink, error) {
	item, err := txn.Get(linkKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	rec := &badgerLink{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode link %s: %w", id, err)
	}
	return rec, nil
}

func putLink(txn *badger.Txn, rec *badgerLink) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(linkKey(rec.ID), data)
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(f, v...))
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(f, v...))
}

func (l badgerLogger) Infof(f string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(f, v...))
}

func (l badgerLogger) Debugf(f string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(f, v...))
}
