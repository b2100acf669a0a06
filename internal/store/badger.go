package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"quacker/backend/internal/models"
	"quacker/backend/pkg/logger"

	"github.com/dgraph-io/badger/v4"
)

var (
	messagePrefix = []byte("chat:")
	lastIDKey     = []byte("meta:last_id")
)

// BadgerLog keeps messages in an embedded Badger database. Keys are
// "chat:" followed by the big-endian id, so byte order is id order.
type BadgerLog struct {
	db  *badger.DB
	log *logger.Logger
	// serializes id assignment so concurrent inserts never conflict
	mu  sync.Mutex
	now func() time.Time
}

// OpenBadgerLog opens (or creates) a Badger directory at path
func OpenBadgerLog(path string, log *logger.Logger) (*BadgerLog, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return NewBadgerLog(db, log), nil
}

// NewBadgerLog wraps an already open database
func NewBadgerLog(db *badger.DB, log *logger.Logger) *BadgerLog {
	return &BadgerLog{db: db, log: log, now: time.Now}
}

type diskMessage struct {
	Body      string `json:"m"`
	Author    string `json:"a"`
	CreatedAt int64  `json:"t"`
}

func messageKey(id int64) []byte {
	key := make([]byte, len(messagePrefix)+8)
	copy(key, messagePrefix)
	binary.BigEndian.PutUint64(key[len(messagePrefix):], uint64(id))
	return key
}

func idFromKey(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(messagePrefix):]))
}

func (l *BadgerLog) Insert(ctx context.Context, author, body string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if l.db.IsClosed() {
		return models.Message{}, ErrClosed
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := models.Message{Author: author, Body: body, CreatedAt: l.now().Unix()}
	err := l.db.Update(func(txn *badger.Txn) error {
		var last int64
		item, err := txn.Get(lastIDKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(v []byte) error {
				last = int64(binary.BigEndian.Uint64(v))
				return nil
			}); err != nil {
				return err
			}
		}

		msg.ID = last + 1
		value, err := json.Marshal(diskMessage{Body: msg.Body, Author: msg.Author, CreatedAt: msg.CreatedAt})
		if err != nil {
			return err
		}
		if err := txn.Set(messageKey(msg.ID), value); err != nil {
			return err
		}
		next := make([]byte, 8)
		binary.BigEndian.PutUint64(next, uint64(msg.ID))
		return txn.Set(lastIDKey, next)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("insert chat message: %w", err)
	}
	return msg, nil
}

// Range walks keys backwards from the upper bound, so it touches at most
// Limit entries. A negative Limit reads the whole range.
func (l *BadgerLog) Range(ctx context.Context, req models.RangeRequest) ([]models.Message, error) {
	messages := []models.Message{}
	if req.Empty() {
		return messages, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.db.IsClosed() {
		return nil, ErrClosed
	}

	seek := append(bytes.Clone(messagePrefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	if req.To != nil {
		seek = messageKey(*req.To)
	}

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = messagePrefix
		if req.Limit > 0 {
			opts.PrefetchSize = min(req.Limit, 100)
		}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(messagePrefix); it.Next() {
			if req.Limit > 0 && len(messages) == req.Limit {
				break
			}
			item := it.Item()
			id := idFromKey(item.Key())
			if id < req.From {
				break
			}

			var dm diskMessage
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &dm)
			}); err != nil {
				return fmt.Errorf("decode message %d: %w", id, err)
			}
			messages = append(messages, models.Message{
				ID:        id,
				Body:      dm.Body,
				Author:    dm.Author,
				CreatedAt: dm.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan chat range: %w", err)
	}

	l.log.Debug("badger range", "from", req.From, "limit", req.Limit, "rows", len(messages))
	return messages, nil
}

func (l *BadgerLog) Ping(ctx context.Context) error {
	if l.db.IsClosed() {
		return ErrClosed
	}
	return l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(lastIDKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (l *BadgerLog) Close() error {
	return l.db.Close()
}
