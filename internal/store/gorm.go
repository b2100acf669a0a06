package store

import (
	"context"
	"fmt"

	"quacker/backend/internal/models"

	"gorm.io/gorm"
)

// insertLockKey names the postgres advisory lock held while appending
const insertLockKey int64 = 0x717561636b

// GormLog keeps messages in the SQL table "chat". Readers rely on ids
// becoming visible in order, so on postgres, where a serial id can commit
// before a smaller one, appends take a transaction-scoped advisory lock.
// SQLite already serializes writers.
type GormLog struct {
	db        *gorm.DB
	serialize bool
}

// NewGormLog migrates the chat table and returns a log over db
func NewGormLog(db *gorm.DB) (*GormLog, error) {
	if err := db.AutoMigrate(&models.Message{}); err != nil {
		return nil, fmt.Errorf("migrate chat table: %w", err)
	}
	return &GormLog{db: db, serialize: needsInsertLock(db.Dialector.Name())}, nil
}

func needsInsertLock(dialect string) bool {
	return dialect == "postgres"
}

func (l *GormLog) Range(ctx context.Context, req models.RangeRequest) ([]models.Message, error) {
	messages := []models.Message{}
	if req.Empty() {
		return messages, nil
	}

	q := l.db.WithContext(ctx).Where("id >= ?", req.From)
	if req.To != nil {
		q = q.Where("id <= ?", *req.To)
	}
	if err := q.Order("id DESC").Limit(req.Limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("query chat range: %w", err)
	}
	return messages, nil
}

func (l *GormLog) Insert(ctx context.Context, author, body string) (models.Message, error) {
	msg := models.Message{Author: author, Body: body}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if l.serialize {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", insertLockKey).Error; err != nil {
				return fmt.Errorf("lock chat appends: %w", err)
			}
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("insert chat message: %w", err)
	}
	return msg, nil
}

func (l *GormLog) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (l *GormLog) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
