package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// DocumentRow stores one document of any collection as JSON.
type DocumentRow struct {
	Collection string            `gorm:"primaryKey;size:64"`
	ID         string            `gorm:"primaryKey;size:64"`
	Data       datatypes.JSONMap `gorm:"type:json"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName keeps the table name stable across model renames.
func (DocumentRow) TableName() string {
	return "documents"
}

// GormStore keeps documents in a relational database. Filters and ordering
// are evaluated in process; changes are fanned out through a ChangeFeed.
type GormStore struct {
	db      *gorm.DB
	changes *ChangeFeed
	logger  zerolog.Logger
}

// NewGormStore migrates the documents table and returns the adapter.
func NewGormStore(db *gorm.DB, changes *ChangeFeed, logger zerolog.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&DocumentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	if changes == nil {
		changes = NewChangeFeed(nil, nil, "", logger)
	}
	return &GormStore{
		db:      db,
		changes: changes,
		logger:  logger.With().Str("component", "gorm_store").Logger(),
	}, nil
}

func (s *GormStore) Query(ctx context.Context, q Query) ([]models.Document, error) {
	var rows []DocumentRow
	if err := s.db.WithContext(ctx).Where("collection = ?", q.Collection).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	docs := make([]models.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, rowDocument(row))
	}
	return Apply(q, docs), nil
}

func (s *GormStore) Get(ctx context.Context, collection, id string) (models.Document, error) {
	var row DocumentRow
	err := s.db.WithContext(ctx).Where("collection = ? AND id = ?", collection, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Document{}, ErrNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return rowDocument(row), nil
}

func (s *GormStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	row := DocumentRow{
		Collection: collection,
		ID:         uuid.NewString(),
		Data:       datatypes.JSONMap(cloneMap(data)),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	s.changes.Publish(ctx, collection)
	return row.ID, nil
}

func (s *GormStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockRow(tx, collection, id)
		if errors.Is(err, ErrNotFound) {
			return tx.Create(&DocumentRow{Collection: collection, ID: id, Data: datatypes.JSONMap(cloneMap(data))}).Error
		}
		if err != nil {
			return err
		}
		for key, value := range data {
			row.Data[key] = value
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.changes.Publish(ctx, collection)
	return nil
}

func (s *GormStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.mutate(ctx, collection, id, func(data map[string]any) {
		for path, value := range fields {
			setPath(data, path, value)
		}
	})
}

func (s *GormStore) Increment(ctx context.Context, collection, id, field string, delta int) error {
	return s.mutate(ctx, collection, id, func(data map[string]any) {
		current, _ := fieldValue(data, field)
		value, _ := toFloat(current)
		setPath(data, field, value+float64(delta))
	})
}

func (s *GormStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	return s.mutate(ctx, collection, id, func(data map[string]any) {
		current, _ := fieldValue(data, field)
		items := toList(current)
		for _, value := range values {
			if !containsValue(items, value) {
				items = append(items, value)
			}
		}
		setPath(data, field, items)
	})
}

func (s *GormStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...any) error {
	return s.mutate(ctx, collection, id, func(data map[string]any) {
		current, _ := fieldValue(data, field)
		items := toList(current)
		kept := make([]any, 0, len(items))
		for _, item := range items {
			if !containsValue(values, item) {
				kept = append(kept, item)
			}
		}
		setPath(data, field, kept)
	})
}

// Subscribe re-runs q after every change of q.Collection. Deliveries for one
// subscription are sequential and bursts of changes are coalesced.
func (s *GormStore) Subscribe(ctx context.Context, q Query, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)

	dirty := make(chan struct{}, 1)
	dirty <- struct{}{}
	remove := s.changes.Listen(q.Collection, func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-dirty:
				docs, err := s.Query(ctx, q)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onSnapshot(Snapshot{Documents: docs, ReadAt: time.Now().UTC()})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			remove()
			cancel()
			<-done
		})
	}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) mutate(ctx context.Context, collection, id string, apply func(map[string]any)) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockRow(tx, collection, id)
		if err != nil {
			return err
		}
		apply(row.Data)
		return tx.Save(&row).Error
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	s.changes.Publish(ctx, collection)
	return nil
}

func (s *GormStore) lockRow(tx *gorm.DB, collection, id string) (DocumentRow, error) {
	query := tx
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row DocumentRow
	err := query.Where("collection = ? AND id = ?", collection, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DocumentRow{}, ErrNotFound
	}
	if err != nil {
		return DocumentRow{}, err
	}
	if row.Data == nil {
		row.Data = datatypes.JSONMap{}
	}
	decodeNumbers(row.Data)
	return row, nil
}

func rowDocument(row DocumentRow) models.Document {
	data := map[string]any(row.Data)
	if data == nil {
		data = map[string]any{}
	}
	decodeNumbers(data)
	return models.Document{ID: row.ID, Data: data}
}

// decodeNumbers replaces the json.Number values left by JSONMap.Scan with
// float64, the shape every other adapter and a plain json.Unmarshal produce.
func decodeNumbers(data map[string]any) {
	for key, value := range data {
		data[key] = plainNumbers(value)
	}
}

func plainNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		decodeNumbers(v)
		return v
	case []any:
		for i, item := range v {
			v[i] = plainNumbers(item)
		}
		return v
	default:
		return value
	}
}

func toList(value any) []any {
	switch v := value.(type) {
	case []any:
		return append([]any(nil), v...)
	case []string:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, item)
		}
		return out
	default:
		return []any{}
	}
}

func cloneMap(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = value
	}
	return out
}
