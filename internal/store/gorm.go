// internal/store/gorm.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/idlabstudio/idlab-backend/internal/database"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, doc Document) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", doc.TableName(), err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, doc Document, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).First(doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get %s: %w", doc.TableName(), err)
	}
	return nil
}

func (s *GormStore) First(ctx context.Context, doc Document, filters Fields) error {
	query := applyFilters(s.db.WithContext(ctx), filters)
	if err := query.Order("created_at ASC").First(doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to query %s: %w", doc.TableName(), err)
	}
	return nil
}

func (s *GormStore) Find(ctx context.Context, dest interface{}, q Query) error {
	query := applyFilters(s.db.WithContext(ctx).Model(dest), q.Filters)

	if q.OrderBy != "" {
		direction := "ASC"
		if q.Desc {
			direction = "DESC"
		}
		query = query.Order(pq.QuoteIdentifier(q.OrderBy) + " " + direction)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	if err := query.Find(dest).Error; err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	return nil
}

func (s *GormStore) Count(ctx context.Context, doc Document, filters Fields) (int64, error) {
	var total int64
	query := applyFilters(s.db.WithContext(ctx).Model(doc), filters)
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", doc.TableName(), err)
	}
	return total, nil
}

func (s *GormStore) Update(ctx context.Context, doc Document, id uuid.UUID, where Fields, set Fields) error {
	query := s.db.WithContext(ctx).Model(doc).Where("id = ?", id)
	query = applyFilters(query, where)

	result := query.Updates(map[string]interface{}(set))
	if result.Error != nil {
		return fmt.Errorf("failed to update %s: %w", doc.TableName(), result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var total int64
	if err := s.db.WithContext(ctx).Table(doc.TableName()).Where("id = ?", id).Count(&total).Error; err != nil {
		return fmt.Errorf("failed to check %s: %w", doc.TableName(), err)
	}
	if total == 0 {
		return ErrNotFound
	}
	return ErrConditionFailed
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// applyFilters adds one equality condition per column. Column names are
// quoted so filters built from request parameters cannot inject SQL.
func applyFilters(query *gorm.DB, filters Fields) *gorm.DB {
	for column, value := range filters {
		if value == nil {
			query = query.Where(pq.QuoteIdentifier(column) + " IS NULL")
			continue
		}
		query = query.Where(pq.QuoteIdentifier(column)+" = ?", value)
	}
	return query
}
