// internal/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrConditionFailed = errors.New("record did not match update conditions")
)

// Fields maps column names to values. A nil value in an update condition
// matches a NULL column.
type Fields map[string]interface{}

// Document is a record persisted in a named collection.
type Document interface {
	TableName() string
}

// Query selects records by column equality.
type Query struct {
	Filters Fields
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Store is the record store used by the workflow services. Implementations
// must make Update atomic with respect to its conditions.
type Store interface {
	Create(ctx context.Context, doc Document) error
	Get(ctx context.Context, doc Document, id uuid.UUID) error
	First(ctx context.Context, doc Document, filters Fields) error
	Find(ctx context.Context, dest interface{}, q Query) error
	Count(ctx context.Context, doc Document, filters Fields) (int64, error)
	// Update sets fields on the record with the given id if every column in
	// where matches. It returns ErrNotFound when the record does not exist
	// and ErrConditionFailed when it exists but a condition did not hold.
	Update(ctx context.Context, doc Document, id uuid.UUID, where Fields, set Fields) error
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}
