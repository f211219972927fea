// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/schema"
)

// MemoryStore keeps records in process. It is used by tests and by local
// development runs with STORE_DRIVER=memory. Column names follow the same
// naming strategy as the gorm store.
//
// Isolation is weaker than PostgreSQL. Transactions are serialized against
// each other, but reads and writes outside a transaction see its writes
// before it commits, and a rollback restores whole-record snapshots, which
// overwrites any change made to those records outside the transaction in
// the meantime. Unique indexes are not enforced. Do not use it in
// production.
type MemoryStore struct {
	mu      sync.RWMutex
	txMu    sync.Mutex
	tables  map[string]map[uuid.UUID]reflect.Value
	schemas sync.Map
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[uuid.UUID]reflect.Value),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type journal struct {
	undo []func()
}

func (s *MemoryStore) Create(ctx context.Context, doc Document) error {
	return s.create(doc, nil)
}

func (s *MemoryStore) Get(ctx context.Context, doc Document, id uuid.UUID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.tables[doc.TableName()][id]
	if !ok {
		return ErrNotFound
	}
	reflect.ValueOf(doc).Elem().Set(stored.Elem())
	return nil
}

func (s *MemoryStore) First(ctx context.Context, doc Document, filters Fields) error {
	elemType := reflect.TypeOf(doc).Elem()
	results := reflect.New(reflect.SliceOf(elemType))
	if err := s.Find(ctx, results.Interface(), Query{Filters: filters, OrderBy: "created_at", Limit: 1}); err != nil {
		return err
	}
	if results.Elem().Len() == 0 {
		return ErrNotFound
	}
	reflect.ValueOf(doc).Elem().Set(results.Elem().Index(0))
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, dest interface{}, q Query) error {
	slice := reflect.ValueOf(dest)
	if slice.Kind() != reflect.Ptr || slice.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("find destination must be a pointer to a slice, got %T", dest)
	}
	elemType := slice.Elem().Type().Elem()
	doc, ok := reflect.New(elemType).Interface().(Document)
	if !ok {
		return fmt.Errorf("%s is not a document", elemType)
	}
	sch, err := s.schemaOf(doc)
	if err != nil {
		return err
	}

	s.mu.RLock()
	var matched []reflect.Value
	for _, stored := range s.tables[doc.TableName()] {
		ok, err := matches(sch, stored, q.Filters)
		if err != nil {
			s.mu.RUnlock()
			return err
		}
		if ok {
			matched = append(matched, stored)
		}
	}
	s.mu.RUnlock()

	if q.OrderBy != "" {
		field := sch.LookUpField(q.OrderBy)
		if field == nil {
			return fmt.Errorf("unknown column %q on %s", q.OrderBy, doc.TableName())
		}
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(fieldValue(field, matched[i]), fieldValue(field, matched[j]))
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := reflect.MakeSlice(slice.Elem().Type(), 0, len(matched))
	for _, stored := range matched {
		out = reflect.Append(out, stored.Elem())
	}
	slice.Elem().Set(out)
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, doc Document, filters Fields) (int64, error) {
	sch, err := s.schemaOf(doc)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, stored := range s.tables[doc.TableName()] {
		ok, err := matches(sch, stored, filters)
		if err != nil {
			return 0, err
		}
		if ok {
			total++
		}
	}
	return total, nil
}

func (s *MemoryStore) Update(ctx context.Context, doc Document, id uuid.UUID, where Fields, set Fields) error {
	return s.update(doc, id, where, set, nil)
}

// Transaction runs fn with writes journaled so that they can be undone if fn
// fails. Transactions are serialized against each other only; see
// MemoryStore for what non-transactional callers observe.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memoryTx{store: s, journal: &journal{}}
	if err := fn(tx); err != nil {
		s.rollback(tx.journal)
		return err
	}
	return nil
}

func (s *MemoryStore) rollback(j *journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
}

func (s *MemoryStore) create(doc Document, j *journal) error {
	sch, err := s.schemaOf(doc)
	if err != nil {
		return err
	}

	rv := reflect.ValueOf(doc)
	idField := sch.LookUpField("id")
	if idField == nil {
		return fmt.Errorf("%s has no id column", doc.TableName())
	}
	id, ok := fieldValue(idField, rv).(uuid.UUID)
	if !ok {
		return fmt.Errorf("%s id is not a uuid", doc.TableName())
	}
	if id == uuid.Nil {
		id = uuid.New()
		if err := assign(idField.ReflectValueOf(context.Background(), rv.Elem()), id); err != nil {
			return err
		}
	}

	now := s.now()
	for _, column := range []string{"created_at", "updated_at"} {
		if field := sch.LookUpField(column); field != nil {
			if t, ok := fieldValue(field, rv).(time.Time); ok && t.IsZero() {
				if err := assign(field.ReflectValueOf(context.Background(), rv.Elem()), now); err != nil {
					return err
				}
			}
		}
	}

	stored := reflect.New(rv.Elem().Type())
	stored.Elem().Set(rv.Elem())

	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.tables[doc.TableName()]
	if table == nil {
		table = make(map[uuid.UUID]reflect.Value)
		s.tables[doc.TableName()] = table
	}
	if _, exists := table[id]; exists {
		return fmt.Errorf("failed to create %s: duplicate id %s", doc.TableName(), id)
	}
	table[id] = stored

	if j != nil {
		j.undo = append(j.undo, func() { delete(table, id) })
	}
	return nil
}

func (s *MemoryStore) update(doc Document, id uuid.UUID, where, set Fields, j *journal) error {
	sch, err := s.schemaOf(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.tables[doc.TableName()]
	stored, ok := table[id]
	if !ok {
		return ErrNotFound
	}

	ok, err = matches(sch, stored, where)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConditionFailed
	}

	updated := reflect.New(stored.Elem().Type())
	updated.Elem().Set(stored.Elem())
	for column, value := range set {
		field := sch.LookUpField(column)
		if field == nil {
			return fmt.Errorf("unknown column %q on %s", column, doc.TableName())
		}
		if err := assign(field.ReflectValueOf(context.Background(), updated.Elem()), value); err != nil {
			return fmt.Errorf("failed to set %s.%s: %w", doc.TableName(), column, err)
		}
	}
	if _, explicit := set["updated_at"]; !explicit {
		if field := sch.LookUpField("updated_at"); field != nil {
			_ = assign(field.ReflectValueOf(context.Background(), updated.Elem()), s.now())
		}
	}

	table[id] = updated
	if j != nil {
		j.undo = append(j.undo, func() { table[id] = stored })
	}
	return nil
}

func (s *MemoryStore) schemaOf(doc Document) (*schema.Schema, error) {
	sch, err := schema.Parse(doc, &s.schemas, schema.NamingStrategy{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s schema: %w", doc.TableName(), err)
	}
	return sch, nil
}

type memoryTx struct {
	store   *MemoryStore
	journal *journal
}

func (tx *memoryTx) Create(ctx context.Context, doc Document) error {
	return tx.store.create(doc, tx.journal)
}

func (tx *memoryTx) Get(ctx context.Context, doc Document, id uuid.UUID) error {
	return tx.store.Get(ctx, doc, id)
}

func (tx *memoryTx) First(ctx context.Context, doc Document, filters Fields) error {
	return tx.store.First(ctx, doc, filters)
}

func (tx *memoryTx) Find(ctx context.Context, dest interface{}, q Query) error {
	return tx.store.Find(ctx, dest, q)
}

func (tx *memoryTx) Count(ctx context.Context, doc Document, filters Fields) (int64, error) {
	return tx.store.Count(ctx, doc, filters)
}

func (tx *memoryTx) Update(ctx context.Context, doc Document, id uuid.UUID, where, set Fields) error {
	return tx.store.update(doc, id, where, set, tx.journal)
}

// Transaction flattens nested transactions into the outer one.
func (tx *memoryTx) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(tx)
}

func matches(sch *schema.Schema, stored reflect.Value, filters Fields) (bool, error) {
	for column, want := range filters {
		field := sch.LookUpField(column)
		if field == nil {
			return false, fmt.Errorf("unknown column %q on %s", column, sch.Table)
		}
		if !valuesEqual(fieldValue(field, stored), want) {
			return false, nil
		}
	}
	return true, nil
}

func fieldValue(field *schema.Field, ptr reflect.Value) interface{} {
	return field.ReflectValueOf(context.Background(), reflect.Indirect(ptr)).Interface()
}

// assign stores v into dst, converting between named and underlying types
// and wrapping into a pointer when dst is one.
func assign(dst reflect.Value, v interface{}) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	src := reflect.ValueOf(v)
	if src.Kind() == reflect.Ptr {
		if src.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		if !src.Type().AssignableTo(dst.Type()) {
			src = src.Elem()
		}
	}

	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case dst.Kind() == reflect.Ptr && src.Type().AssignableTo(dst.Type().Elem()):
		p := reflect.New(dst.Type().Elem())
		p.Elem().Set(src)
		dst.Set(p)
	case dst.Kind() == reflect.Ptr && src.Type().ConvertibleTo(dst.Type().Elem()):
		p := reflect.New(dst.Type().Elem())
		p.Elem().Set(src.Convert(dst.Type().Elem()))
		dst.Set(p)
	case src.Type().ConvertibleTo(dst.Type()) && src.Kind() == dst.Kind():
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
	}
	return nil
}

func valuesEqual(actual, want interface{}) bool {
	a := deref(reflect.ValueOf(actual))
	w := deref(reflect.ValueOf(want))

	if !a.IsValid() || !w.IsValid() {
		return !a.IsValid() && !w.IsValid()
	}

	if at, ok := a.Interface().(time.Time); ok {
		wt, ok := w.Interface().(time.Time)
		return ok && at.Equal(wt)
	}

	switch a.Kind() {
	case reflect.String:
		return w.Kind() == reflect.String && a.String() == w.String()
	case reflect.Bool:
		return w.Kind() == reflect.Bool && a.Bool() == w.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch w.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return a.Int() == w.Int()
		case reflect.Float32, reflect.Float64:
			return float64(a.Int()) == w.Float()
		}
		return false
	case reflect.Float32, reflect.Float64:
		switch w.Kind() {
		case reflect.Float32, reflect.Float64:
			return a.Float() == w.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return a.Float() == float64(w.Int())
		}
		return false
	}

	if w.Type().ConvertibleTo(a.Type()) {
		return reflect.DeepEqual(a.Interface(), w.Convert(a.Type()).Interface())
	}
	return false
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// compareValues orders nil before any value.
func compareValues(a, b interface{}) int {
	av := deref(reflect.ValueOf(a))
	bv := deref(reflect.ValueOf(b))
	switch {
	case !av.IsValid() && !bv.IsValid():
		return 0
	case !av.IsValid():
		return -1
	case !bv.IsValid():
		return 1
	}

	if at, ok := av.Interface().(time.Time); ok {
		bt, _ := bv.Interface().(time.Time)
		return at.Compare(bt)
	}

	switch av.Kind() {
	case reflect.String:
		return strings.Compare(av.String(), bv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return compareOrdered(av.Int(), bv.Int())
	case reflect.Float32, reflect.Float64:
		return compareOrdered(av.Float(), bv.Float())
	case reflect.Bool:
		return compareOrdered(boolRank(av.Bool()), boolRank(bv.Bool()))
	}
	return strings.Compare(fmt.Sprint(av.Interface()), fmt.Sprint(bv.Interface()))
}

func compareOrdered[T int64 | float64 | int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
