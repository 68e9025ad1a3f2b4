package database

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/query"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

type Pagination struct {
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Aggregation holds count plus per-field numeric summaries.
type Aggregation struct {
	Count int64              `json:"count"`
	Sum   map[string]float64 `json:"sum"`
	Avg   map[string]float64 `json:"avg"`
	Min   map[string]float64 `json:"min"`
	Max   map[string]float64 `json:"max"`
}

// Repository binds generic CRUD verbs to one model.
type Repository[T any] struct {
	db     *gorm.DB
	entity string
	inTx   bool
}

func NewRepository[T any](db *gorm.DB, entity string) *Repository[T] {
	return &Repository[T]{db: db, entity: entity}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *Repository[T]) WithTx(tx *gorm.DB) *Repository[T] {
	return &Repository[T]{db: tx, entity: r.entity, inTx: true}
}

func (r *Repository[T]) DB() *gorm.DB {
	return r.db
}

func (r *Repository[T]) Entity() string {
	return r.entity
}

// Schema returns the parsed gorm schema of T.
func (r *Repository[T]) Schema() (*schema.Schema, error) {
	return query.Schema(r.db, new(T))
}

func (r *Repository[T]) Transaction(ctx context.Context, fn func(tx *Repository[T]) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// FindAll returns one page of rows matching q. Outside a transaction the
// data and count queries run concurrently.
func (r *Repository[T]) FindAll(ctx context.Context, q query.Query) (*Page[T], error) {
	var (
		rows  []T
		total int64
	)

	find := func(ctx context.Context) error {
		tx, err := query.Apply(r.db.WithContext(ctx), new(T), q)
		if err != nil {
			return err
		}
		return tx.Find(&rows).Error
	}
	count := func(ctx context.Context) error {
		tx, err := query.Filter(r.db.WithContext(ctx), new(T), q.Where)
		if err != nil {
			return err
		}
		return tx.Count(&total).Error
	}

	if r.inTx {
		if err := find(ctx); err != nil {
			return nil, r.fail(err)
		}
		if err := count(ctx); err != nil {
			return nil, r.fail(err)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return find(gctx) })
		g.Go(func() error { return count(gctx) })
		if err := g.Wait(); err != nil {
			return nil, r.fail(err)
		}
	}

	if rows == nil {
		rows = []T{}
	}
	limit := q.Take
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	return &Page[T]{
		Data: rows,
		Pagination: Pagination{
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
			Page:  q.Skip/limit + 1,
			Limit: limit,
		},
	}, nil
}

func (r *Repository[T]) FindOne(ctx context.Context, where query.Tree, include map[string]any) (*T, error) {
	tx, err := query.Apply(r.db.WithContext(ctx), new(T), query.Query{Where: where, Include: include})
	if err != nil {
		return nil, r.fail(err)
	}
	var out T
	if err := tx.First(&out).Error; err != nil {
		return nil, r.fail(err)
	}
	return &out, nil
}

// FindByID loads a row by primary key within scope.
func (r *Repository[T]) FindByID(ctx context.Context, id uint, scope query.Tree, include map[string]any) (*T, error) {
	return r.FindOne(ctx, withID(scope, id), include)
}

func (r *Repository[T]) Count(ctx context.Context, where query.Tree) (int64, error) {
	tx, err := query.Filter(r.db.WithContext(ctx), new(T), where)
	if err != nil {
		return 0, r.fail(err)
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, r.fail(err)
	}
	return n, nil
}

// Create inserts entity together with any has-many children it carries.
func (r *Repository[T]) Create(ctx context.Context, entity *T) error {
	return r.fail(r.db.WithContext(ctx).Create(entity).Error)
}

func (r *Repository[T]) CreateMany(ctx context.Context, entities []T) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Omit(clause.Associations).CreateInBatches(entities, 100)
	return res.RowsAffected, r.fail(res.Error)
}

// Update writes only the named fields of entity.
func (r *Repository[T]) Update(ctx context.Context, entity *T, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(entity).Omit(clause.Associations).Select(fields).Updates(entity)
	return r.fail(res.Error)
}

// Put overwrites every column of entity.
func (r *Repository[T]) Put(ctx context.Context, entity *T) error {
	return r.fail(r.db.WithContext(ctx).Omit(clause.Associations).Save(entity).Error)
}

// UpdateMany applies column values to every row matching where.
func (r *Repository[T]) UpdateMany(ctx context.Context, where query.Tree, values map[string]any) (int64, error) {
	if len(where) == 0 {
		return 0, apperror.BadRequest("updateMany requires a where clause")
	}
	cols, err := r.Columns(values)
	if err != nil {
		return 0, err
	}
	tx, err := query.Filter(r.db.WithContext(ctx), new(T), where)
	if err != nil {
		return 0, r.fail(err)
	}
	res := tx.Updates(cols)
	return res.RowsAffected, r.fail(res.Error)
}

// Upsert inserts entity or, on conflict over conflictColumns, updates
// updateColumns.
func (r *Repository[T]) Upsert(ctx context.Context, entity *T, conflictColumns, updateColumns []string) error {
	cols := make([]clause.Column, len(conflictColumns))
	for i, c := range conflictColumns {
		cols[i] = clause.Column{Name: c}
	}
	onConflict := clause.OnConflict{Columns: cols, UpdateAll: len(updateColumns) == 0}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	}
	return r.fail(r.db.WithContext(ctx).Omit(clause.Associations).Clauses(onConflict).Create(entity).Error)
}

// Delete removes one row. A missing row is reported as not found.
func (r *Repository[T]) Delete(ctx context.Context, id uint, scope query.Tree) error {
	tx, err := query.Filter(r.db.WithContext(ctx), new(T), withID(scope, id))
	if err != nil {
		return r.fail(err)
	}
	res := tx.Delete(new(T))
	if res.Error != nil {
		return r.fail(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound(r.entity)
	}
	return nil
}

func (r *Repository[T]) DeleteMany(ctx context.Context, where query.Tree) (int64, error) {
	if len(where) == 0 {
		return 0, apperror.BadRequest("deleteMany requires a where clause")
	}
	tx, err := query.Filter(r.db.WithContext(ctx), new(T), where)
	if err != nil {
		return 0, r.fail(err)
	}
	res := tx.Delete(new(T))
	return res.RowsAffected, r.fail(res.Error)
}

// Link connects related rows to the row id through relation. Related rows
// must satisfy relatedScope.
func (r *Repository[T]) Link(ctx context.Context, id uint, scope query.Tree, relation string, relatedIDs []uint, relatedScope query.Tree) error {
	return r.associate(ctx, id, scope, relation, relatedIDs, relatedScope, true)
}

// Unlink disconnects related rows from the row id.
func (r *Repository[T]) Unlink(ctx context.Context, id uint, scope query.Tree, relation string, relatedIDs []uint, relatedScope query.Tree) error {
	return r.associate(ctx, id, scope, relation, relatedIDs, relatedScope, false)
}

// Replace sets the many-to-many relation of row id to exactly relatedIDs.
// An empty list clears it.
func (r *Repository[T]) Replace(ctx context.Context, id uint, scope query.Tree, relation string, relatedIDs []uint, relatedScope query.Tree) error {
	s, err := r.Schema()
	if err != nil {
		return err
	}
	rel := query.LookupRelation(s, relation)
	if rel == nil || rel.Type != schema.Many2Many {
		return apperror.BadRequest("relation %q cannot be replaced", relation)
	}
	owner, err := r.FindByID(ctx, id, scope, nil)
	if err != nil {
		return err
	}
	db := r.db.WithContext(ctx)
	assoc := db.Model(owner).Association(rel.Name)
	if len(relatedIDs) == 0 {
		return r.fail(assoc.Clear())
	}
	related, err := r.loadRelated(db, rel, relatedIDs, relatedScope)
	if err != nil {
		return err
	}
	if related.Len() != len(unique(relatedIDs)) {
		return apperror.NotFound(rel.Name)
	}
	return r.fail(assoc.Replace(related.Interface()))
}

func (r *Repository[T]) associate(ctx context.Context, id uint, scope query.Tree, relation string, relatedIDs []uint, relatedScope query.Tree, link bool) error {
	if len(relatedIDs) == 0 {
		return apperror.BadRequest("relatedIds must not be empty")
	}
	s, err := r.Schema()
	if err != nil {
		return err
	}
	rel := query.LookupRelation(s, relation)
	if rel == nil || len(rel.References) == 0 {
		return apperror.BadRequest("unknown relation %q", relation)
	}
	owner, err := r.FindByID(ctx, id, scope, nil)
	if err != nil {
		return err
	}

	db := r.db.WithContext(ctx)
	related, err := r.loadRelated(db, rel, relatedIDs, relatedScope)
	if err != nil {
		return err
	}
	if related.Len() != len(unique(relatedIDs)) {
		return apperror.NotFound(rel.Name)
	}

	switch rel.Type {
	case schema.Many2Many:
		assoc := db.Model(owner).Association(rel.Name)
		if link {
			return r.fail(assoc.Append(related.Interface()))
		}
		return r.fail(assoc.Delete(related.Interface()))

	case schema.HasMany, schema.HasOne:
		ref := rel.References[0]
		if rel.Type == schema.HasOne && link && len(relatedIDs) > 1 {
			return apperror.BadRequest("relation %q holds a single record", rel.Name)
		}
		var value any
		if link {
			v, _ := ref.PrimaryKey.ValueOf(ctx, reflect.ValueOf(owner))
			value = v
		} else if ref.ForeignKey.NotNull {
			return apperror.BadRequest("relation %q cannot be unlinked", rel.Name)
		}
		pk := rel.FieldSchema.PrioritizedPrimaryField
		res := db.Table(rel.FieldSchema.Table).
			Where(clause.IN{Column: clause.Column{Name: pk.DBName}, Values: toAny(relatedIDs)}).
			Update(ref.ForeignKey.DBName, value)
		return r.fail(res.Error)

	case schema.BelongsTo:
		ref := rel.References[0]
		if len(relatedIDs) != 1 {
			return apperror.BadRequest("relation %q holds a single record", rel.Name)
		}
		var value any
		if link {
			value = relatedIDs[0]
		} else {
			if ref.ForeignKey.NotNull {
				return apperror.BadRequest("relation %q cannot be unlinked", rel.Name)
			}
			current, _ := ref.ForeignKey.ValueOf(ctx, reflect.ValueOf(owner))
			if !sameID(current, relatedIDs[0]) {
				return apperror.BadRequest("record %d is not linked through %q", relatedIDs[0], rel.Name)
			}
		}
		res := db.Model(owner).Update(ref.ForeignKey.DBName, value)
		return r.fail(res.Error)
	}
	return apperror.BadRequest("relation %q cannot be linked", rel.Name)
}

// loadRelated returns a *[]Related slice holding the rows with relatedIDs.
func (r *Repository[T]) loadRelated(db *gorm.DB, rel *schema.Relationship, ids []uint, scope query.Tree) (reflect.Value, error) {
	slice := reflect.New(reflect.SliceOf(reflect.PointerTo(rel.FieldSchema.ModelType)))
	where := query.Tree{}
	for k, v := range scope {
		where[k] = v
	}
	where[rel.FieldSchema.PrioritizedPrimaryField.Name] = query.Tree{string(query.In): toAny(ids)}
	tx, err := query.Filter(db, reflect.New(rel.FieldSchema.ModelType).Interface(), where)
	if err != nil {
		return reflect.Value{}, r.fail(err)
	}
	if err := tx.Find(slice.Interface()).Error; err != nil {
		return reflect.Value{}, r.fail(err)
	}
	return slice.Elem(), nil
}

// Aggregate returns count and sum/avg/min/max of fields for rows matching where.
func (r *Repository[T]) Aggregate(ctx context.Context, where query.Tree, fields []string) (*Aggregation, error) {
	s, err := r.Schema()
	if err != nil {
		return nil, err
	}
	agg := &Aggregation{
		Sum: map[string]float64{},
		Avg: map[string]float64{},
		Min: map[string]float64{},
		Max: map[string]float64{},
	}
	if agg.Count, err = r.Count(ctx, where); err != nil {
		return nil, err
	}

	for _, name := range fields {
		f := query.LookupField(s, name)
		if f == nil || !numeric(f) {
			return nil, apperror.BadRequest("cannot aggregate field %q", name)
		}
		tx, err := query.Filter(r.db.WithContext(ctx), new(T), where)
		if err != nil {
			return nil, r.fail(err)
		}
		col := clause.Column{Table: s.Table, Name: f.DBName}
		var sum, avg, min, max sql.NullFloat64
		row := tx.Select("SUM(?), AVG(?), MIN(?), MAX(?)", col, col, col, col).Row()
		if err := row.Scan(&sum, &avg, &min, &max); err != nil {
			return nil, r.fail(err)
		}
		agg.Sum[name] = sum.Float64
		agg.Avg[name] = avg.Float64
		agg.Min[name] = min.Float64
		agg.Max[name] = max.Float64
	}
	return agg, nil
}

// Columns maps field names (Go, column or lowerCamel) to column names.
func (r *Repository[T]) Columns(values map[string]any) (map[string]any, error) {
	s, err := r.Schema()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		f := query.LookupField(s, k)
		if f == nil || f.PrimaryKey {
			return nil, apperror.BadRequest("unknown field %q", k)
		}
		out[f.DBName] = v
	}
	return out, nil
}

func (r *Repository[T]) fail(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, query.ErrInvalid) {
		return apperror.BadRequest("%s", err.Error())
	}
	return apperror.FromDB(err, r.entity)
}

func withID(scope query.Tree, id uint) query.Tree {
	where := make(query.Tree, len(scope)+1)
	for k, v := range scope {
		where[k] = v
	}
	where["id"] = query.Tree{string(query.Equals): id}
	return where
}

func numeric(f *schema.Field) bool {
	switch f.DataType {
	case schema.Int, schema.Uint, schema.Float:
		return true
	}
	// decimal.Decimal columns are declared with an explicit numeric type.
	dt := strings.ToLower(string(f.DataType))
	return strings.HasPrefix(dt, "numeric") || strings.HasPrefix(dt, "decimal")
}

func toAny(ids []uint) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func unique(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func sameID(v any, id uint) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == uint64(id)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == int64(id)
	}
	return false
}
