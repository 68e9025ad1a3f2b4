package services

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/events"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/internal/query"
	"github.com/thereayou/bizdesk/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// StatusInput is the body of a status change request.
type StatusInput struct {
	Status   string         `json:"status"`
	StatusID uint           `json:"statusId"`
	Note     string         `json:"note"`
	SendSMS  bool           `json:"sendSms"`
	Metadata map[string]any `json:"metadata"`
}

// StatusSpec describes how a module stores its status.
type StatusSpec[T any] struct {
	// Field is the Go field written by a status change.
	Field string
	// Include is preloaded before Current is called.
	Include map[string]any
	Current func(entity *T) string
	// Resolve validates the input and returns the value stored in Field
	// together with its display label.
	Resolve func(ctx context.Context, db *database.Database, auth *AuthContext, entity *T, in StatusInput) (value any, label string, err error)
}

// Module configures a BaseService.
type Module[T any] struct {
	// Name is the route segment and the event module, e.g. "cheques".
	Name string
	// Entity is used in error messages.
	Entity string
	// EntityType tags reminders and documents attached to the module.
	EntityType string
	// OwnerField points at the workspace user owning a row.
	OwnerField string
	Searchable []string
	Include    map[string]any
	Relations  []RelationSpec
	Status     *StatusSpec[T]
	Stages     []Stage[T]
}

type BulkRequest struct {
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Where     query.Tree      `json:"where"`
}

type BulkResult struct {
	Operation string `json:"operation"`
	Count     int64  `json:"count"`
}

type LinkRequest struct {
	Relation string `json:"relation"`
	IDs      []uint `json:"relatedIds"`
}

const (
	BulkCreate = "createMany"
	BulkUpdate = "updateMany"
	BulkDelete = "deleteMany"
)

// BaseService runs the create/update/delete pipeline for one module.
type BaseService[T any] struct {
	module Module[T]
	repo   *database.Repository[T]
	deps   Deps
	log    *logger.Logger
}

func NewBaseService[T any](deps Deps, module Module[T]) *BaseService[T] {
	deps = deps.withDefaults()
	if module.Entity == "" {
		module.Entity = module.Name
	}
	return &BaseService[T]{
		module: module,
		repo:   database.NewRepository[T](deps.DB.DB(), module.Entity),
		deps:   deps,
		log:    deps.Logger.Named(module.Name),
	}
}

func (s *BaseService[T]) Module() Module[T] {
	return s.module
}

func (s *BaseService[T]) Repository() *database.Repository[T] {
	return s.repo
}

func (s *BaseService[T]) HasStatus() bool {
	return s.module.Status != nil
}

func tenant(auth *AuthContext) query.Tree {
	return query.Tree{"workspaceId": query.Tree{string(query.Equals): auth.WorkspaceID}}
}

func (s *BaseService[T]) GetAll(ctx context.Context, auth *AuthContext, q query.Query) (*database.Page[T], error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	where := query.Tree{}
	for k, v := range q.Where {
		where[k] = v
	}
	where["workspaceId"] = query.Tree{string(query.Equals): auth.WorkspaceID}
	q.Where = where
	return s.repo.FindAll(ctx, q)
}

func (s *BaseService[T]) GetByID(ctx context.Context, auth *AuthContext, id uint, include map[string]any) (*T, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	if include == nil {
		include = s.module.Include
	}
	return s.repo.FindByID(ctx, id, tenant(auth), include)
}

func (s *BaseService[T]) Aggregate(ctx context.Context, auth *AuthContext, where query.Tree, fields []string) (*database.Aggregation, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	return s.repo.Aggregate(ctx, scoped(auth, where), fields)
}

// Create decodes body into a new record and runs the create pipeline.
func (s *BaseService[T]) Create(ctx context.Context, auth *AuthContext, body []byte) (*T, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	sch, err := s.repo.Schema()
	if err != nil {
		return nil, err
	}
	entity := new(T)
	in, err := decodeInto(entity, body, s.module.Relations)
	if err != nil {
		return nil, err
	}
	clearRelations(ctx, sch, entity)
	s.stamp(ctx, sch, auth, entity)

	ops, _, err := s.prepareRelations(ctx, sch, auth, in, true)
	if err != nil {
		return nil, err
	}
	if err := Validate(entity); err != nil {
		return nil, err
	}
	if err := s.checkForeignKeys(ctx, sch, auth, entity, nil); err != nil {
		return nil, err
	}

	m := s.mutation(auth)
	m.Entity = entity
	if err := s.before(ctx, BeforeCreate, m); err != nil {
		return nil, err
	}
	err = s.deps.DB.Transaction(ctx, func(tx *database.Database) error {
		if err := s.repo.WithTx(tx.DB()).Create(ctx, m.Entity); err != nil {
			return err
		}
		if err := s.applyRelations(ctx, sch, tx.DB(), auth, m.Entity, ops, false); err != nil {
			return err
		}
		return s.within(ctx, WithinCreate, m, tx)
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, sch, AfterCreate, m)
}

// Update applies the keys present in body over the stored record.
func (s *BaseService[T]) Update(ctx context.Context, auth *AuthContext, id uint, body []byte) (*T, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	sch, err := s.repo.Schema()
	if err != nil {
		return nil, err
	}
	current, err := s.repo.FindByID(ctx, id, tenant(auth), nil)
	if err != nil {
		return nil, err
	}
	merged := *current
	in, err := decodeInto(&merged, body, s.module.Relations)
	if err != nil {
		return nil, err
	}
	clearRelations(ctx, sch, &merged)
	s.protect(ctx, sch, auth, &merged, current)

	fields := s.writable(sch, auth, in.Present)
	ops, fkFields, err := s.prepareRelations(ctx, sch, auth, in, false)
	if err != nil {
		return nil, err
	}
	fields = append(fields, fkFields...)
	return s.save(ctx, sch, auth, current, &merged, fields, ops)
}

// Put replaces every writable column of the stored record.
func (s *BaseService[T]) Put(ctx context.Context, auth *AuthContext, id uint, body []byte) (*T, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	sch, err := s.repo.Schema()
	if err != nil {
		return nil, err
	}
	current, err := s.repo.FindByID(ctx, id, tenant(auth), nil)
	if err != nil {
		return nil, err
	}
	next := new(T)
	in, err := decodeInto(next, body, s.module.Relations)
	if err != nil {
		return nil, err
	}
	clearRelations(ctx, sch, next)
	s.protect(ctx, sch, auth, next, current)

	var fields []string
	for _, f := range sch.Fields {
		if f.DBName == "" || f.PrimaryKey || s.protected(auth, f.Name) {
			continue
		}
		fields = append(fields, f.Name)
	}
	ops, _, err := s.prepareRelations(ctx, sch, auth, in, false)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, sch, auth, current, next, fields, ops)
}

func (s *BaseService[T]) save(ctx context.Context, sch *schema.Schema, auth *AuthContext, current, next *T, fields []string, ops []relationOp) (*T, error) {
	if err := Validate(next); err != nil {
		return nil, err
	}
	if err := s.checkForeignKeys(ctx, sch, auth, next, fields); err != nil {
		return nil, err
	}
	m := s.mutation(auth)
	m.Entity = next
	m.Previous = current
	m.Fields = fields
	if err := s.before(ctx, BeforeUpdate, m); err != nil {
		return nil, err
	}
	err := s.deps.DB.Transaction(ctx, func(tx *database.Database) error {
		if err := s.repo.WithTx(tx.DB()).Update(ctx, m.Entity, m.Fields); err != nil {
			return err
		}
		if err := s.applyRelations(ctx, sch, tx.DB(), auth, m.Entity, ops, true); err != nil {
			return err
		}
		return s.within(ctx, WithinUpdate, m, tx)
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, sch, AfterUpdate, m)
}

func (s *BaseService[T]) Delete(ctx context.Context, auth *AuthContext, id uint) error {
	if err := requireMember(auth); err != nil {
		return err
	}
	current, err := s.repo.FindByID(ctx, id, tenant(auth), nil)
	if err != nil {
		return err
	}
	m := s.mutation(auth)
	m.Entity = current
	m.Previous = current
	if err := s.before(ctx, BeforeDelete, m); err != nil {
		return err
	}
	err = s.deps.DB.Transaction(ctx, func(tx *database.Database) error {
		if err := s.repo.WithTx(tx.DB()).Delete(ctx, id, tenant(auth)); err != nil {
			return err
		}
		return s.within(ctx, WithinDelete, m, tx)
	})
	if err != nil {
		return err
	}
	s.after(ctx, AfterDelete, id, m)
	return nil
}

// UpdateStatus moves a record to a new status through the status stages.
func (s *BaseService[T]) UpdateStatus(ctx context.Context, auth *AuthContext, id uint, in StatusInput) (*T, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	spec := s.module.Status
	if spec == nil {
		return nil, apperror.BadRequest("%s has no status", s.module.Entity)
	}
	sch, err := s.repo.Schema()
	if err != nil {
		return nil, err
	}
	current, err := s.repo.FindByID(ctx, id, tenant(auth), spec.Include)
	if err != nil {
		return nil, err
	}
	value, label, err := spec.Resolve(ctx, s.deps.DB, auth, current, in)
	if err != nil {
		return nil, err
	}

	next := *current
	field := sch.LookUpField(spec.Field)
	if field == nil {
		return nil, apperror.Internal(fmt.Errorf("%s: unknown status field %q", s.module.Name, spec.Field))
	}
	if err := field.Set(ctx, reflect.ValueOf(&next), value); err != nil {
		return nil, apperror.Internal(err)
	}

	m := s.mutation(auth)
	m.Entity = &next
	m.Previous = current
	m.Fields = []string{field.Name}
	m.Status = &StatusChangeEvent{
		EntityID:  id,
		OldStatus: spec.Current(current),
		NewStatus: label,
		Note:      in.Note,
		SendSMS:   in.SendSMS,
		Metadata:  in.Metadata,
	}
	if err := s.before(ctx, BeforeStatusChange, m); err != nil {
		return nil, err
	}
	err = s.deps.DB.Transaction(ctx, func(tx *database.Database) error {
		if err := s.repo.WithTx(tx.DB()).Update(ctx, m.Entity, m.Fields); err != nil {
			return err
		}
		return s.within(ctx, WithinStatusChange, m, tx)
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, sch, AfterStatusChange, m)
}

// ReminderInput is the body of a reminder attached to a record.
type ReminderInput struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DueDate         time.Time `json:"dueDate"`
	WorkspaceUserID *uint     `json:"workspaceUserId"`
	NotifySMS       bool      `json:"notifySms"`
}

// CreateReminder attaches a reminder to the record id.
func (s *BaseService[T]) CreateReminder(ctx context.Context, auth *AuthContext, id uint, in ReminderInput) (*models.Reminder, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByID(ctx, id, tenant(auth), nil); err != nil {
		return nil, err
	}
	reminder := &models.Reminder{
		Tenant:          models.Tenant{WorkspaceID: auth.WorkspaceID},
		WorkspaceUserID: in.WorkspaceUserID,
		EntityType:      s.module.EntityType,
		EntityID:        id,
		Title:           in.Title,
		Description:     in.Description,
		DueDate:         in.DueDate,
		Status:          models.ReminderPending,
		IsActive:        true,
		NotifySMS:       in.NotifySMS,
	}
	if reminder.WorkspaceUserID == nil {
		if wu := auth.WorkspaceUserID(); wu != 0 {
			reminder.WorkspaceUserID = &wu
		}
	} else if _, err := s.deps.DB.GetWorkspaceUserByID(ctx, auth.WorkspaceID, *reminder.WorkspaceUserID); err != nil {
		return nil, apperror.Validation(map[string][]string{"workspaceUserId": {"not found"}})
	}
	if err := Validate(reminder); err != nil {
		return nil, err
	}
	reminders := database.NewRepository[models.Reminder](s.deps.DB.DB(), "reminder")
	if err := reminders.Create(ctx, reminder); err != nil {
		return nil, err
	}
	s.publish(ctx, "reminders", AfterCreate, auth, reminder.ID, reminder)
	return reminder, nil
}

// Bulk runs createMany, updateMany or deleteMany inside one transaction.
// Stages are not run per row; a single notice is published.
func (s *BaseService[T]) Bulk(ctx context.Context, auth *AuthContext, req BulkRequest) (*BulkResult, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	sch, err := s.repo.Schema()
	if err != nil {
		return nil, err
	}
	res := &BulkResult{Operation: req.Operation}

	switch req.Operation {
	case BulkCreate:
		var items []json.RawMessage
		if err := json.Unmarshal(req.Data, &items); err != nil {
			return nil, apperror.BadRequest("createMany expects an array in data")
		}
		rows := make([]T, len(items))
		for i, raw := range items {
			in, err := decodeInto(&rows[i], raw, s.module.Relations)
			if err != nil {
				return nil, prefix(err, i)
			}
			clearRelations(ctx, sch, &rows[i])
			s.stamp(ctx, sch, auth, &rows[i])
			ops, _, err := s.prepareRelations(ctx, sch, auth, in, true)
			if err != nil {
				return nil, prefix(err, i)
			}
			if len(ops) > 0 {
				return nil, apperror.BadRequest("createMany only supports single-record relations")
			}
			if err := Validate(&rows[i]); err != nil {
				return nil, prefix(err, i)
			}
		}
		err = s.repo.Transaction(ctx, func(tx *database.Repository[T]) error {
			n, err := tx.CreateMany(ctx, rows)
			res.Count = n
			return err
		})

	case BulkUpdate:
		if len(req.Where) == 0 {
			return nil, apperror.BadRequest("updateMany requires a where clause")
		}
		var values map[string]any
		if err := json.Unmarshal(req.Data, &values); err != nil || len(values) == 0 {
			return nil, apperror.BadRequest("updateMany expects an object in data")
		}
		for key := range values {
			f := query.LookupField(sch, key)
			if f == nil || f.PrimaryKey || s.protected(auth, f.Name) {
				return nil, apperror.BadRequest("field %q cannot be bulk updated", key)
			}
		}
		res.Count, err = s.repo.UpdateMany(ctx, scoped(auth, req.Where), values)

	case BulkDelete:
		if len(req.Where) == 0 {
			return nil, apperror.BadRequest("deleteMany requires a where clause")
		}
		res.Count, err = s.repo.DeleteMany(ctx, scoped(auth, req.Where))

	default:
		return nil, apperror.BadRequest("unknown bulk operation %q", req.Operation)
	}
	if err != nil {
		return nil, err
	}
	s.publish(ctx, s.module.Name, Phase("bulk"), auth, 0, res)
	return res, nil
}

func (s *BaseService[T]) Link(ctx context.Context, auth *AuthContext, id uint, req LinkRequest) (*T, error) {
	return s.associate(ctx, auth, id, req, true)
}

func (s *BaseService[T]) Unlink(ctx context.Context, auth *AuthContext, id uint, req LinkRequest) (*T, error) {
	return s.associate(ctx, auth, id, req, false)
}

func (s *BaseService[T]) associate(ctx context.Context, auth *AuthContext, id uint, req LinkRequest, link bool) (*T, error) {
	if err := requireMember(auth); err != nil {
		return nil, err
	}
	spec, ok := s.relationSpec(req.Relation)
	if !ok {
		return nil, apperror.BadRequest("unknown relation %q", req.Relation)
	}
	if len(req.IDs) == 0 {
		return nil, apperror.Validation(map[string][]string{"relatedIds": {"is required"}})
	}
	sch, err := s.repo.Schema()
	if err != nil {
		return nil, err
	}
	rel := query.LookupRelation(sch, spec.Relation)
	if rel == nil {
		return nil, apperror.BadRequest("unknown relation %q", req.Relation)
	}
	if s.protected(auth, foreignKeyOf(rel)) {
		return nil, apperror.BadRequest("relation %q cannot be changed here", req.Relation)
	}
	if link {
		err = s.repo.Link(ctx, id, tenant(auth), rel.Name, req.IDs, relatedScope(auth, rel))
	} else {
		err = s.repo.Unlink(ctx, id, tenant(auth), rel.Name, req.IDs, relatedScope(auth, rel))
	}
	if err != nil {
		return nil, err
	}
	entity, err := s.repo.FindByID(ctx, id, tenant(auth), map[string]any{rel.Name: true})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, s.module.Name, AfterUpdate, auth, id, entity)
	return entity, nil
}

func (s *BaseService[T]) mutation(auth *AuthContext) *Mutation[T] {
	return &Mutation[T]{Auth: auth, DB: s.deps.DB}
}

func (s *BaseService[T]) before(ctx context.Context, phase Phase, m *Mutation[T]) error {
	for _, st := range stagesFor(s.module.Stages, phase) {
		if err := st.Run(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *BaseService[T]) within(ctx context.Context, phase Phase, m *Mutation[T], tx *database.Database) error {
	m.Tx, m.DB = tx.DB(), tx
	defer func() { m.Tx, m.DB = nil, s.deps.DB }()
	for _, st := range stagesFor(s.module.Stages, phase) {
		if err := st.Run(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// finish reloads the committed record and dispatches the After stages.
func (s *BaseService[T]) finish(ctx context.Context, sch *schema.Schema, phase Phase, m *Mutation[T]) (*T, error) {
	id := primaryKey(ctx, sch, m.Entity)
	out, err := s.repo.FindByID(ctx, id, tenant(m.Auth), s.module.Include)
	if err != nil {
		return nil, err
	}
	m.Entity = out
	s.after(ctx, phase, id, m)
	return out, nil
}

func (s *BaseService[T]) after(ctx context.Context, phase Phase, id uint, m *Mutation[T]) {
	for _, st := range stagesFor(s.module.Stages, phase) {
		s.deps.Dispatcher.Dispatch(ctx, events.Task{
			Module:   s.module.Name,
			Phase:    string(phase),
			Stage:    st.Name,
			EntityID: id,
			Run:      func(ctx context.Context) error { return st.Run(ctx, m) },
		})
	}
	var data any = m.Entity
	if m.Status != nil {
		data = m.Status
	}
	s.publish(ctx, s.module.Name, phase, m.Auth, id, data)
}

func (s *BaseService[T]) publish(ctx context.Context, module string, phase Phase, auth *AuthContext, id uint, data any) {
	notice := events.Notice{
		Module:      module,
		Phase:       string(phase),
		WorkspaceID: auth.WorkspaceID,
		EntityID:    id,
		Data:        data,
		OccurredAt:  time.Now().UTC(),
	}
	s.deps.Dispatcher.Dispatch(ctx, events.Task{
		Module:   module,
		Phase:    string(phase),
		Stage:    "publish",
		EntityID: id,
		Run:      func(ctx context.Context) error { return s.deps.Publisher.Publish(ctx, notice) },
	})
}

// stamp forces the tenant, and the owner for customers, on a new record.
func (s *BaseService[T]) stamp(ctx context.Context, sch *schema.Schema, auth *AuthContext, entity *T) {
	v := reflect.ValueOf(entity)
	if pk := sch.PrioritizedPrimaryField; pk != nil {
		_ = pk.Set(ctx, v, reflect.Zero(pk.FieldType).Interface())
	}
	if f := sch.LookUpField("WorkspaceID"); f != nil {
		_ = f.Set(ctx, v, auth.WorkspaceID)
	}
	if owner := s.ownerField(sch); owner != nil && auth.Role == models.RoleUser {
		_ = owner.Set(ctx, v, auth.WorkspaceUserID())
	}
}

// protect copies the fields a client may not write from src to dst.
func (s *BaseService[T]) protect(ctx context.Context, sch *schema.Schema, auth *AuthContext, dst, src *T) {
	for _, f := range sch.Fields {
		if f.DBName == "" || !(f.PrimaryKey || s.protected(auth, f.Name)) {
			continue
		}
		v, _ := f.ValueOf(ctx, reflect.ValueOf(src))
		if err := f.Set(ctx, reflect.ValueOf(dst), v); err != nil {
			s.log.Warn("cannot restore field", zap.String("field", f.Name), zap.Error(err))
		}
	}
}

// protected reports whether the Go field may only change through a
// dedicated operation.
func (s *BaseService[T]) protected(auth *AuthContext, name string) bool {
	switch name {
	case "ID", "WorkspaceID", "CreatedAt", "UpdatedAt":
		return true
	}
	if s.module.Status != nil && name == s.module.Status.Field {
		return true
	}
	if auth.Role == models.RoleUser && s.module.OwnerField != "" && strings.EqualFold(name, s.module.OwnerField) {
		return true
	}
	return false
}

func (s *BaseService[T]) ownerField(sch *schema.Schema) *schema.Field {
	if s.module.OwnerField == "" {
		return nil
	}
	return query.LookupField(sch, s.module.OwnerField)
}

// writable maps the JSON keys of a patch to the Go fields it may write.
func (s *BaseService[T]) writable(sch *schema.Schema, auth *AuthContext, keys []string) []string {
	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		f := query.LookupField(sch, key)
		if f == nil || f.PrimaryKey || s.protected(auth, f.Name) {
			continue
		}
		fields = append(fields, f.Name)
	}
	return fields
}

func (s *BaseService[T]) relationSpec(name string) (RelationSpec, bool) {
	for _, spec := range s.module.Relations {
		if strings.EqualFold(spec.Field, name) || strings.EqualFold(spec.Relation, name) {
			return spec, true
		}
	}
	return RelationSpec{}, false
}

// scoped ANDs a client filter with the tenant filter.
func scoped(auth *AuthContext, where query.Tree) query.Tree {
	if len(where) == 0 {
		return tenant(auth)
	}
	return query.Tree{"AND": []any{where, tenant(auth)}}
}

func relatedScope(auth *AuthContext, rel *schema.Relationship) query.Tree {
	if rel.FieldSchema.LookUpField("WorkspaceID") == nil {
		return nil
	}
	return tenant(auth)
}

func foreignKeyOf(rel *schema.Relationship) string {
	if rel.Type == schema.BelongsTo && len(rel.References) > 0 {
		return rel.References[0].ForeignKey.Name
	}
	return ""
}

func primaryKey[T any](ctx context.Context, sch *schema.Schema, entity *T) uint {
	v, _ := sch.PrioritizedPrimaryField.ValueOf(ctx, reflect.ValueOf(entity))
	return toUint(v)
}

// clearRelations drops any association a client smuggled into the body.
func clearRelations[T any](ctx context.Context, sch *schema.Schema, entity *T) {
	v := reflect.ValueOf(entity)
	for _, rel := range sch.Relationships.Relations {
		fv := rel.Field.ReflectValueOf(ctx, v)
		fv.Set(reflect.Zero(fv.Type()))
	}
}

// prefix rewrites validation keys of the i-th bulk row as "i.key".
func prefix(err error, i int) error {
	appErr, ok := apperror.As(err)
	if !ok || appErr.Errors == nil {
		return err
	}
	fields := make(map[string][]string, len(appErr.Errors))
	for k, v := range appErr.Errors {
		fields[fmt.Sprintf("%d.%s", i, k)] = v
	}
	return apperror.Validation(fields)
}

type relationOp struct {
	rel *schema.Relationship
	in  *RelationInput
}

// prepareRelations resolves single-record relations onto foreign keys and
// returns the operations that need the row to exist.
func (s *BaseService[T]) prepareRelations(ctx context.Context, sch *schema.Schema, auth *AuthContext, in *Input[T], creating bool) ([]relationOp, []string, error) {
	var (
		ops      []relationOp
		fkFields []string
	)
	for field, ri := range in.Relations {
		spec, _ := s.relationSpec(field)
		rel := query.LookupRelation(sch, spec.Relation)
		if rel == nil {
			return nil, nil, apperror.Internal(fmt.Errorf("%s: unknown relation %q", s.module.Name, spec.Relation))
		}
		invalid := func(msg string) error {
			return apperror.Validation(map[string][]string{field: {msg}})
		}

		switch rel.Type {
		case schema.BelongsTo:
			if ri.Mode != ConnectByID || len(ri.IDs) != 1 {
				return nil, nil, invalid("expects a single id")
			}
			fk := rel.References[0].ForeignKey
			initialStatus := creating && s.module.Status != nil && fk.Name == s.module.Status.Field
			if s.protected(auth, fk.Name) && !initialStatus && fkLocked(ctx, fk, in.Entity, ri.IDs[0]) {
				return nil, nil, invalid("cannot be changed here")
			}
			if err := s.checkRelated(ctx, auth, rel, ri.IDs); err != nil {
				return nil, nil, invalid("not found")
			}
			if err := fk.Set(ctx, reflect.ValueOf(in.Entity), ri.IDs[0]); err != nil {
				return nil, nil, apperror.Internal(err)
			}
			fkFields = append(fkFields, fk.Name)

		case schema.HasMany, schema.HasOne:
			if ri.Mode == NestedCreate {
				if err := setNested(ctx, rel, in.Entity, ri.Payload); err != nil {
					return nil, nil, invalid(err.Error())
				}
			}
			ops = append(ops, relationOp{rel: rel, in: ri})

		case schema.Many2Many:
			if ri.Mode == NestedCreate {
				return nil, nil, invalid("nested create is not supported")
			}
			ops = append(ops, relationOp{rel: rel, in: ri})
		}
	}
	return ops, fkFields, nil
}

// fkLocked reports whether connecting id would change a protected key.
func fkLocked(ctx context.Context, fk *schema.Field, entity any, id uint) bool {
	current, _ := fk.ValueOf(ctx, reflect.ValueOf(entity))
	return toUint(current) != id
}

func (s *BaseService[T]) checkRelated(ctx context.Context, auth *AuthContext, rel *schema.Relationship, ids []uint) error {
	where := query.Tree{}
	for k, v := range relatedScope(auth, rel) {
		where[k] = v
	}
	pk := rel.FieldSchema.PrioritizedPrimaryField
	where[pk.Name] = query.Tree{string(query.In): uintsToAny(ids)}
	tx, err := query.Filter(s.deps.DB.DB().WithContext(ctx), reflect.New(rel.FieldSchema.ModelType).Interface(), where)
	if err != nil {
		return err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return err
	}
	if n != int64(len(dedupe(ids))) {
		return apperror.NotFound(rel.Name)
	}
	return nil
}

// checkForeignKeys verifies that every set foreign key among fields (all of
// them when fields is nil) points at a row of the caller's workspace.
func (s *BaseService[T]) checkForeignKeys(ctx context.Context, sch *schema.Schema, auth *AuthContext, entity *T, fields []string) error {
	for _, rel := range sch.Relationships.BelongsTo {
		if len(rel.References) == 0 || relatedScope(auth, rel) == nil {
			continue
		}
		fk := rel.References[0].ForeignKey
		if fields != nil && !contains(fields, fk.Name) {
			continue
		}
		v, zero := fk.ValueOf(ctx, reflect.ValueOf(entity))
		if zero {
			continue
		}
		id := toUint(v)
		if id == 0 {
			continue
		}
		if err := s.checkRelated(ctx, auth, rel, []uint{id}); err != nil {
			key := strings.SplitN(fk.Tag.Get("json"), ",", 2)[0]
			return apperror.Validation(map[string][]string{key: {"not found"}})
		}
	}
	return nil
}

// applyRelations runs the relation writes that need the stored row. On
// update, nested children replace the existing ones.
func (s *BaseService[T]) applyRelations(ctx context.Context, sch *schema.Schema, tx *gorm.DB, auth *AuthContext, entity *T, ops []relationOp, replace bool) error {
	id := primaryKey(ctx, sch, entity)
	repo := s.repo.WithTx(tx)
	for _, op := range ops {
		rel := op.rel
		switch op.in.Mode {
		case NestedCreate:
			if !replace {
				continue
			}
			if err := replaceChildren(ctx, tx, rel, entity, id); err != nil {
				return apperror.FromDB(err, rel.Name)
			}
		case ConnectByID:
			if err := repo.Link(ctx, id, nil, rel.Name, op.in.IDs, relatedScope(auth, rel)); err != nil {
				return err
			}
		case SetByIDs:
			if rel.Type != schema.Many2Many {
				return apperror.Validation(map[string][]string{rel.Name: {"setByIds requires a many-to-many relation"}})
			}
			if err := repo.Replace(ctx, id, nil, rel.Name, op.in.IDs, relatedScope(auth, rel)); err != nil {
				return err
			}
		}
	}
	return nil
}

func setNested(ctx context.Context, rel *schema.Relationship, entity any, payload json.RawMessage) error {
	ft := rel.Field.FieldType
	raw := payload
	if ft.Kind() == reflect.Slice && len(raw) > 0 && raw[0] == '{' {
		raw = append(append([]byte{'['}, raw...), ']')
	}
	ptr := reflect.New(ft)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return fmt.Errorf("invalid nested records")
	}
	rel.Field.ReflectValueOf(ctx, reflect.ValueOf(entity)).Set(ptr.Elem())
	return nil
}

func replaceChildren(ctx context.Context, tx *gorm.DB, rel *schema.Relationship, entity any, id uint) error {
	if rel.Type != schema.HasMany || len(rel.References) == 0 {
		return fmt.Errorf("relation %s cannot be replaced", rel.Name)
	}
	fk := rel.References[0].ForeignKey
	child := reflect.New(rel.FieldSchema.ModelType).Interface()
	if err := tx.Where(clause.Eq{Column: clause.Column{Name: fk.DBName}, Value: id}).Delete(child).Error; err != nil {
		return err
	}
	children := rel.Field.ReflectValueOf(ctx, reflect.ValueOf(entity))
	if children.Len() == 0 {
		return nil
	}
	pk := rel.FieldSchema.PrioritizedPrimaryField
	for i := 0; i < children.Len(); i++ {
		item := children.Index(i).Addr()
		if err := pk.Set(ctx, item, reflect.Zero(pk.FieldType).Interface()); err != nil {
			return err
		}
		if err := fk.Set(ctx, item, id); err != nil {
			return err
		}
	}
	return tx.Omit(clause.Associations).Create(children.Addr().Interface()).Error
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func toUint(v any) uint {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return 0
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uint(rv.Uint())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint(rv.Int())
	}
	return 0
}

func uintsToAny(ids []uint) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
