package query

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// ErrInvalid is wrapped by every error caused by a malformed query.
var ErrInvalid = errors.New("invalid query")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Schema returns the parsed gorm schema of model.
func Schema(db *gorm.DB, model any) (*schema.Schema, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return nil, err
	}
	return stmt.Schema, nil
}

// Filter scopes db to the rows of model matching where.
func Filter(db *gorm.DB, model any, where Tree) (*gorm.DB, error) {
	s, err := Schema(db, model)
	if err != nil {
		return nil, err
	}
	t := &translator{db: db}
	exprs, err := t.node(s, s.Table, where)
	if err != nil {
		return nil, err
	}
	tx := db.Model(model)
	if len(exprs) > 0 {
		tx = tx.Where(clause.And(exprs...))
	}
	return tx, nil
}

// Apply adds the filter, ordering, preloads and paging of q to db.
func Apply(db *gorm.DB, model any, q Query) (*gorm.DB, error) {
	tx, err := Filter(db, model, q.Where)
	if err != nil {
		return nil, err
	}
	s, err := Schema(db, model)
	if err != nil {
		return nil, err
	}
	for _, o := range q.OrderBy {
		f := LookupField(s, o.Field)
		if f == nil {
			return nil, invalid("unknown order field %q", o.Field)
		}
		tx = tx.Order(clause.OrderByColumn{
			Column: clause.Column{Table: s.Table, Name: f.DBName},
			Desc:   o.Direction == Desc,
		})
	}
	paths, err := Preloads(s, q.Include)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		tx = tx.Preload(p)
	}
	if q.Skip > 0 {
		tx = tx.Offset(q.Skip)
	}
	if q.Take > 0 {
		tx = tx.Limit(q.Take)
	}
	return tx, nil
}

// Preloads turns an include map into gorm preload paths such as "Labels"
// or "Status.Owner". Values must be true, false or a nested map.
func Preloads(s *schema.Schema, include map[string]any) ([]string, error) {
	var out []string
	for _, key := range slices.Sorted(maps.Keys(include)) {
		rel := LookupRelation(s, key)
		if rel == nil {
			return nil, invalid("unknown relation %q", key)
		}
		switch v := include[key].(type) {
		case bool:
			if v {
				out = append(out, rel.Name)
			}
		case map[string]any:
			out = append(out, rel.Name)
			nested, err := Preloads(rel.FieldSchema, v)
			if err != nil {
				return nil, err
			}
			for _, n := range nested {
				out = append(out, rel.Name+"."+n)
			}
		default:
			return nil, invalid("include %q must be a boolean or an object", key)
		}
	}
	return out, nil
}

type translator struct {
	db *gorm.DB
}

func (t *translator) node(s *schema.Schema, table string, node Tree) ([]clause.Expression, error) {
	var exprs []clause.Expression
	for _, key := range slices.Sorted(maps.Keys(node)) {
		val := node[key]
		switch key {
		case "AND":
			subs, err := t.list(s, table, val)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, subs...)
		case "OR":
			subs, err := t.list(s, table, val)
			if err != nil {
				return nil, err
			}
			if e := or(subs); e != nil {
				exprs = append(exprs, e)
			}
		case "NOT":
			subs, err := t.list(s, table, val)
			if err != nil {
				return nil, err
			}
			for _, sub := range subs {
				exprs = append(exprs, negate(sub))
			}
		default:
			e, err := t.field(s, table, key, val)
			if err != nil {
				return nil, err
			}
			if e != nil {
				exprs = append(exprs, e)
			}
		}
	}
	return exprs, nil
}

// list accepts a single tree or a list of trees. Each tree becomes one
// AND-ed expression.
func (t *translator) list(s *schema.Schema, table string, val any) ([]clause.Expression, error) {
	var trees []Tree
	switch v := val.(type) {
	case Tree:
		trees = []Tree{v}
	case map[string]any:
		trees = []Tree{Tree(v)}
	case []Tree:
		trees = v
	case []any:
		for _, item := range v {
			tr, ok := asTree(item)
			if !ok {
				return nil, invalid("combinator entries must be objects")
			}
			trees = append(trees, tr)
		}
	default:
		return nil, invalid("combinator value must be an object or a list")
	}

	out := make([]clause.Expression, 0, len(trees))
	for _, tr := range trees {
		exprs, err := t.node(s, table, tr)
		if err != nil {
			return nil, err
		}
		if e := clause.And(exprs...); e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *translator) field(s *schema.Schema, table, key string, val any) (clause.Expression, error) {
	if f := LookupField(s, key); f != nil {
		col := clause.Column{Table: table, Name: f.DBName}
		ops, ok := asTree(val)
		if !ok {
			return clause.Eq{Column: col, Value: val}, nil
		}
		return t.leaf(col, ops)
	}
	if rel := LookupRelation(s, key); rel != nil {
		cond, ok := asTree(val)
		if !ok {
			return nil, invalid("relation filter %q must be an object", key)
		}
		return t.relation(rel, table, cond)
	}
	return nil, invalid("unknown field %q", key)
}

func (t *translator) leaf(col clause.Column, ops Tree) (clause.Expression, error) {
	var exprs []clause.Expression
	for _, op := range slices.Sorted(maps.Keys(ops)) {
		v := ops[op]
		switch Op(op) {
		case Equals:
			exprs = append(exprs, clause.Eq{Column: col, Value: v})
		case Not:
			if nested, ok := asTree(v); ok {
				e, err := t.leaf(col, nested)
				if err != nil {
					return nil, err
				}
				exprs = append(exprs, negate(e))
			} else {
				exprs = append(exprs, clause.Neq{Column: col, Value: v})
			}
		case In:
			exprs = append(exprs, clause.IN{Column: col, Values: values(v)})
		case NotIn:
			exprs = append(exprs, negate(clause.IN{Column: col, Values: values(v)}))
		case Lt:
			exprs = append(exprs, clause.Lt{Column: col, Value: v})
		case Lte:
			exprs = append(exprs, clause.Lte{Column: col, Value: v})
		case Gt:
			exprs = append(exprs, clause.Gt{Column: col, Value: v})
		case Gte:
			exprs = append(exprs, clause.Gte{Column: col, Value: v})
		case Contains:
			exprs = append(exprs, like(col, "%"+escapeLike(v)+"%"))
		case StartsWith:
			exprs = append(exprs, like(col, escapeLike(v)+"%"))
		case EndsWith:
			exprs = append(exprs, like(col, "%"+escapeLike(v)))
		case "mode":
			// string matching is always case-insensitive
		default:
			return nil, invalid("operator %q is not supported on %q", op, col.Name)
		}
	}
	return clause.And(exprs...), nil
}

func (t *translator) relation(rel *schema.Relationship, table string, cond Tree) (clause.Expression, error) {
	if len(rel.References) == 0 || rel.Polymorphic != nil {
		return nil, invalid("relation %q cannot be filtered", rel.Name)
	}

	if ids, ok := cond[string(Has)]; ok {
		pk := rel.FieldSchema.PrioritizedPrimaryField
		if pk == nil {
			return nil, invalid("relation %q has no primary key", rel.Name)
		}
		cond = Tree{"some": Tree{pk.DBName: Tree{string(In): ids}}}
	}

	toMany := rel.Type == schema.HasMany || rel.Type == schema.Many2Many
	if toMany {
		for _, k := range []string{"some", "none", "every"} {
			v, ok := cond[k]
			if !ok {
				continue
			}
			sub, ok := asTree(v)
			if !ok {
				return nil, invalid("%s.%s must be an object", rel.Name, k)
			}
			switch k {
			case "some":
				return t.membership(rel, table, sub, false, false)
			case "none":
				return t.membership(rel, table, sub, true, false)
			default:
				return t.membership(rel, table, sub, true, true)
			}
		}
		return nil, invalid("relation %q needs some, none or every", rel.Name)
	}

	if v, ok := cond["is"]; ok {
		sub, _ := asTree(v)
		return t.membership(rel, table, sub, false, false)
	}
	if v, ok := cond["isNot"]; ok {
		sub, _ := asTree(v)
		return t.membership(rel, table, sub, true, false)
	}
	return t.membership(rel, table, cond, false, false)
}

// membership renders "<owner key> [NOT] IN (subquery)". With invert the
// subquery selects related rows that do NOT match cond, which gives the
// "every" semantics when combined with exclude.
func (t *translator) membership(rel *schema.Relationship, table string, cond Tree, exclude, invert bool) (clause.Expression, error) {
	target := rel.FieldSchema
	exprs, err := t.node(target, target.Table, cond)
	if err != nil {
		return nil, err
	}
	filter := clause.And(exprs...)
	if invert && filter != nil {
		filter = negate(filter)
	}

	var ownerCol, keyCol clause.Column
	var sub *gorm.DB

	switch rel.Type {
	case schema.BelongsTo:
		ref := rel.References[0]
		ownerCol = clause.Column{Table: table, Name: ref.ForeignKey.DBName}
		keyCol = clause.Column{Table: target.Table, Name: ref.PrimaryKey.DBName}
		sub = t.fresh().Table(target.Table).Select(ref.PrimaryKey.DBName)
		if filter != nil {
			sub = sub.Where(filter)
		}
	case schema.HasOne, schema.HasMany:
		ref := rel.References[0]
		ownerCol = clause.Column{Table: table, Name: ref.PrimaryKey.DBName}
		keyCol = clause.Column{Table: target.Table, Name: ref.ForeignKey.DBName}
		sub = t.fresh().Table(target.Table).Select(ref.ForeignKey.DBName)
		if filter != nil {
			sub = sub.Where(filter)
		}
	case schema.Many2Many:
		var own, other *schema.Reference
		for _, ref := range rel.References {
			if ref.OwnPrimaryKey {
				own = ref
			} else {
				other = ref
			}
		}
		if own == nil || other == nil {
			return nil, invalid("relation %q has an unsupported join table", rel.Name)
		}
		ownerCol = clause.Column{Table: table, Name: own.PrimaryKey.DBName}
		keyCol = clause.Column{Table: rel.JoinTable.Table, Name: own.ForeignKey.DBName}
		sub = t.fresh().Table(rel.JoinTable.Table).Select(own.ForeignKey.DBName)
		if filter != nil {
			related := t.fresh().Table(target.Table).Select(other.PrimaryKey.DBName).Where(filter)
			sub = sub.Where(clause.Expr{
				SQL:  "? IN (?)",
				Vars: []any{clause.Column{Table: rel.JoinTable.Table, Name: other.ForeignKey.DBName}, related},
			})
		}
	default:
		return nil, invalid("relation %q cannot be filtered", rel.Name)
	}

	sql := "? IN (?)"
	if exclude {
		// A single NULL key would make NOT IN match nothing.
		sub = sub.Where(clause.Expr{SQL: "? IS NOT NULL", Vars: []any{keyCol}})
		sql = "? NOT IN (?)"
	}
	return clause.Expr{SQL: sql, Vars: []any{ownerCol, sub}}, nil
}

func (t *translator) fresh() *gorm.DB {
	return t.db.Session(&gorm.Session{NewDB: true})
}

func negate(e clause.Expression) clause.Expression {
	return clause.Expr{SQL: "NOT (?)", Vars: []any{e}}
}

func or(exprs []clause.Expression) clause.Expression {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	return clause.Or(exprs...)
}

func like(col clause.Column, pattern string) clause.Expression {
	return clause.Expr{SQL: `LOWER(?) LIKE ? ESCAPE '\'`, Vars: []any{col, strings.ToLower(pattern)}}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside a LIKE pattern.
func escapeLike(v any) string {
	return likeEscaper.Replace(fmt.Sprint(v))
}

func asTree(v any) (Tree, bool) {
	switch m := v.(type) {
	case Tree:
		return m, true
	case map[string]any:
		return Tree(m), true
	}
	return nil, false
}

func values(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// LookupField matches the Go name, the column name or the JSON-style
// lowerCamel name of a column-backed field.
func LookupField(s *schema.Schema, name string) *schema.Field {
	if f := s.LookUpField(name); f != nil && f.DBName != "" {
		return f
	}
	for _, f := range s.Fields {
		if f.DBName == "" {
			continue
		}
		if strings.EqualFold(f.Name, name) || strings.EqualFold(f.DBName, name) {
			return f
		}
	}
	return nil
}

// LookupRelation finds a relationship by Go field name, case-insensitively.
func LookupRelation(s *schema.Schema, name string) *schema.Relationship {
	if rel, ok := s.Relationships.Relations[name]; ok {
		return rel
	}
	for relName, rel := range s.Relationships.Relations {
		if strings.EqualFold(relName, name) {
			return rel
		}
	}
	return nil
}
