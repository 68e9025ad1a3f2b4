// Package query builds Prisma-shaped filter trees and applies them to gorm.
package query

import (
	"strings"
	"time"
)

type Op string

const (
	Equals     Op = "equals"
	Not        Op = "not"
	In         Op = "in"
	NotIn      Op = "notIn"
	Lt         Op = "lt"
	Lte        Op = "lte"
	Gt         Op = "gt"
	Gte        Op = "gte"
	Contains   Op = "contains"
	StartsWith Op = "startsWith"
	EndsWith   Op = "endsWith"
	// Has matches to-many relations containing any of the given ids.
	Has Op = "has"
)

// Tree is a where clause. Leaves are {op: value}; the keys AND, OR and NOT
// combine sub-trees; relation keys hold nested trees, optionally wrapped in
// some, none or every for to-many relations.
type Tree map[string]any

// Set merges op/value into the leaf addressed by a dotted path.
func (t Tree) Set(path string, op Op, value any) {
	node := t
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(Tree)
		if !ok {
			next = Tree{}
			node[p] = next
		}
		node = next
	}
	last := parts[len(parts)-1]
	leaf, ok := node[last].(Tree)
	if !ok {
		leaf = Tree{}
		node[last] = leaf
	}
	leaf[string(op)] = value
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type Order struct {
	Field     string
	Direction Direction
}

// Query is the rendered form of a Builder.
type Query struct {
	Where Tree
	// OrderBy keeps insertion order.
	OrderBy []Order
	// Include maps a relation to true or to a nested include map.
	Include map[string]any
	Skip    int
	Take    int
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

type Builder struct {
	where   Tree
	orderBy []Order
	include map[string]any
	page    int
	limit   int
}

func NewBuilder() *Builder {
	return &Builder{
		where: Tree{},
		page:  DefaultPage,
		limit: DefaultLimit,
	}
}

// Where adds a condition on field. The operator defaults to equals.
// "a.b" nests the condition under relation a.
func (b *Builder) Where(field string, value any, op ...Op) *Builder {
	o := Equals
	if len(op) > 0 {
		o = op[0]
	}
	b.where.Set(field, o, value)
	return b
}

// WhereTree attaches a pre-built sub-tree under key, replacing what was there.
func (b *Builder) WhereTree(key string, t Tree) *Builder {
	b.where[key] = t
	return b
}

// Search ORs a case-insensitive contains across fields.
func (b *Builder) Search(fields []string, value string) *Builder {
	value = strings.TrimSpace(value)
	if value == "" || len(fields) == 0 {
		return b
	}
	or := make([]Tree, 0, len(fields))
	for _, f := range fields {
		t := Tree{}
		t.Set(f, Contains, value)
		or = append(or, t)
	}
	if _, exists := b.where["OR"]; !exists {
		b.where["OR"] = or
		return b
	}
	and, _ := b.where["AND"].([]Tree)
	b.where["AND"] = append(and, Tree{"OR": or})
	return b
}

func (b *Builder) DateRange(field string, start, end *time.Time) *Builder {
	if start != nil {
		b.where.Set(field, Gte, *start)
	}
	if end != nil {
		b.where.Set(field, Lte, *end)
	}
	return b
}

func (b *Builder) NumericRange(field string, min, max *float64) *Builder {
	if min != nil {
		b.where.Set(field, Gte, *min)
	}
	if max != nil {
		b.where.Set(field, Lte, *max)
	}
	return b
}

// ArrayContains matches records whose to-many relation holds any of ids.
func (b *Builder) ArrayContains(field string, ids ...any) *Builder {
	if len(ids) == 0 {
		return b
	}
	b.where.Set(field, Has, ids)
	return b
}

func (b *Builder) SetOrderBy(field string, dir Direction) *Builder {
	if dir != Desc {
		dir = Asc
	}
	for i := range b.orderBy {
		if b.orderBy[i].Field == field {
			b.orderBy[i].Direction = dir
			return b
		}
	}
	b.orderBy = append(b.orderBy, Order{Field: field, Direction: dir})
	return b
}

func (b *Builder) SetInclude(include map[string]any) *Builder {
	b.include = include
	return b
}

// SetPagination clamps page to >= 1 and limit to 1..MaxLimit.
func (b *Builder) SetPagination(page, limit int) *Builder {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	b.page, b.limit = page, limit
	return b
}

func (b *Builder) Build() Query {
	return Query{
		Where:   b.where,
		OrderBy: b.orderBy,
		Include: b.include,
		Skip:    (b.page - 1) * b.limit,
		Take:    b.limit,
	}
}
