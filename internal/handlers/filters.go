package handlers

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/query"
	"gopkg.in/yaml.v3"
)

//go:embed filters.yaml
var filtersYAML []byte

type FieldType string

const (
	FieldID       FieldType = "id"
	FieldNumber   FieldType = "number"
	FieldString   FieldType = "string"
	FieldEnum     FieldType = "enum"
	FieldBool     FieldType = "bool"
	FieldDate     FieldType = "date"
	FieldRelation FieldType = "relation"
)

// FilterField declares one filterable query-string key.
type FilterField struct {
	Type   FieldType  `yaml:"type"`
	Ops    []query.Op `yaml:"ops"`
	Values []string   `yaml:"values"`
}

func (f FilterField) allows(op query.Op) bool {
	ops := f.Ops
	if len(ops) == 0 {
		ops = defaultOps[f.Type]
	}
	return slices.Contains(ops, op)
}

var defaultOps = map[FieldType][]query.Op{
	FieldID:       {query.Equals, query.In, query.NotIn},
	FieldEnum:     {query.Equals, query.In, query.NotIn},
	FieldBool:     {query.Equals},
	FieldNumber:   {query.Equals, query.Lt, query.Lte, query.Gt, query.Gte},
	FieldDate:     {query.Equals, query.Lt, query.Lte, query.Gt, query.Gte},
	FieldString:   {query.Equals, query.Contains, query.StartsWith, query.EndsWith},
	FieldRelation: {query.Has},
}

// FilterSchema maps a query-string key to its declaration.
type FilterSchema map[string]FilterField

var filterSchemas = mustLoadFilters(filtersYAML)

func mustLoadFilters(raw []byte) map[string]FilterSchema {
	var out map[string]FilterSchema
	if err := yaml.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("handlers: bad filters.yaml: %v", err))
	}
	return out
}

// FiltersFor returns the schema of module, or an empty one.
func FiltersFor(module string) FilterSchema {
	if s, ok := filterSchemas[module]; ok {
		return s
	}
	return FilterSchema{}
}

// ListParams is the parsed query string of a list request.
type ListParams struct {
	Page           int
	Limit          int
	Search         string
	OrderBy        string
	OrderDirection query.Direction
	StartDate      *time.Time
	EndDate        *time.Time
	Include        map[string]any
	Own            bool
	Filters        query.Tree
}

var reservedParams = map[string]bool{
	"page": true, "limit": true, "search": true,
	"orderBy": true, "orderDirection": true,
	"startDate": true, "endDate": true,
	"include": true, "own": true, "fields": true,
	"token": true, "workspaceId": true,
}

// filterKey matches "status" and "amount[gte]".
var filterKey = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_.]*)(?:\[([A-Za-z]+)\])?$`)

// ParseQueryParams reads paging, ordering, dates, include and every other
// key as a filter declared in schema. Undeclared keys are rejected.
func ParseQueryParams(c *gin.Context, schema FilterSchema) (*ListParams, error) {
	p := &ListParams{
		Page:           atoiDefault(c.Query("page"), query.DefaultPage),
		Limit:          atoiDefault(c.Query("limit"), query.DefaultLimit),
		Search:         strings.TrimSpace(c.Query("search")),
		OrderBy:        c.Query("orderBy"),
		OrderDirection: query.Direction(strings.ToLower(c.DefaultQuery("orderDirection", "desc"))),
		Filters:        query.Tree{},
	}
	if p.Page < 1 {
		p.Page = query.DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = query.DefaultLimit
	}
	if p.Limit > query.MaxLimit {
		p.Limit = query.MaxLimit
	}
	p.Own, _ = strconv.ParseBool(c.Query("own"))

	var err error
	if p.StartDate, err = parseDateParam("startDate", c.Query("startDate"), false); err != nil {
		return nil, err
	}
	if p.EndDate, err = parseDateParam("endDate", c.Query("endDate"), true); err != nil {
		return nil, err
	}
	if raw := c.Query("include"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Include); err != nil {
			return nil, apperror.BadRequest("include must be a JSON object")
		}
	}

	values := c.Request.URL.Query()
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if reservedParams[key] {
			continue
		}
		if err := addFilter(p.Filters, schema, key, values[key]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func addFilter(where query.Tree, schema FilterSchema, key string, raw []string) error {
	m := filterKey.FindStringSubmatch(key)
	if m == nil {
		return apperror.BadRequest("invalid filter %q", key)
	}
	name, op := m[1], query.Op(m[2])
	field, ok := schema[name]
	if !ok {
		return apperror.BadRequest("unknown filter field %q", name)
	}

	var parts []string
	for _, r := range raw {
		for _, v := range strings.Split(r, ",") {
			if v = strings.TrimSpace(v); v != "" {
				parts = append(parts, v)
			}
		}
	}
	if len(parts) == 0 {
		return nil
	}

	if op == "" {
		switch {
		case field.Type == FieldRelation:
			op = query.Has
		case len(parts) > 1:
			op = query.In
		default:
			op = query.Equals
		}
	}
	if !field.allows(op) {
		return apperror.BadRequest("operator %q is not allowed on %q", op, name)
	}

	typed := make([]any, 0, len(parts))
	for _, v := range parts {
		tv, err := coerce(name, field, op, v)
		if err != nil {
			return err
		}
		typed = append(typed, tv)
	}

	switch op {
	case query.In, query.NotIn, query.Has:
		where.Set(name, op, typed)
	default:
		if len(typed) > 1 {
			return apperror.BadRequest("%q takes a single value with %q", name, op)
		}
		where.Set(name, op, typed[0])
	}
	return nil
}

func coerce(name string, field FilterField, op query.Op, v string) (any, error) {
	switch field.Type {
	case FieldID, FieldRelation:
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, apperror.BadRequest("%q must be an id", name)
		}
		return uint(id), nil
	case FieldNumber:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, apperror.BadRequest("%q must be a number", name)
		}
		return f, nil
	case FieldBool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, apperror.BadRequest("%q must be true or false", name)
		}
		return b, nil
	case FieldDate:
		t, dayOnly, err := parseDate(v)
		if err != nil {
			return nil, apperror.BadRequest("%q must be a date", name)
		}
		if dayOnly && (op == query.Lte || op == query.Gt) {
			t = endOfDay(t)
		}
		return t, nil
	case FieldEnum:
		if len(field.Values) > 0 && !slices.Contains(field.Values, v) {
			return nil, apperror.BadRequest("%q must be one of %s", name, strings.Join(field.Values, ", "))
		}
		return v, nil
	default:
		return v, nil
	}
}

// parseDateParam reads a range bound. A bare date used as an upper bound
// covers the whole day.
func parseDateParam(name, v string, upper bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, dayOnly, err := parseDate(v)
	if err != nil {
		return nil, apperror.BadRequest("%s must be a date", name)
	}
	if dayOnly && upper {
		t = endOfDay(t)
	}
	return &t, nil
}

func parseDate(v string) (t time.Time, dayOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	t, err = time.Parse(time.DateOnly, v)
	return t, err == nil, err
}

func endOfDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func atoiDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
