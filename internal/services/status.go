package services

import (
	"context"
	"strings"

	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/database"
)

// enumStatus builds a StatusSpec for a string enum column.
func enumStatus[T any, S ~string](field string, get func(*T) S, allowed ...S) *StatusSpec[T] {
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return &StatusSpec[T]{
		Field:   field,
		Current: func(e *T) string { return string(get(e)) },
		Resolve: func(_ context.Context, _ *database.Database, _ *AuthContext, _ *T, in StatusInput) (any, string, error) {
			for _, a := range allowed {
				if string(a) == in.Status {
					return a, in.Status, nil
				}
			}
			return nil, "", apperror.Validation(map[string][]string{
				"status": {"must be one of: " + strings.Join(names, ", ")},
			})
		},
	}
}

// closedTransitions rejects any change away from a terminal status.
func closedTransitions(entity string, terminal ...string) func(old, next string) error {
	return func(old, next string) error {
		for _, t := range terminal {
			if old == t && next != old {
				return apperror.BadRequest("cannot change %s status from %s to %s", entity, old, next)
			}
		}
		return nil
	}
}
