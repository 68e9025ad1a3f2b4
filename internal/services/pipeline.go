package services

import (
	"context"

	"github.com/thereayou/bizdesk/internal/database"
	"gorm.io/gorm"
)

type Phase string

// Before stages may reject or reshape the input. Within stages share the
// primary transaction. After stages run once the transaction committed
// and cannot fail the request.
const (
	BeforeCreate       Phase = "beforeCreate"
	WithinCreate       Phase = "withinCreate"
	AfterCreate        Phase = "afterCreate"
	BeforeUpdate       Phase = "beforeUpdate"
	WithinUpdate       Phase = "withinUpdate"
	AfterUpdate        Phase = "afterUpdate"
	BeforeDelete       Phase = "beforeDelete"
	WithinDelete       Phase = "withinDelete"
	AfterDelete        Phase = "afterDelete"
	BeforeStatusChange Phase = "beforeStatusChange"
	WithinStatusChange Phase = "withinStatusChange"
	AfterStatusChange  Phase = "afterStatusChange"
)

// StatusChangeEvent describes a status transition of one entity.
type StatusChangeEvent struct {
	EntityID  uint           `json:"entityId"`
	OldStatus string         `json:"oldStatus"`
	NewStatus string         `json:"newStatus"`
	Note      string         `json:"note,omitempty"`
	SendSMS   bool           `json:"sendSms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Mutation is the state handed to every stage.
type Mutation[T any] struct {
	Auth *AuthContext
	// Entity is the record being written. Before stages may modify it.
	Entity *T
	// Previous is the stored record for update, delete and status changes.
	Previous *T
	// Fields lists the Go field names an update writes.
	Fields []string
	Status *StatusChangeEvent
	// Tx is only set for Within stages.
	Tx *gorm.DB
	// DB is bound to Tx during Within stages.
	DB *database.Database
}

type Stage[T any] struct {
	Name  string
	Phase Phase
	Run   func(ctx context.Context, m *Mutation[T]) error
}

func stagesFor[T any](stages []Stage[T], phase Phase) []Stage[T] {
	var out []Stage[T]
	for _, s := range stages {
		if s.Phase == phase {
			out = append(out, s)
		}
	}
	return out
}
