package services

import (
	"bytes"
	"encoding/json"

	"github.com/thereayou/bizdesk/internal/apperror"
)

type RelationMode string

const (
	NestedCreate RelationMode = "nestedCreate"
	ConnectByID  RelationMode = "connectById"
	SetByIDs     RelationMode = "setByIds"
)

// RelationInput is the write instruction for one relation field.
type RelationInput struct {
	Mode    RelationMode    `json:"mode"`
	IDs     []uint          `json:"ids,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RelationSpec declares a writable relation of a module.
type RelationSpec struct {
	// Field is the JSON key carrying the relation.
	Field string
	// Relation is the gorm relationship name on the model.
	Relation string
	// Mode is applied to the legacy {"id":n} and [{"id":n}] shorthands.
	Mode RelationMode
}

type idRef struct {
	ID *uint `json:"id"`
}

// decodeRelation accepts the tagged form, or the legacy shorthands which
// are mapped onto spec.Mode.
func decodeRelation(spec RelationSpec, raw json.RawMessage) (*RelationInput, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	invalid := func() error {
		return apperror.Validation(map[string][]string{spec.Field: {"invalid relation input"}})
	}

	if raw[0] == '{' {
		var shape map[string]json.RawMessage
		if err := json.Unmarshal(raw, &shape); err != nil {
			return nil, invalid()
		}
		if _, tagged := shape["mode"]; tagged {
			var in RelationInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, invalid()
			}
			switch in.Mode {
			case NestedCreate:
				if len(in.Payload) == 0 {
					return nil, invalid()
				}
			case ConnectByID, SetByIDs:
				if in.Mode == ConnectByID && len(in.IDs) == 0 {
					return nil, invalid()
				}
			default:
				return nil, invalid()
			}
			return &in, nil
		}
	}

	if spec.Mode == NestedCreate {
		return &RelationInput{Mode: NestedCreate, Payload: raw}, nil
	}

	switch raw[0] {
	case '{':
		var ref idRef
		if err := json.Unmarshal(raw, &ref); err != nil || ref.ID == nil {
			return nil, invalid()
		}
		return &RelationInput{Mode: spec.Mode, IDs: []uint{*ref.ID}}, nil
	case '[':
		var refs []idRef
		if err := json.Unmarshal(raw, &refs); err != nil {
			return nil, invalid()
		}
		ids := make([]uint, 0, len(refs))
		for _, ref := range refs {
			if ref.ID == nil {
				return nil, invalid()
			}
			ids = append(ids, *ref.ID)
		}
		return &RelationInput{Mode: spec.Mode, IDs: ids}, nil
	}
	return nil, invalid()
}

// Input is a decoded request body.
type Input[T any] struct {
	Entity    *T
	Relations map[string]*RelationInput
	// Present lists the top-level scalar keys found in the body.
	Present []string
}

// split separates relation keys from scalar keys.
func split(body []byte, specs []RelationSpec) (map[string]json.RawMessage, map[string]*RelationInput, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, nil, decodeError(err)
	}
	if fields == nil {
		return nil, nil, apperror.BadRequest("request body must be a JSON object")
	}
	relations := map[string]*RelationInput{}
	for _, spec := range specs {
		raw, ok := fields[spec.Field]
		if !ok {
			continue
		}
		delete(fields, spec.Field)
		in, err := decodeRelation(spec, raw)
		if err != nil {
			return nil, nil, err
		}
		if in != nil {
			relations[spec.Field] = in
		}
	}
	return fields, relations, nil
}

// decodeInto unmarshals the scalar keys over dst.
func decodeInto[T any](dst *T, body []byte, specs []RelationSpec) (*Input[T], error) {
	fields, relations, err := split(body, specs)
	if err != nil {
		return nil, err
	}
	scalar, err := json.Marshal(fields)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if err := json.Unmarshal(scalar, dst); err != nil {
		return nil, decodeError(err)
	}
	present := make([]string, 0, len(fields))
	for k := range fields {
		present = append(present, k)
	}
	return &Input[T]{Entity: dst, Relations: relations, Present: present}, nil
}
