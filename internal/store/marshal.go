package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/ckpt/internal/ir"
)

// marshalState converts a state object to canonical JSON TEXT, keeping any
// null the handler stored. A nil object is stored as NULL.
func marshalState(state ir.IRObject) (sql.NullString, error) {
	if state == nil {
		return sql.NullString{}, nil
	}
	data, err := ir.MarshalStored(state)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal state: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// marshalResult converts a handler result to canonical JSON TEXT. A nil
// result is stored as NULL.
func marshalResult(result ir.IRValue) (sql.NullString, error) {
	if result == nil {
		return sql.NullString{}, nil
	}
	data, err := ir.MarshalStored(result)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal result: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalState parses stored JSON TEXT to IRObject. Integers stay exact
// beyond 2^53.
func unmarshalState(data sql.NullString) (ir.IRObject, error) {
	if !data.Valid {
		return nil, nil
	}
	v, err := ir.UnmarshalStored([]byte(data.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("unmarshal state: expected object, got %T", v)
	}
	return obj, nil
}

func unmarshalResult(data sql.NullString) (ir.IRValue, error) {
	if !data.Valid {
		return nil, nil
	}
	v, err := ir.UnmarshalStored([]byte(data.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return v, nil
}
