package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// decoder turns decoded Go values into IRValues.
type decoder struct {
	// nulls decode to IRNull instead of failing.
	nulls bool
	// wholeFloats accepts float64 values with no fraction as ints. YAML and
	// untyped JSON decoders produce those for plain integers.
	wholeFloats bool
}

// UnmarshalIRValue parses JSON into an IRValue. Floats and null are
// rejected. CLI arguments and stored results go through here.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	return decoder{}.decode(data)
}

// UnmarshalStored parses JSON written by MarshalStored, keeping null as
// IRNull. Floats are still rejected.
func UnmarshalStored(data []byte) (IRValue, error) {
	return decoder{nulls: true}.decode(data)
}

// FromGo converts a value decoded by encoding/json or yaml.v3 into an
// IRValue.
func FromGo(v any) (IRValue, error) {
	return decoder{wholeFloats: true}.value(v)
}

// UnmarshalJSON decodes an object, keeping nulls as IRNull so stored data
// reads back unchanged.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	v, err := decoder{nulls: true}.decode(data)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return fmt.Errorf("expected object, got %T", v)
	}
	*obj = o
	return nil
}

// UnmarshalJSON decodes an array, keeping nulls as IRNull.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	v, err := decoder{nulls: true}.decode(data)
	if err != nil {
		return err
	}
	a, ok := v.(IRArray)
	if !ok {
		return fmt.Errorf("expected array, got %T", v)
	}
	*arr = a
	return nil
}

func (d decoder) decode(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return d.value(raw)
}

func (d decoder) value(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		if d.nulls {
			return IRNull{}, nil
		}
		return nil, errors.New("null is forbidden in IR")
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case json.Number:
		if strings.ContainsAny(string(val), ".eE") {
			return nil, fmt.Errorf("floats are forbidden in IR: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case float64:
		if d.wholeFloats && val == float64(int64(val)) {
			return IRInt(int64(val)), nil
		}
		return nil, fmt.Errorf("floats are forbidden in IR: %v", val)
	case float32:
		return nil, fmt.Errorf("floats are forbidden in IR: %v", val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			iv, err := d.value(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = iv
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			iv, err := d.value(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			obj[k] = iv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
