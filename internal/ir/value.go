package ir

import (
	"fmt"
	"maps"
	"slices"
	"unicode/utf16"
)

// IRValue is a sealed union of the values actor state and call arguments
// may hold. There is no float member: frame IDs hash canonical JSON, and
// floats have no single canonical form.
type IRValue interface {
	irValue()
}

// IRNull is JSON null. It appears only when reading back stored data;
// canonical encoding rejects it.
type IRNull struct{}

// IRString is a string value.
type IRString string

// IRInt is an integer value.
type IRInt int64

// IRBool is a boolean value.
type IRBool bool

// IRArray is an ordered list of values.
type IRArray []IRValue

// IRObject maps field names to values. Iterate with SortedKeys when order
// matters.
type IRObject map[string]IRValue

func (IRNull) irValue()   {}
func (IRString) irValue() {}
func (IRInt) irValue()    {}
func (IRBool) irValue()   {}
func (IRArray) irValue()  {}
func (IRObject) irValue() {}

// Clone returns a deep copy of v that shares no mutable structure with it.
func Clone(v IRValue) IRValue {
	switch val := v.(type) {
	case IRArray:
		return val.Clone()
	case IRObject:
		return val.Clone()
	}
	return v
}

// Clone returns a deep copy of the array. nil stays nil.
func (arr IRArray) Clone() IRArray {
	if arr == nil {
		return nil
	}
	out := make(IRArray, len(arr))
	for i := range arr {
		out[i] = Clone(arr[i])
	}
	return out
}

// Clone returns a deep copy of the object. A nil object clones to an empty,
// writable one.
func (obj IRObject) Clone() IRObject {
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

// Equal reports whether a and b hold the same value. nil equals only nil.
func Equal(a, b IRValue) bool {
	switch av := a.(type) {
	case IRArray:
		bv, ok := b.(IRArray)
		return ok && slices.EqualFunc(av, bv, Equal)
	case IRObject:
		bv, ok := b.(IRObject)
		return ok && maps.EqualFunc(av, bv, Equal)
	default:
		// Scalars, IRNull and nil are comparable.
		return a == b
	}
}

// AsInt reads an integer field. A missing field (nil) reads as 0.
func AsInt(v IRValue) (int64, error) {
	if v == nil {
		return 0, nil
	}
	n, ok := v.(IRInt)
	if !ok {
		return 0, fmt.Errorf("expected int, got %T", v)
	}
	return int64(n), nil
}

// ToGo converts v to plain Go values (string, int64, bool, []any,
// map[string]any, nil) for display and YAML comparison.
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRBool:
		return bool(val)
	case IRArray:
		out := make([]any, 0, len(val))
		for _, elem := range val {
			out = append(out, ToGo(elem))
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	}
	return nil
}

// SortedKeys returns the object's keys ordered by UTF-16 code units, the
// order canonical JSON uses. It differs from byte order for characters
// outside the BMP.
func (obj IRObject) SortedKeys() []string {
	keys := slices.Collect(maps.Keys(obj))
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}
