package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

var errCanonicalNull = errors.New("null is forbidden in canonical JSON")

// MarshalCanonical encodes v as canonical JSON (RFC 8785 for the types IR
// allows). Frame IDs use it; stored payloads use MarshalStored.
//
// Compared to encoding/json: keys are sorted by UTF-16 code units, strings
// are NFC normalized and escape only what JSON requires, and floats and
// null are errors. v may be an IRValue or a plain Go value made of
// strings, ints, bools, []any and map[string]any.
func MarshalCanonical(v any) ([]byte, error) {
	iv, ok := v.(IRValue)
	if !ok {
		var err error
		if iv, err = (decoder{}).value(v); err != nil {
			return nil, err
		}
	}
	e := &encoder{canonical: true}
	if err := e.value(iv); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// MarshalStored encodes v like MarshalCanonical but writes IRNull as null.
// Handlers may keep null inside state and results, so the journal and state
// hashes use this form. Values without null encode identically.
func MarshalStored(v any) ([]byte, error) {
	iv, ok := v.(IRValue)
	if !ok {
		var err error
		if iv, err = (decoder{}).value(v); err != nil {
			return nil, err
		}
	}
	e := &encoder{canonical: true, nulls: true}
	if err := e.value(iv); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// MarshalIRValue encodes v as ordinary JSON: keys sorted, null allowed,
// HTML characters escaped. It is not suitable for hashing.
func MarshalIRValue(v IRValue) ([]byte, error) {
	e := &encoder{}
	if err := e.value(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// MarshalJSON encodes the object with sorted keys.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	return MarshalIRValue(obj)
}

// MarshalJSON encodes null.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

type encoder struct {
	buf       bytes.Buffer
	canonical bool
	// nulls permits IRNull in canonical mode.
	nulls bool
}

func (e *encoder) value(v IRValue) error {
	switch val := v.(type) {
	case nil:
		return errors.New("missing value")
	case IRNull:
		if e.canonical && !e.nulls {
			return errCanonicalNull
		}
		e.buf.WriteString("null")
	case IRString:
		return e.str(string(val))
	case IRInt:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case IRBool:
		e.buf.WriteString(strconv.FormatBool(bool(val)))
	case IRArray:
		e.buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.value(elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		e.buf.WriteByte(']')
	case IRObject:
		e.buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.str(k); err != nil {
				return err
			}
			e.buf.WriteByte(':')
			if err := e.value(val[k]); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		e.buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown IRValue type %T", v)
	}
	return nil
}

func (e *encoder) str(s string) error {
	if !e.canonical {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		e.buf.Write(data)
		return nil
	}

	e.buf.WriteByte('"')
	for _, r := range norm.NFC.String(s) {
		switch r {
		case '"':
			e.buf.WriteString(`\"`)
		case '\\':
			e.buf.WriteString(`\\`)
		case '\b':
			e.buf.WriteString(`\b`)
		case '\f':
			e.buf.WriteString(`\f`)
		case '\n':
			e.buf.WriteString(`\n`)
		case '\r':
			e.buf.WriteString(`\r`)
		case '\t':
			e.buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&e.buf, `\u%04x`, r)
				continue
			}
			// Invalid UTF-8 decodes to RuneError and is written as U+FFFD.
			e.buf.WriteRune(r)
		}
	}
	e.buf.WriteByte('"')
	return nil
}
