package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrEmpty is returned by Parse when the input holds no value.
var ErrEmpty = errors.New("document is empty")

// Parse decodes a single JSON value from data.
//
// Trailing content after the value is an error.
func Parse(data []byte) (*Value, error) {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	v, err := decodeValue(d, false)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	if _, err := d.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected trailing data")
		}
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	return v, nil
}

func decodeValue(d *json.Decoder, nested bool) (*Value, error) {
	tok, err := d.Token()
	if err != nil {
		if nested && errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return NewNull(), nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		return NewNumber(t), nil
	case string:
		return NewString(t), nil
	case json.Delim:
		switch t {
		case '[':
			seq := NewSequence()
			for d.More() {
				e, err := decodeValue(d, true)
				if err != nil {
					return nil, err
				}
				seq.seq = append(seq.seq, e)
			}
			if err := closeToken(d); err != nil {
				return nil, err
			}
			return seq, nil
		case '{':
			m := NewMapping()
			for d.More() {
				kt, err := d.Token()
				if err != nil {
					return nil, unexpectedEOF(err)
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", kt)
				}
				e, err := decodeValue(d, true)
				if err != nil {
					return nil, err
				}
				m.obj.Set(key, e)
			}
			if err := closeToken(d); err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func closeToken(d *json.Decoder) error {
	_, err := d.Token()
	return unexpectedEOF(err)
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// MarshalJSON returns the compact serialization of v.
//
// HTML characters are not escaped.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf, newStringEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces v with the value decoded from data.
func (v *Value) UnmarshalJSON(data []byte) error {
	p, err := Parse(data)
	if err != nil {
		return err
	}
	*v = *p
	return nil
}

func newStringEncoder(buf *bytes.Buffer) *json.Encoder {
	e := json.NewEncoder(buf)
	e.SetEscapeHTML(false)
	return e
}

func (v *Value) encode(buf *bytes.Buffer, enc *json.Encoder) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		if v.n == "" {
			buf.WriteByte('0')
		} else if !json.Valid([]byte(v.n)) {
			return fmt.Errorf("invalid number literal %q", string(v.n))
		} else {
			buf.WriteString(string(v.n))
		}
	case String:
		return encodeString(buf, enc, v.s)
	case Sequence:
		buf.WriteByte('[')
		for i, e := range v.seq {
			if i != 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf, enc); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Mapping:
		buf.WriteByte('{')
		first := true
		for p := v.obj.Oldest(); p != nil; p = p.Next() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err := encodeString(buf, enc, p.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := p.Value.encode(buf, enc); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown kind %s", v.kind)
	}
	return nil
}

// encodeString writes s quoted. The encoder appends a newline that is
// trimmed immediately.
func encodeString(buf *bytes.Buffer, enc *json.Encoder, s string) error {
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}
