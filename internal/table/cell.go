package table

import (
	"encoding/base64"
	"strconv"

	json "github.com/goccy/go-json"
)

// Kind identifies which value a Cell carries.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindBlob
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBlob:
		return "blob"
	case KindText:
		return "text"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Cell is a single type-tagged value in a Table row.
// The zero value is a null cell.
type Cell struct {
	kind Kind
	i    int64
	f    float64
	b    []byte
	s    string
}

// Null returns a null cell.
func Null() Cell { return Cell{} }

// Int returns an integer cell.
func Int(v int64) Cell { return Cell{kind: KindInteger, i: v} }

// Float returns a float cell.
func Float(v float64) Cell { return Cell{kind: KindFloat, f: v} }

// Blob returns a blob cell holding a copy of v.
func Blob(v []byte) Cell {
	if v == nil {
		return Cell{kind: KindBlob, b: []byte{}}
	}
	return Cell{kind: KindBlob, b: append([]byte(nil), v...)}
}

// Text returns a text cell.
func Text(v string) Cell { return Cell{kind: KindText, s: v} }

// Bool returns a text cell holding "true" or "false". Boolean columns are
// carried as text and coerced back by EncodeJSON.
func Bool(v bool) Cell { return Text(strconv.FormatBool(v)) }

// NullableText returns Text(*v), or Null when v is nil.
func NullableText(v *string) Cell {
	if v == nil {
		return Null()
	}
	return Text(*v)
}

// Kind reports the active tag.
func (c Cell) Kind() Kind { return c.kind }

// IsNull reports whether the cell is null.
func (c Cell) IsNull() bool { return c.kind == KindNull }

// Int returns the integer value and whether the cell is an integer.
func (c Cell) Int() (int64, bool) { return c.i, c.kind == KindInteger }

// Float returns the float value and whether the cell is a float.
func (c Cell) Float() (float64, bool) { return c.f, c.kind == KindFloat }

// Blob returns a copy of the blob value and whether the cell is a blob.
func (c Cell) Blob() ([]byte, bool) {
	if c.kind != KindBlob {
		return nil, false
	}
	return append([]byte(nil), c.b...), true
}

// Text returns the text value and whether the cell is text.
func (c Cell) Text() (string, bool) { return c.s, c.kind == KindText }

// String renders the cell for display. Null renders as the empty string.
func (c Cell) String() string {
	switch c.kind {
	case KindInteger:
		return strconv.FormatInt(c.i, 10)
	case KindFloat:
		return strconv.FormatFloat(c.f, 'g', -1, 64)
	case KindBlob:
		return base64.StdEncoding.EncodeToString(c.b)
	case KindText:
		return c.s
	default:
		return ""
	}
}

// Clone returns a deep copy; blob bytes are never shared.
func (c Cell) Clone() Cell {
	if c.kind == KindBlob {
		return Blob(c.b)
	}
	return c
}

// Equal reports whether two cells carry the same tag and value.
func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindInteger:
		return c.i == o.i
	case KindFloat:
		return c.f == o.f
	case KindBlob:
		return string(c.b) == string(o.b)
	case KindText:
		return c.s == o.s
	default:
		return true
	}
}

// MarshalJSON encodes the cell with native JSON types. Blobs become base64 text.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case KindInteger:
		return []byte(strconv.FormatInt(c.i, 10)), nil
	case KindFloat:
		return json.Marshal(c.f)
	case KindBlob:
		return json.Marshal(base64.StdEncoding.EncodeToString(c.b))
	case KindText:
		return json.Marshal(c.s)
	default:
		return []byte("null"), nil
	}
}
