package table

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// booleanColumns carry "true"/"false" text that is rendered as JSON booleans.
var booleanColumns = map[string]struct{}{
	ColumnSuccess: {},
	ColumnEnabled: {},
}

// EncodeJSON renders t as a JSON array with one object per row. Object keys
// follow the column order and null cells are always emitted as null.
func EncodeJSON(t *Table) (string, error) {
	if t == nil {
		return "[]", nil
	}

	keys := make([][]byte, len(t.columns))
	for i, c := range t.columns {
		k, err := marshalNoEscape(c)
		if err != nil {
			return "", fmt.Errorf("encode column %q: %w", c, err)
		}
		keys[i] = k
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for r, row := range t.rows {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, cell := range row {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(keys[i])
			buf.WriteByte(':')

			v, err := encodeCell(t.columns[i], cell)
			if err != nil {
				return "", fmt.Errorf("encode row %d column %q: %w", r, t.columns[i], err)
			}
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

func encodeCell(column string, cell Cell) ([]byte, error) {
	if s, ok := cell.Text(); ok {
		if _, isBool := booleanColumns[column]; isBool {
			switch {
			case strings.EqualFold(s, "true"):
				return []byte("true"), nil
			case strings.EqualFold(s, "false"):
				return []byte("false"), nil
			}
		}
		return marshalNoEscape(s)
	}
	return cell.MarshalJSON()
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
