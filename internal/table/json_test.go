package table

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestEncodeJSON(t *testing.T) {
	tbl := New("iccid", "enabled", "count", "ratio", "raw", "nickname", "success")
	tbl.AddRow(Text("8901"), Bool(true), Int(3), Float(0.5), Blob([]byte("hi")), Null(), Text("FALSE"))
	tbl.AddRow(Text("8902"), Text("maybe"), Int(0), Float(2), Blob(nil), Text("<home>"), Text("true"))

	out, err := EncodeJSON(tbl)
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)

	for _, row := range rows {
		for _, c := range tbl.Columns() {
			_, present := row[c]
			require.True(t, present, "column %q missing", c)
		}
	}

	require.Equal(t, true, rows[0]["enabled"])
	require.Equal(t, false, rows[0]["success"])
	require.Nil(t, rows[0]["nickname"])
	require.Equal(t, float64(3), rows[0]["count"])
	require.Equal(t, 0.5, rows[0]["ratio"])
	require.Equal(t, "aGk=", rows[0]["raw"])

	require.Equal(t, "maybe", rows[1]["enabled"])
	require.Equal(t, true, rows[1]["success"])
	require.Equal(t, "<home>", rows[1]["nickname"])
	require.Equal(t, "", rows[1]["raw"])
}

func TestEncodeJSONKeepsColumnOrder(t *testing.T) {
	tbl := New("z", "a", "m")
	tbl.AddRow(Int(1), Int(2), Null())

	out, err := EncodeJSON(tbl)
	require.NoError(t, err)
	require.Equal(t, `[{"z":1,"a":2,"m":null}]`, out)
}

func TestEncodeJSONEmpty(t *testing.T) {
	out, err := EncodeJSON(Empty())
	require.NoError(t, err)
	require.Equal(t, "[]", out)

	out, err = EncodeJSON(New("a"))
	require.NoError(t, err)
	require.Equal(t, "[]", out)
}

func TestEncodeJSONNoHTMLEscaping(t *testing.T) {
	out, err := EncodeJSON(Single("url", Text("https://x/?a=1&b=2")))
	require.NoError(t, err)
	require.Equal(t, `[{"url":"https://x/?a=1&b=2"}]`, out)
}
