package logging

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func TestLoggerRingBuffer(t *testing.T) {
	l := New(3, LevelDebug, nil)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		l.Log(LevelInfo, CatSystem, msg, nil)
	}

	entries := l.GetEntries(0, nil, nil)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	got := []string{entries[0].Message, entries[1].Message, entries[2].Message}
	if strings.Join(got, "") != "cde" {
		t.Errorf("expected oldest-first c,d,e, got %v", got)
	}
}

func TestLoggerMinLevel(t *testing.T) {
	l := New(10, LevelInfo, nil)
	l.Log(LevelDebug, CatLPA, "hidden", nil)
	l.Log(LevelWarn, CatLPA, "shown", nil)

	if n := len(l.GetEntries(0, nil, nil)); n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}

	l.SetLevel(LevelDebug)
	l.Log(LevelDebug, CatLPA, "now shown", nil)
	if n := len(l.GetEntries(0, nil, nil)); n != 2 {
		t.Fatalf("expected 2 entries after lowering level, got %d", n)
	}
	if l.Level() != LevelDebug {
		t.Errorf("Level() = %v, want debug", l.Level())
	}
}

func TestLoggerFilters(t *testing.T) {
	l := New(10, LevelDebug, nil)
	l.Log(LevelDebug, CatHTTP, "one", nil)
	l.Log(LevelError, CatHTTP, "two", nil)
	l.Log(LevelError, CatBridge, "three", nil)
	l.Log(LevelInfo, CatBridge, "four", nil)

	warn := LevelWarn
	if n := len(l.GetEntries(0, &warn, nil)); n != 2 {
		t.Errorf("level filter: expected 2, got %d", n)
	}

	cat := CatBridge
	if n := len(l.GetEntries(0, nil, &cat)); n != 2 {
		t.Errorf("category filter: expected 2, got %d", n)
	}

	last := l.GetEntries(1, nil, nil)
	if len(last) != 1 || last[0].Message != "four" {
		t.Errorf("limit: expected most recent entry, got %+v", last)
	}
}

func TestLoggerStatsAndClear(t *testing.T) {
	l := New(10, LevelDebug, nil)
	l.Log(LevelInfo, CatCard, "x", nil)
	l.Log(LevelError, CatCard, "y", nil)

	s := l.Stats()
	if s.Total != 2 || s.ByLevel["error"] != 1 || s.ByCategory[CatCard] != 2 {
		t.Errorf("unexpected stats: %+v", s)
	}

	l.Clear()
	if n := l.Stats().Total; n != 0 {
		t.Errorf("expected empty buffer after Clear, got %d", n)
	}
}

func TestLoggerSink(t *testing.T) {
	var buf bytes.Buffer
	l := New(10, LevelDebug, &buf)
	l.Log(LevelWarn, CatCallback, "callback failed", map[string]any{"url": "http://x"})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("sink output is not JSON: %v (%q)", err, buf.String())
	}
	if line["level"] != "warn" || line["category"] != "callback" || line["url"] != "http://x" {
		t.Errorf("unexpected sink record: %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"loud", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEntryLevelJSON(t *testing.T) {
	data, err := json.Marshal(Entry{Level: LevelWarn, Category: CatSystem, Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"level":"warn"`) {
		t.Errorf("level should marshal by name: %s", data)
	}
}
