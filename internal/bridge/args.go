package bridge

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
)

// Request is one call into the bridge.
type Request struct {
	Endpoint string
	Args     Args
}

// Args is an insertion-ordered set of string arguments. Keys are unique; the
// first occurrence of a key wins. The zero value is an empty set.
type Args struct {
	keys   []string
	values map[string]string
}

// NewArgs builds Args from alternating key, value pairs. A trailing key
// without a value gets "".
func NewArgs(kv ...string) Args {
	var a Args
	for i := 0; i < len(kv); i += 2 {
		v := ""
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		a.add(kv[i], v)
	}
	return a
}

// ParseQuery decodes a raw "k=v&k2=v2" string, keeping pair order. Keys and
// values are percent-decoded; a segment that fails to decode is kept as-is.
func ParseQuery(raw string) Args {
	var a Args
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		a.add(unescape(k), unescape(v))
	}
	return a
}

func unescape(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		return d
	}
	return s
}

func (a *Args) add(k, v string) {
	if k == "" {
		return
	}
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, dup := a.values[k]; dup {
		return
	}
	a.keys = append(a.keys, k)
	a.values[k] = v
}

// Without returns a copy of a lacking the named keys.
func (a Args) Without(names ...string) Args {
	var out Args
	for _, k := range a.keys {
		skip := false
		for _, n := range names {
			if k == n {
				skip = true
				break
			}
		}
		if !skip {
			out.add(k, a.values[k])
		}
	}
	return out
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a.keys) }

// Keys returns the argument names in insertion order.
func (a Args) Keys() []string { return append([]string(nil), a.keys...) }

// Lookup returns the raw value and whether the key exists.
func (a Args) Lookup(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// String returns the value when the key exists with a non-empty value.
func (a Args) String(key string) (string, bool) {
	v, ok := a.values[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// StringPtr is String as a nullable value.
func (a Args) StringPtr(key string) *string {
	v, ok := a.String(key)
	if !ok {
		return nil
	}
	return &v
}

// Int returns the value parsed as a base-10 integer. Non-numeric text is absent.
func (a Args) Int(key string) (int, bool) {
	v, ok := a.String(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bool is present whenever the key exists. The value is true when empty,
// "1", starting with "y", or equal to "on" or "true", ignoring case.
func (a Args) Bool(key string) (value, present bool) {
	v, ok := a.values[key]
	if !ok {
		return false, false
	}
	return parseBool(v), true
}

// BoolOr returns Bool's value, or def when the key is absent.
func (a Args) BoolOr(key string, def bool) bool {
	if v, ok := a.Bool(key); ok {
		return v
	}
	return def
}

func parseBool(v string) bool {
	lower := strings.ToLower(v)
	return lower == "" || lower == "1" || strings.HasPrefix(lower, "y") || lower == "on" || lower == "true"
}

// RequireString returns the value or a missing_arg_<key> error.
func (a Args) RequireString(key string) (string, error) {
	v, ok := a.String(key)
	if !ok {
		return "", MissingArg(key)
	}
	return v, nil
}

// RequireBool returns the value or a missing_arg_<key> error.
func (a Args) RequireBool(key string) (bool, error) {
	v, ok := a.Bool(key)
	if !ok {
		return false, MissingArg(key)
	}
	return v, nil
}

// RequireSlotAndPort decodes slotId and portId, checking slotId first.
func (a Args) RequireSlotAndPort() (lpa.CardPort, error) {
	slot, ok := a.Int("slotId")
	if !ok {
		return lpa.CardPort{}, MissingArg("slotId")
	}
	port, ok := a.Int("portId")
	if !ok {
		return lpa.CardPort{}, MissingArg("portId")
	}
	return lpa.CardPort{SlotID: slot, PortID: port}, nil
}
