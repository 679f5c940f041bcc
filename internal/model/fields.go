package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Extensions holds the members of a record that this version does not model.
// They are carried through decode and encode unchanged so that data written by
// a newer exporter survives a round trip through an older one.
type Extensions map[string]json.RawMessage

// Equal reports whether both bags hold the same members with the same JSON values.
func (e Extensions) Equal(other Extensions) bool {
	if len(e) != len(other) {
		return false
	}
	for k, v := range e {
		w, ok := other[k]
		if !ok || !bytes.Equal(Canonical(v), Canonical(w)) {
			return false
		}
	}
	return true
}

// Clone returns a copy of e that shares no map storage with it.
func (e Extensions) Clone() Extensions {
	if e == nil {
		return nil
	}
	out := make(Extensions, len(e))
	for k, v := range e {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Millis is an epoch timestamp in milliseconds.
// It decodes from a JSON number, a numeric string or an RFC 3339 string.
type Millis int64

// MillisOf converts t to epoch milliseconds.
func MillisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time returns m as a UTC time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*m = 0
		return nil
	}

	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
		if str == "" {
			*m = 0
			return nil
		}
		if n, err := strconv.ParseInt(str, 10, 64); err == nil {
			*m = Millis(n)
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", str, err)
		}
		*m = MillisOf(t)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", s, err)
	}
	*m = Millis(int64(f))
	return nil
}

// Canonical returns a compact encoding of raw with object members sorted, so
// that two encodings of the same value compare equal byte for byte.
// Input that is not valid JSON is returned unchanged.
func Canonical(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

// Present reports whether raw holds a value other than JSON null.
func Present(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 0 && !bytes.Equal(s, []byte("null"))
}

// decodeWithExtensions unmarshals data into dst and returns the object members
// whose names are not listed in known.
func decodeWithExtensions(data []byte, dst any, known map[string]struct{}) (Extensions, error) {
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var ext Extensions
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if ext == nil {
			ext = make(Extensions)
		}
		ext[k] = Canonical(v)
	}
	return ext, nil
}

// encodeWithExtensions marshals src and adds the members of ext that src does
// not already define. Members are emitted in sorted order.
func encodeWithExtensions(src any, ext Extensions) ([]byte, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range ext {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

func fieldSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// sameSet reports whether a and b hold the same strings, ignoring order and duplicates.
func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, s := range a {
		as[s] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, ok := as[s]; !ok {
			return false
		}
		bs[s] = struct{}{}
	}
	return len(as) == len(bs)
}

// UnionStrings returns the sorted union of a and b without duplicates.
// The result is never nil.
func UnionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}
