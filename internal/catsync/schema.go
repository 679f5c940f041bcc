package catsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"catsync-go/internal/model"
)

// SchemaVersion is the detected generation of a snapshot.
type SchemaVersion int

const (
	VersionUnknown SchemaVersion = iota
	VersionCurrent
	VersionLegacy
)

func (v SchemaVersion) String() string {
	switch v {
	case VersionCurrent:
		return "current"
	case VersionLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// legacyCollections are the per-status top-level maps of old exports, in the
// order they are folded into the video domain.
var legacyCollections = []string{"viewed", "want", "browsed"}

// legacyActorCollection is the old name of the actor domain.
const legacyActorCollection = "actors"

// legacyStatuses maps status literals of old exports to current statuses.
// "Not yet watched" literals become browsed: the record was seen, just not watched.
var legacyStatuses = map[string]model.Status{
	"watched":    model.StatusViewed,
	"seen":       model.StatusViewed,
	"wanted":     model.StatusWant,
	"wishlist":   model.StatusWant,
	"unviewed":   model.StatusBrowsed,
	"unwatched":  model.StatusBrowsed,
	"not_viewed": model.StatusBrowsed,
	"notviewed":  model.StatusBrowsed,
}

// reservedMembers are top-level snapshot members that never hold video records.
var reservedMembers = map[string]bool{
	"version":      true,
	"timestamp":    true,
	"data":         true,
	"actorRecords": true,
	"newWorks":     true,
	"settings":     true,
	"userProfile":  true,
	"logs":         true,
	"importStats":  true,
	"viewed":       true,
	"want":         true,
	"browsed":      true,
	"actors":       true,
}

// DetectVersion classifies a raw snapshot. It returns an error only if raw is
// not a JSON object.
func DetectVersion(raw []byte) (SchemaVersion, error) {
	top, err := parseObject(raw)
	if err != nil {
		return VersionUnknown, err
	}
	return detect(top), nil
}

func detect(top map[string]json.RawMessage) SchemaVersion {
	if hasVersionHeader(top) {
		return VersionCurrent
	}

	for _, name := range legacyCollections {
		if isObject(top[name]) {
			return VersionLegacy
		}
	}
	if isObject(top[legacyActorCollection]) {
		return VersionLegacy
	}

	records, _ := primaryRecords(top)
	keys := sortedKeys(records)
	for _, k := range keys {
		if hasLegacyStatus(records[k]) {
			return VersionLegacy
		}
	}

	if len(keys) > 0 {
		first, err := parseObject(records[keys[0]])
		if err != nil {
			return VersionUnknown
		}
		if _, ok := first["createdAt"]; ok {
			return VersionCurrent
		}
		if _, ok := first["updatedAt"]; ok {
			return VersionCurrent
		}
		return VersionLegacy
	}

	return VersionUnknown
}

func hasVersionHeader(top map[string]json.RawMessage) bool {
	return model.Present(top["version"]) || model.Present(top["timestamp"])
}

// primaryRecords returns the main collection of video records and the top-level
// members it was read from: the "data" map when present, otherwise every
// unreserved top-level member that holds an object.
func primaryRecords(top map[string]json.RawMessage) (map[string]json.RawMessage, []string) {
	if raw, ok := top["data"]; ok {
		records, err := parseObject(raw)
		if err != nil {
			return nil, nil
		}
		return records, []string{"data"}
	}

	records := make(map[string]json.RawMessage)
	var members []string
	for k, v := range top {
		if reservedMembers[k] || !isObject(v) {
			continue
		}
		records[k] = v
		members = append(members, k)
	}
	return records, members
}

// hasLegacyStatus reports whether a record carries an old status literal or a
// binary viewed flag.
func hasLegacyStatus(raw json.RawMessage) bool {
	fields, err := parseObject(raw)
	if err != nil {
		return false
	}
	if s, ok := fields["status"]; ok {
		var status string
		if json.Unmarshal(s, &status) == nil {
			lower := strings.ToLower(status)
			if _, legacy := legacyStatuses[lower]; legacy {
				return true
			}
			// Current exports write statuses in lower case only.
			if lower != status && model.Status(lower).Valid() {
				return true
			}
		}
	}
	if v, ok := fields["viewed"]; ok {
		var flag bool
		if json.Unmarshal(v, &flag) == nil {
			return true
		}
	}
	return false
}

func parseObject(raw []byte) (map[string]json.RawMessage, error) {
	if !isObject(raw) {
		return nil, fmt.Errorf("not a JSON object")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func isObject(raw []byte) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 0 && s[0] == '{'
}
