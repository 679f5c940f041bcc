package catsync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"catsync-go/internal/model"
)

// CollisionPolicy decides what happens when a key of a secondary legacy
// collection is already present in the video domain.
type CollisionPolicy string

const (
	// CollisionSkip keeps the record that was migrated first.
	CollisionSkip CollisionPolicy = "skip"
	// CollisionPriority merges both records, keeping the higher status.
	CollisionPriority CollisionPolicy = "priority"
)

// ParseCollisionPolicy parses a policy name. The empty string means CollisionSkip.
func ParseCollisionPolicy(name string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(name)); p {
	case "":
		return CollisionSkip, nil
	case CollisionSkip, CollisionPriority:
		return p, nil
	}
	return "", fmt.Errorf("unknown legacy collision policy %q (expected skip or priority)", name)
}

// Normalized is a snapshot rewritten into the current schema.
type Normalized struct {
	Snapshot *model.Snapshot
	Version  SchemaVersion
	Warnings []error
}

// Migrator rewrites snapshots of any known generation into the current schema.
type Migrator struct {
	clock      Clock
	collisions CollisionPolicy
	logger     Logger
}

// NewMigrator creates a Migrator. Backfilled timestamps come from clock.
func NewMigrator(clock Clock, collisions CollisionPolicy, logger Logger) *Migrator {
	if collisions == "" {
		collisions = CollisionSkip
	}
	return &Migrator{clock: clock, collisions: collisions, logger: logger}
}

// Normalize detects the generation of raw and returns it in the current schema.
// Current snapshots are decoded as is. Snapshots of unknown shape are decoded
// best-effort and a schema warning is attached.
func (m *Migrator) Normalize(raw []byte) (*Normalized, error) {
	top, err := parseObject(raw)
	if err != nil {
		return nil, wrapError(KindSchema, err, "snapshot is unreadable")
	}

	version := detect(top)
	out := &Normalized{Version: version}

	switch version {
	case VersionLegacy:
		snap, err := m.migrateLegacy(top)
		if err != nil {
			return nil, wrapError(KindSchema, err, "migrating legacy snapshot")
		}
		m.logger.Info("migrated legacy snapshot", "videos", len(snap.Data), "actors", len(snap.ActorRecords))
		out.Snapshot = snap
	case VersionCurrent:
		var snap model.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, wrapError(KindSchema, err, "decoding snapshot")
		}
		if _, ok := top["data"]; !ok && !hasVersionHeader(top) {
			if err := liftTopLevelRecords(&snap, top); err != nil {
				return nil, wrapError(KindSchema, err, "reading top-level records")
			}
			out.Warnings = append(out.Warnings, newError(KindSchema,
				"snapshot has no version header; %d records read from the top level", len(snap.Data)))
			m.logger.Warn("headerless snapshot, reading records from the top level", "videos", len(snap.Data))
		}
		if newerThanCurrent(snap.Version) {
			out.Warnings = append(out.Warnings, newError(KindSchema,
				"snapshot version %s is newer than %s; unknown fields are kept as is", snap.Version, model.CurrentVersion))
		}
		out.Snapshot = &snap
	default:
		var snap model.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, wrapError(KindSchema, err, "decoding snapshot of unknown schema")
		}
		out.Warnings = append(out.Warnings, newError(KindSchema, "snapshot schema not recognised; restoring without migration"))
		m.logger.Warn("unknown snapshot schema, restoring best-effort")
		out.Snapshot = &snap
	}

	return out, nil
}

// liftTopLevelRecords moves video records stored directly at the top level
// of a headerless snapshot out of snap.Extra and into snap.Data.
func liftTopLevelRecords(snap *model.Snapshot, top map[string]json.RawMessage) error {
	records, members := primaryRecords(top)
	data := make(map[string]model.VideoRecord, len(records))
	for _, key := range sortedKeys(records) {
		var rec model.VideoRecord
		if err := json.Unmarshal(records[key], &rec); err != nil {
			return fmt.Errorf("video %s: %w", key, err)
		}
		if rec.ID == "" {
			rec.ID = key
		}
		data[key] = rec
	}
	for _, name := range members {
		delete(snap.Extra, name)
	}
	if len(snap.Extra) == 0 {
		snap.Extra = nil
	}
	snap.Data = data
	return nil
}

// Migrate normalizes raw and returns the encoded current-schema snapshot.
// Migrating the output again returns it unchanged.
func (m *Migrator) Migrate(raw []byte) ([]byte, error) {
	n, err := m.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n.Snapshot)
}

func (m *Migrator) migrateLegacy(top map[string]json.RawMessage) (*model.Snapshot, error) {
	now := m.clock.Now()
	nowMs := model.MillisOf(now)
	consumed := make(map[string]bool)

	videos := make(map[string]model.VideoRecord)
	records, members := primaryRecords(top)
	for _, name := range members {
		consumed[name] = true
	}
	for _, key := range sortedKeys(records) {
		rec, err := migrateOldRecord(key, records[key], model.StatusBrowsed, nowMs)
		if err != nil {
			return nil, err
		}
		videos[key] = rec
	}

	for _, name := range legacyCollections {
		if !isObject(top[name]) {
			continue
		}
		consumed[name] = true
		coll, err := parseObject(top[name])
		if err != nil {
			return nil, fmt.Errorf("reading %s collection: %w", name, err)
		}
		for _, key := range sortedKeys(coll) {
			rec, err := migrateOldRecord(key, coll[key], model.Status(name), nowMs)
			if err != nil {
				return nil, err
			}
			m.absorbVideo(videos, key, rec, name)
		}
	}

	actors := make(map[string]model.ActorRecord)
	for _, name := range []string{"actorRecords", legacyActorCollection} {
		raw, ok := top[name]
		if !ok {
			continue
		}
		consumed[name] = true
		if !model.Present(raw) {
			continue
		}
		coll, err := parseObject(raw)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		for _, key := range sortedKeys(coll) {
			if _, exists := actors[key]; exists {
				continue
			}
			rec, err := migrateOldActor(key, coll[key], nowMs)
			if err != nil {
				return nil, err
			}
			actors[key] = rec
		}
	}

	// Rebuild a current-shaped object and let the snapshot decoder keep
	// everything it does not recognise.
	out := make(map[string]json.RawMessage, len(top)+4)
	for k, v := range top {
		if !consumed[k] {
			out[k] = v
		}
	}
	var err error
	if out["data"], err = json.Marshal(videos); err != nil {
		return nil, err
	}
	if out["actorRecords"], err = json.Marshal(actors); err != nil {
		return nil, err
	}
	out["version"], _ = json.Marshal(model.CurrentVersion)
	out["timestamp"], _ = json.Marshal(now.UTC().Format(time.RFC3339))

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(encoded, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (m *Migrator) absorbVideo(videos map[string]model.VideoRecord, key string, rec model.VideoRecord, collection string) {
	existing, ok := videos[key]
	if !ok {
		videos[key] = rec
		return
	}
	if m.collisions == CollisionPriority {
		videos[key] = model.MergeVideos(existing, rec)
		return
	}
	m.logger.Debug("legacy record already migrated, skipping", "key", key, "collection", collection)
}

// migrateOldRecord rewrites one legacy video record. Every original member is
// kept; status, timestamps and list members are overridden or backfilled.
func migrateOldRecord(key string, raw json.RawMessage, fallback model.Status, now model.Millis) (model.VideoRecord, error) {
	fields, err := parseObject(raw)
	if err != nil {
		return model.VideoRecord{}, fmt.Errorf("record %s: %w", key, err)
	}

	fields["status"], _ = json.Marshal(legacyStatus(fields, fallback))

	encoded, err := json.Marshal(fields)
	if err != nil {
		return model.VideoRecord{}, fmt.Errorf("record %s: %w", key, err)
	}
	var rec model.VideoRecord
	if err := json.Unmarshal(encoded, &rec); err != nil {
		return model.VideoRecord{}, fmt.Errorf("record %s: %w", key, err)
	}

	if rec.ID == "" {
		rec.ID = key
	}
	if rec.Title == "" {
		rec.Title = rec.ID
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = now
	}
	if rec.UpdatedAt < rec.CreatedAt {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if rec.ListIDs == nil {
		rec.ListIDs = []string{}
	}
	return rec, nil
}

func legacyStatus(fields map[string]json.RawMessage, fallback model.Status) model.Status {
	if raw, ok := fields["status"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			lower := strings.ToLower(s)
			if st := model.Status(lower); st.Valid() {
				return st
			}
			if st, ok := legacyStatuses[lower]; ok {
				return st
			}
		}
	}
	if raw, ok := fields["viewed"]; ok {
		var flag bool
		if json.Unmarshal(raw, &flag) == nil {
			if flag {
				return model.StatusViewed
			}
			return model.StatusBrowsed
		}
	}
	return fallback
}

func migrateOldActor(key string, raw json.RawMessage, now model.Millis) (model.ActorRecord, error) {
	var rec model.ActorRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ActorRecord{}, fmt.Errorf("actor %s: %w", key, err)
	}
	if rec.ID == "" {
		rec.ID = key
	}
	if !rec.Gender.Valid() {
		rec.Gender = model.GenderUnknown
	}
	if !rec.Category.Valid() {
		rec.Category = model.CategoryUnknown
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt < rec.CreatedAt {
		rec.UpdatedAt = rec.CreatedAt
	}
	return rec, nil
}

// newerThanCurrent reports whether a dotted version string sorts after model.CurrentVersion.
func newerThanCurrent(version string) bool {
	a := strings.Split(version, ".")
	b := strings.Split(model.CurrentVersion, ".")
	for i := 0; i < len(a) || i < len(b); i++ {
		x, y := 0, 0
		if i < len(a) {
			x, _ = strconv.Atoi(a[i])
		}
		if i < len(b) {
			y, _ = strconv.Atoi(b[i])
		}
		if x != y {
			return x > y
		}
	}
	return false
}
