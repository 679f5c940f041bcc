package catsync_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"catsync-go/internal/catsync"
	"catsync-go/internal/model"
	"catsync-go/internal/testutil"
)

func TestDetectVersion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want catsync.SchemaVersion
	}{
		{"version member", `{"version":"2.1","data":{}}`, catsync.VersionCurrent},
		{"timestamp member", `{"timestamp":"2024-01-15T10:30:00Z","data":{}}`, catsync.VersionCurrent},
		{"viewed collection", `{"viewed":{"A-1":{"title":"x"}}}`, catsync.VersionLegacy},
		{"want collection", `{"want":{"A-1":{"title":"x"}}}`, catsync.VersionLegacy},
		{"actors collection", `{"actors":{}}`, catsync.VersionLegacy},
		{"legacy status literal", `{"data":{"A-1":{"title":"x","status":"watched","createdAt":1}}}`, catsync.VersionLegacy},
		{"binary viewed flag", `{"data":{"A-1":{"title":"x","viewed":true,"updatedAt":1}}}`, catsync.VersionLegacy},
		{"records with timestamps", `{"data":{"A-1":{"title":"x","createdAt":1}}}`, catsync.VersionCurrent},
		{"records without timestamps", `{"data":{"A-1":{"title":"x"}}}`, catsync.VersionLegacy},
		{"top-level records", `{"A-1":{"title":"x"}}`, catsync.VersionLegacy},
		{"top-level records with timestamps", `{"A-1":{"title":"x","updatedAt":2}}`, catsync.VersionCurrent},
		{"capitalized current status", `{"data":{"A-1":{"title":"x","status":"Viewed","createdAt":1}}}`, catsync.VersionLegacy},
		{"empty object", `{}`, catsync.VersionUnknown},
		{"only settings", `{"settings":{"display":{}}}`, catsync.VersionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := catsync.DetectVersion([]byte(tt.raw))
			if err != nil {
				t.Fatalf("DetectVersion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectVersion() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("not an object", func(t *testing.T) {
		for _, raw := range []string{`[1,2]`, `"text"`, ``, `nonsense`} {
			if _, err := catsync.DetectVersion([]byte(raw)); err == nil {
				t.Errorf("DetectVersion(%q) expected error", raw)
			}
		}
	})
}

func newMigrator(policy catsync.CollisionPolicy) *catsync.Migrator {
	return catsync.NewMigrator(testutil.FixedClock(), policy, catsync.NewNopLogger())
}

func TestMigrator_LegacyWantCollection(t *testing.T) {
	m := newMigrator(catsync.CollisionSkip)
	now := model.MillisOf(testutil.FixedClock().Now())

	n, err := m.Normalize([]byte(`{"want":{"A-1":{"title":"T"}}}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if n.Version != catsync.VersionLegacy {
		t.Errorf("Version = %v, want legacy", n.Version)
	}
	if n.Snapshot.Version != model.CurrentVersion {
		t.Errorf("Snapshot.Version = %q, want %q", n.Snapshot.Version, model.CurrentVersion)
	}

	got, ok := n.Snapshot.Data["A-1"]
	if !ok {
		t.Fatalf("Data = %v, want key A-1", n.Snapshot.Data)
	}
	want := model.VideoRecord{
		ID:        "A-1",
		Title:     "T",
		Status:    model.StatusWant,
		Tags:      []string{},
		ListIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("record = %+v, want %+v", got, want)
	}
}

func TestMigrator_LegacyStatuses(t *testing.T) {
	tests := []struct {
		name   string
		record string
		want   model.Status
	}{
		{"watched", `{"status":"watched"}`, model.StatusViewed},
		{"wishlist", `{"status":"Wishlist"}`, model.StatusWant},
		{"unwatched", `{"status":"unwatched"}`, model.StatusBrowsed},
		{"viewed flag true", `{"viewed":true}`, model.StatusViewed},
		{"viewed flag false", `{"viewed":false}`, model.StatusBrowsed},
		{"current status kept", `{"status":"want","viewed":true}`, model.StatusWant},
		{"capitalized current status", `{"status":"Viewed"}`, model.StatusViewed},
		{"no status", `{"title":"x"}`, model.StatusBrowsed},
	}

	m := newMigrator(catsync.CollisionSkip)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"data":{"K":` + tt.record + `}}`)
			n, err := m.Normalize(raw)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got := n.Snapshot.Data["K"].Status; got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrator_TopLevelRecords(t *testing.T) {
	raw := []byte(`{
		"ABC-1":{"id":"ABC-1","title":"t","status":"viewed","tags":[],"createdAt":1,"updatedAt":2},
		"ABC-2":{"title":"u","status":"want","tags":["x"],"createdAt":1,"updatedAt":3},
		"settings":{"display":{"theme":"dark"}},
		"extraMember":[1]
	}`)

	n, err := newMigrator("").Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if n.Version != catsync.VersionCurrent {
		t.Errorf("Version = %v, want current", n.Version)
	}
	if len(n.Warnings) != 1 || !errors.Is(n.Warnings[0], catsync.ErrSchema) {
		t.Errorf("Warnings = %v, want one schema warning", n.Warnings)
	}

	if len(n.Snapshot.Data) != 2 {
		t.Fatalf("Data = %v, want 2 records", n.Snapshot.Data)
	}
	if got := n.Snapshot.Data["ABC-1"]; got.Status != model.StatusViewed || got.UpdatedAt != 2 {
		t.Errorf("ABC-1 = %+v, want viewed record updated at 2", got)
	}
	if got := n.Snapshot.Data["ABC-2"].ID; got != "ABC-2" {
		t.Errorf("ABC-2 id = %q, want it filled from the key", got)
	}
	if _, ok := n.Snapshot.Settings["display"]; !ok {
		t.Errorf("Settings = %v, want display section kept", n.Snapshot.Settings)
	}
	for _, key := range []string{"ABC-1", "ABC-2"} {
		if _, ok := n.Snapshot.Extra[key]; ok {
			t.Errorf("Extra still holds record %s", key)
		}
	}
	if _, ok := n.Snapshot.Extra["extraMember"]; !ok {
		t.Errorf("Extra = %v, want extraMember kept", n.Snapshot.Extra)
	}
}

func TestMigrator_Collisions(t *testing.T) {
	raw := []byte(`{"data":{"A":{"title":"x","status":"unwatched"}},"viewed":{"A":{"title":"y"}}}`)

	tests := []struct {
		policy catsync.CollisionPolicy
		want   model.Status
	}{
		{catsync.CollisionSkip, model.StatusBrowsed},
		{catsync.CollisionPriority, model.StatusViewed},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			n, err := newMigrator(tt.policy).Normalize(raw)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if len(n.Snapshot.Data) != 1 {
				t.Fatalf("len(Data) = %d, want 1", len(n.Snapshot.Data))
			}
			if got := n.Snapshot.Data["A"].Status; got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrator_LegacyActorsAndUnknownMembers(t *testing.T) {
	raw := []byte(`{
		"viewed": {"A-1": {"title": "x"}},
		"actors": {"act-1": {"name": "Someone", "gender": "nonsense"}},
		"settings": {"display": {"theme": "dark"}},
		"favouriteColour": "green"
	}`)

	n, err := newMigrator(catsync.CollisionSkip).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	actor, ok := n.Snapshot.ActorRecords["act-1"]
	if !ok {
		t.Fatalf("ActorRecords = %v, want key act-1", n.Snapshot.ActorRecords)
	}
	if actor.ID != "act-1" || actor.Gender != model.GenderUnknown || actor.Category != model.CategoryUnknown {
		t.Errorf("actor = %+v, want backfilled id, gender and category", actor)
	}
	if actor.Aliases == nil {
		t.Error("actor aliases = nil, want empty list")
	}
	if !model.Present(n.Snapshot.Settings["display"]) {
		t.Error("settings were dropped")
	}
	if string(n.Snapshot.Extra["favouriteColour"]) != `"green"` {
		t.Errorf("Extra = %v, want favouriteColour kept", n.Snapshot.Extra)
	}
}

func TestMigrator_MigrateIsIdempotent(t *testing.T) {
	inputs := map[string]string{
		"legacy":  `{"want":{"A-1":{"title":"T"}},"viewed":{"B-2":{"title":"U","tags":["x"]}},"actors":{"a":{"name":"N"}}}`,
		"current": `{"version":"2.1","timestamp":"2024-01-01T00:00:00Z","data":{"A-1":{"id":"A-1","title":"T","status":"viewed","tags":[],"listIds":[],"createdAt":1,"updatedAt":2,"rating":4}},"actorRecords":{},"logs":[]}`,
	}

	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			m := newMigrator(catsync.CollisionSkip)
			once, err := m.Migrate([]byte(raw))
			if err != nil {
				t.Fatalf("Migrate() error = %v", err)
			}
			twice, err := m.Migrate(once)
			if err != nil {
				t.Fatalf("second Migrate() error = %v", err)
			}
			if !bytes.Equal(once, twice) {
				t.Errorf("Migrate is not idempotent:\n once  %s\n twice %s", once, twice)
			}
			if v, _ := catsync.DetectVersion(once); v != catsync.VersionCurrent {
				t.Errorf("migrated snapshot detected as %v, want current", v)
			}
		})
	}
}

func TestMigrator_Warnings(t *testing.T) {
	t.Run("unknown schema restores best-effort", func(t *testing.T) {
		n, err := newMigrator("").Normalize([]byte(`{"settings":{"display":{}}}`))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(n.Warnings) != 1 || !errors.Is(n.Warnings[0], catsync.ErrSchema) {
			t.Errorf("Warnings = %v, want one schema warning", n.Warnings)
		}
	})

	t.Run("newer version is flagged", func(t *testing.T) {
		n, err := newMigrator("").Normalize([]byte(`{"version":"9.0","data":{}}`))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(n.Warnings) != 1 {
			t.Errorf("Warnings = %v, want one", n.Warnings)
		}
	})

	t.Run("unreadable snapshot is a schema error", func(t *testing.T) {
		_, err := newMigrator("").Normalize([]byte(`{"data":`))
		if !errors.Is(err, catsync.ErrSchema) {
			t.Errorf("Normalize() error = %v, want schema error", err)
		}
	})
}

func TestParseCollisionPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    catsync.CollisionPolicy
		wantErr bool
	}{
		{"", catsync.CollisionSkip, false},
		{"skip", catsync.CollisionSkip, false},
		{"PRIORITY", catsync.CollisionPriority, false},
		{"newest", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := catsync.ParseCollisionPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCollisionPolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCollisionPolicy() = %q, want %q", got, tt.want)
			}
		})
	}
}

// snapshotMembers decodes the top-level members of an encoded snapshot.
func snapshotMembers(t *testing.T, data []byte) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	return m
}

func TestMigrator_MigrateOutputShape(t *testing.T) {
	out, err := newMigrator("").Migrate([]byte(`{"viewed":{"A-1":{"title":"x"}}}`))
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	members := snapshotMembers(t, out)
	for _, name := range []string{"version", "timestamp", "data", "actorRecords"} {
		if _, ok := members[name]; !ok {
			t.Errorf("migrated snapshot lacks %q: %s", name, out)
		}
	}
	if _, ok := members["viewed"]; ok {
		t.Errorf("migrated snapshot still holds the legacy collection: %s", out)
	}
}
