package model

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestVideoRecord_PreservesUnknownFields(t *testing.T) {
	input := `{"id":"ABC-123","title":"t","status":"viewed","tags":["a"],"listIds":[],"createdAt":1,"updatedAt":2,"rating":5,"notes":{"x":true}}`

	var v VideoRecord
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(v.Extra) != 2 {
		t.Fatalf("len(Extra) = %d, want 2", len(v.Extra))
	}
	if string(v.Extra["rating"]) != "5" {
		t.Errorf("Extra[rating] = %s, want 5", v.Extra["rating"])
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), `"rating":5`) || !strings.Contains(string(out), `"notes":{"x":true}`) {
		t.Errorf("Marshal() dropped unknown fields: %s", out)
	}

	var again VideoRecord
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !again.Equal(v) {
		t.Errorf("round trip changed record: %+v vs %+v", again, v)
	}
}

func TestMillis_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Millis
	}{
		{"number", `1700000000000`, 1700000000000},
		{"numeric string", `"1700000000000"`, 1700000000000},
		{"rfc3339", `"2024-01-15T10:30:00Z"`, MillisOf(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))},
		{"null", `null`, 0},
		{"empty string", `""`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Millis
			if err := json.Unmarshal([]byte(tt.input), &m); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if m != tt.want {
				t.Errorf("Millis = %d, want %d", m, tt.want)
			}
		})
	}

	var m Millis
	if err := json.Unmarshal([]byte(`"yesterday"`), &m); err == nil {
		t.Error("Unmarshal() expected error for unparseable string")
	}
}

func TestVideoRecord_Equal(t *testing.T) {
	base := VideoRecord{ID: "A-1", Title: "t", Status: StatusWant, Tags: []string{"x", "y"}, CreatedAt: 1, UpdatedAt: 2}

	other := base.Clone()
	other.Tags = []string{"y", "x"}
	other.UpdatedAt = 99
	other.CreatedAt = 50
	if !base.Equal(other) {
		t.Error("records differing only in tag order and timestamps should be equal")
	}

	other.Status = StatusViewed
	if base.Equal(other) {
		t.Error("records with different status should not be equal")
	}
}

func TestMergeVideos(t *testing.T) {
	local := VideoRecord{ID: "A-1", Title: "local title", Status: StatusViewed, Tags: []string{"a"}, CreatedAt: 10, UpdatedAt: 100}
	remote := VideoRecord{ID: "A-1", Title: "remote title", Status: StatusBrowsed, Tags: []string{"b"}, CreatedAt: 20, UpdatedAt: 200}

	got := MergeVideos(local, remote)

	if got.Status != StatusViewed {
		t.Errorf("Status = %q, want viewed", got.Status)
	}
	if !reflect.DeepEqual(got.Tags, []string{"a", "b"}) {
		t.Errorf("Tags = %v, want [a b]", got.Tags)
	}
	if got.UpdatedAt != 200 {
		t.Errorf("UpdatedAt = %d, want 200", got.UpdatedAt)
	}
	if got.Title != "remote title" {
		t.Errorf("Title = %q, want the more recently updated side", got.Title)
	}
}

func TestActorRecord_AliasesAlwaysList(t *testing.T) {
	var a ActorRecord
	if err := json.Unmarshal([]byte(`{"id":"x","name":"n","gender":"female","category":"censored"}`), &a); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if a.Aliases == nil {
		t.Error("Aliases = nil, want empty list")
	}

	out, err := json.Marshal(ActorRecord{ID: "x"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), `"aliases":[]`) {
		t.Errorf("Marshal() = %s, want aliases encoded as []", out)
	}
}

func TestDataset_DomainRoundTrip(t *testing.T) {
	ds := &Dataset{
		Videos:      map[string]VideoRecord{"A-1": {ID: "A-1", Title: "t", Status: StatusWant, Tags: []string{}}},
		Settings:    Settings{"display": json.RawMessage(`{"x":1}`)},
		UserProfile: json.RawMessage(`{"name":"me"}`),
	}

	for _, d := range AllDomains {
		data, err := ds.EncodeDomain(d)
		if err != nil {
			t.Fatalf("EncodeDomain(%s) error = %v", d, err)
		}

		var back Dataset
		if err := back.DecodeDomain(d, data); err != nil {
			t.Fatalf("DecodeDomain(%s) error = %v", d, err)
		}
		again, err := back.EncodeDomain(d)
		if err != nil {
			t.Fatalf("EncodeDomain(%s) error = %v", d, err)
		}
		if string(again) != string(data) {
			t.Errorf("domain %s: %s != %s", d, again, data)
		}
	}

	if data, _ := ds.EncodeDomain(DomainActors); data != nil {
		t.Errorf("absent domain encoded as %s, want nil", data)
	}
}

func TestSnapshot_Dataset(t *testing.T) {
	input := `{"version":"2.1","timestamp":"2024-01-15T10:30:00Z","data":{},"actorRecords":{},
		"newWorks":{"subscriptions":{"a1":{"actorId":"a1","enabled":true,"subscribedAt":5}},"records":{},"config":{"interval":3}},
		"userProfile":null,"logs":[],"importStats":null,"futureField":[1,2]}`

	var s Snapshot
	if err := json.Unmarshal([]byte(input), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := s.Extra["futureField"]; !ok {
		t.Error("unknown top-level field not preserved")
	}

	ds := s.Dataset()
	if ds.UserProfile != nil {
		t.Errorf("UserProfile = %s, want nil for JSON null", ds.UserProfile)
	}
	if len(ds.Subscriptions) != 1 || !ds.Subscriptions["a1"].Enabled {
		t.Errorf("Subscriptions = %+v", ds.Subscriptions)
	}
	if string(ds.NewWorksConfig) != `{"interval":3}` {
		t.Errorf("NewWorksConfig = %s", ds.NewWorksConfig)
	}
}
