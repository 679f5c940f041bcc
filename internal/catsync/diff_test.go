package catsync_test

import (
	"encoding/json"
	"reflect"
	"sort"
	"testing"

	"catsync-go/internal/catsync"
	"catsync-go/internal/model"
	"catsync-go/internal/testutil"
)

func TestDiff_PartitionsEveryKey(t *testing.T) {
	local := map[string]int{"a": 1, "b": 2, "c": 3}
	remote := map[string]int{"b": 2, "c": 4, "d": 5}
	equal := func(x, y int) bool { return x == y }
	recommend := func(l, r int) catsync.Side {
		if r > l {
			return catsync.SideRemote
		}
		return catsync.SideLocal
	}

	d := catsync.Diff(local, remote, equal, recommend)

	if !reflect.DeepEqual(d.LocalOnly, map[string]int{"a": 1}) {
		t.Errorf("LocalOnly = %v", d.LocalOnly)
	}
	if !reflect.DeepEqual(d.RemoteOnly, map[string]int{"d": 5}) {
		t.Errorf("RemoteOnly = %v", d.RemoteOnly)
	}
	if !reflect.DeepEqual(d.Identical, map[string]int{"b": 2}) {
		t.Errorf("Identical = %v", d.Identical)
	}
	want := []catsync.Conflict[int]{{Key: "c", Local: 3, Remote: 4, Recommended: catsync.SideRemote}}
	if !reflect.DeepEqual(d.Conflicts, want) {
		t.Errorf("Conflicts = %+v, want %+v", d.Conflicts, want)
	}

	union := map[string]bool{}
	for k := range local {
		union[k] = true
	}
	for k := range remote {
		union[k] = true
	}
	if d.Len() != len(union) {
		t.Errorf("Len() = %d, want %d", d.Len(), len(union))
	}
}

func TestDiff_ConflictsSortedByKey(t *testing.T) {
	local := map[string]int{"z": 1, "m": 1, "a": 1}
	remote := map[string]int{"z": 2, "m": 2, "a": 2}
	d := catsync.Diff(local, remote,
		func(x, y int) bool { return x == y },
		func(int, int) catsync.Side { return catsync.SideLocal })

	var keys []string
	for _, c := range d.Conflicts {
		keys = append(keys, c.Key)
	}
	if !sort.StringsAreSorted(keys) || len(keys) != 3 {
		t.Errorf("conflict keys = %v, want 3 sorted keys", keys)
	}
}

func TestRecommendVideo(t *testing.T) {
	tests := []struct {
		name   string
		local  model.VideoRecord
		remote model.VideoRecord
		want   catsync.Side
	}{
		{"higher local status wins over later update", testutil.Video("ABC-123", model.StatusViewed, 100), testutil.Video("ABC-123", model.StatusBrowsed, 200), catsync.SideLocal},
		{"higher remote status", testutil.Video("K", model.StatusBrowsed, 300), testutil.Video("K", model.StatusWant, 100), catsync.SideRemote},
		{"same status later remote", testutil.Video("K", model.StatusWant, 100), testutil.Video("K", model.StatusWant, 200), catsync.SideRemote},
		{"same status later local", testutil.Video("K", model.StatusWant, 200), testutil.Video("K", model.StatusWant, 100), catsync.SideLocal},
		{"full tie", testutil.Video("K", model.StatusWant, 100), testutil.Video("K", model.StatusWant, 100), catsync.SideLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := catsync.RecommendVideo(tt.local, tt.remote); got != tt.want {
				t.Errorf("RecommendVideo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiffLogs(t *testing.T) {
	local := []json.RawMessage{
		json.RawMessage(`{"a":1,"b":2}`),
		json.RawMessage(`{"a":3}`),
	}
	remote := []json.RawMessage{
		json.RawMessage(`{"b":2, "a":1}`),
		json.RawMessage(`{"a":4}`),
		json.RawMessage(`{"a": 4}`),
	}

	d := catsync.DiffLogs(local, remote)
	if d.Shared != 1 {
		t.Errorf("Shared = %d, want 1", d.Shared)
	}
	if len(d.RemoteOnly) != 1 {
		t.Errorf("RemoteOnly = %s, want one entry", d.RemoteOnly)
	}
}

func TestDiffDatasets(t *testing.T) {
	local := &model.Dataset{
		Videos:   map[string]model.VideoRecord{"A": testutil.Video("A", model.StatusViewed, 1)},
		Settings: testutil.Settings(),
	}

	t.Run("domains missing from the snapshot are not compared", func(t *testing.T) {
		remote := &model.Dataset{
			Videos: map[string]model.VideoRecord{"B": testutil.Video("B", model.StatusWant, 1)},
		}
		d := catsync.DiffDatasets(local, remote, catsync.MergeOptions{})
		if d.Videos == nil {
			t.Fatal("Videos not compared")
		}
		if d.Settings != nil || d.Actors != nil || d.Logs != nil {
			t.Errorf("compared absent domains: settings=%v actors=%v logs=%v", d.Settings, d.Actors, d.Logs)
		}
	})

	t.Run("unselected domains are not compared", func(t *testing.T) {
		remote := &model.Dataset{
			Videos:   map[string]model.VideoRecord{"B": testutil.Video("B", model.StatusWant, 1)},
			Settings: testutil.Settings(),
		}
		d := catsync.DiffDatasets(local, remote, catsync.MergeOptions{Domains: []model.Domain{model.DomainSettings}})
		if d.Videos != nil {
			t.Error("Videos compared although not selected")
		}
		if d.Settings == nil || len(d.Settings.Identical) != 3 {
			t.Errorf("Settings = %+v, want three identical sections", d.Settings)
		}
	})

	t.Run("blobs", func(t *testing.T) {
		remote := &model.Dataset{UserProfile: json.RawMessage(`{"name":"x"}`)}
		d := catsync.DiffDatasets(local, remote, catsync.MergeOptions{})
		b, ok := d.Blobs[model.DomainUserProfile]
		if !ok {
			t.Fatal("user profile not compared")
		}
		if b.Identical() {
			t.Error("Identical() = true for a new profile")
		}
		if _, ok := d.Blobs[model.DomainImportStats]; ok {
			t.Error("import stats compared although the snapshot has none")
		}
	})
}
