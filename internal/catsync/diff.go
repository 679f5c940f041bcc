package catsync

import (
	"bytes"
	"encoding/json"

	"catsync-go/internal/model"
)

// Conflict is a key present on both sides with different content.
type Conflict[T any] struct {
	Key         string
	Local       T
	Remote      T
	Recommended Side
}

// DiffResult partitions the union of the keys of two maps. Every key lands in
// exactly one partition; Identical holds the local values.
type DiffResult[T any] struct {
	LocalOnly  map[string]T
	RemoteOnly map[string]T
	Identical  map[string]T
	Conflicts  []Conflict[T]
}

// Len returns the number of keys in the diff.
func (d *DiffResult[T]) Len() int {
	return len(d.LocalOnly) + len(d.RemoteOnly) + len(d.Identical) + len(d.Conflicts)
}

// Diff compares two keyed collections. equal decides whether two versions
// hold the same content; recommend picks the suggested side for each conflict.
// Conflicts are ordered by key.
func Diff[T any](local, remote map[string]T, equal func(a, b T) bool, recommend func(local, remote T) Side) *DiffResult[T] {
	d := &DiffResult[T]{
		LocalOnly:  make(map[string]T),
		RemoteOnly: make(map[string]T),
		Identical:  make(map[string]T),
	}

	for _, k := range sortedKeys(local) {
		l := local[k]
		r, ok := remote[k]
		switch {
		case !ok:
			d.LocalOnly[k] = l
		case equal(l, r):
			d.Identical[k] = l
		default:
			d.Conflicts = append(d.Conflicts, Conflict[T]{
				Key:         k,
				Local:       l,
				Remote:      r,
				Recommended: recommend(l, r),
			})
		}
	}
	for k, r := range remote {
		if _, ok := local[k]; !ok {
			d.RemoteOnly[k] = r
		}
	}
	return d
}

// RecommendVideo prefers the higher status, then the later update. A full tie
// goes to local.
func RecommendVideo(local, remote model.VideoRecord) Side {
	lp, rp := local.Status.Priority(), remote.Status.Priority()
	if lp != rp {
		if rp > lp {
			return SideRemote
		}
		return SideLocal
	}
	if remote.UpdatedAt > local.UpdatedAt {
		return SideRemote
	}
	return SideLocal
}

// RecommendActor prefers the later update, local on a tie.
func RecommendActor(local, remote model.ActorRecord) Side {
	return newer(local.UpdatedAt, remote.UpdatedAt)
}

// RecommendSubscription prefers the later touched subscription, local on a tie.
func RecommendSubscription(local, remote model.Subscription) Side {
	return newer(local.Touched(), remote.Touched())
}

// RecommendWork prefers the later touched work record, local on a tie.
func RecommendWork(local, remote model.WorkRecord) Side {
	return newer(local.Touched(), remote.Touched())
}

// RecommendSection always recommends the snapshot's version of a settings
// section: sections carry no timestamps, and restoring settings is an explicit request.
func RecommendSection(_, _ json.RawMessage) Side {
	return SideRemote
}

// EqualSection compares two settings sections by canonical JSON.
func EqualSection(a, b json.RawMessage) bool {
	return bytes.Equal(model.Canonical(a), model.Canonical(b))
}

func newer(local, remote model.Millis) Side {
	if remote > local {
		return SideRemote
	}
	return SideLocal
}

// BlobDiff compares an opaque document present at most once per side.
type BlobDiff struct {
	Local  json.RawMessage
	Remote json.RawMessage
}

// Identical reports whether both sides hold the same document, or neither holds one.
func (b BlobDiff) Identical() bool {
	return bytes.Equal(model.Canonical(b.Local), model.Canonical(b.Remote))
}

// LogDiff splits the snapshot's log entries into those already present locally and new ones.
type LogDiff struct {
	Local      []json.RawMessage
	RemoteOnly []json.RawMessage
	Shared     int
}

// DiffLogs finds remote log entries that do not occur locally, comparing canonical bytes.
// Duplicates within the remote list are reported once.
func DiffLogs(local, remote []json.RawMessage) LogDiff {
	seen := make(map[string]bool, len(local))
	for _, e := range local {
		seen[string(model.Canonical(e))] = true
	}
	d := LogDiff{Local: local}
	added := make(map[string]bool)
	for _, e := range remote {
		key := string(model.Canonical(e))
		switch {
		case seen[key]:
			d.Shared++
		case !added[key]:
			added[key] = true
			d.RemoteOnly = append(d.RemoteOnly, e)
		}
	}
	return d
}

// DatasetDiff is the per-domain difference between the local dataset and a snapshot.
// A nil member means the domain was not compared: it was either not selected
// or the snapshot does not contain it.
type DatasetDiff struct {
	Videos        *DiffResult[model.VideoRecord]
	Actors        *DiffResult[model.ActorRecord]
	Subscriptions *DiffResult[model.Subscription]
	Works         *DiffResult[model.WorkRecord]
	Settings      *DiffResult[json.RawMessage]
	Blobs         map[model.Domain]BlobDiff
	Logs          *LogDiff
}

// DiffDatasets compares the selected domains of local and remote. Domains the
// remote dataset does not carry are skipped and left untouched by a restore.
func DiffDatasets(local, remote *model.Dataset, opts MergeOptions) *DatasetDiff {
	d := &DatasetDiff{Blobs: make(map[model.Domain]BlobDiff)}

	if opts.includes(model.DomainVideos) && remote.Videos != nil {
		d.Videos = Diff(local.Videos, remote.Videos, model.VideoRecord.Equal, RecommendVideo)
	}
	if opts.includes(model.DomainActors) && remote.Actors != nil {
		d.Actors = Diff(local.Actors, remote.Actors, model.ActorRecord.Equal, RecommendActor)
	}
	if opts.includes(model.DomainSubscriptions) && remote.Subscriptions != nil {
		d.Subscriptions = Diff(local.Subscriptions, remote.Subscriptions, model.Subscription.Equal, RecommendSubscription)
	}
	if opts.includes(model.DomainWorks) && remote.Works != nil {
		d.Works = Diff(local.Works, remote.Works, model.WorkRecord.Equal, RecommendWork)
	}
	if opts.includes(model.DomainSettings) && remote.Settings != nil {
		d.Settings = Diff(map[string]json.RawMessage(local.Settings), map[string]json.RawMessage(remote.Settings), EqualSection, RecommendSection)
	}

	blobs := []struct {
		domain        model.Domain
		local, remote json.RawMessage
	}{
		{model.DomainNewWorksConfig, local.NewWorksConfig, remote.NewWorksConfig},
		{model.DomainUserProfile, local.UserProfile, remote.UserProfile},
		{model.DomainImportStats, local.ImportStats, remote.ImportStats},
	}
	for _, b := range blobs {
		if opts.includes(b.domain) && b.remote != nil {
			d.Blobs[b.domain] = BlobDiff{Local: b.local, Remote: b.remote}
		}
	}

	if opts.includes(model.DomainLogs) && remote.Logs != nil {
		logs := DiffLogs(local.Logs, remote.Logs)
		d.Logs = &logs
	}
	return d
}
