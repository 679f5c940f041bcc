package catsync

import (
	"bytes"
	"encoding/json"
	"fmt"

	"catsync-go/internal/model"
)

// DomainSummary counts what a restore did to one domain.
// Kept counts records retained from local, Updated conflicts resolved to
// something other than the local version, Added records adopted from the
// snapshot and Removed local records dropped in remote-exclusive mode.
type DomainSummary struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Kept    int `json:"kept"`
	Removed int `json:"removed,omitempty"`
}

// Changed reports whether the domain differs from local after the restore.
func (s DomainSummary) Changed() bool {
	return s.Added+s.Updated+s.Removed > 0
}

// Resolve applies the strategy of opts to one domain's diff. It returns the
// resolved collection, its summary and, under StrategyManual, every conflicting
// key without an override. Overrides take precedence over the strategy.
func Resolve[T any](d *DiffResult[T], domain model.Domain, opts MergeOptions, equal func(a, b T) bool, merge func(local, remote T) T) (map[string]T, DomainSummary, []DomainKey) {
	out := make(map[string]T, d.Len())
	var sum DomainSummary
	var missing []DomainKey
	overrides := opts.Overrides[domain]

	for k, v := range d.Identical {
		out[k] = v
		sum.Kept++
	}
	for k, v := range d.LocalOnly {
		if opts.Strategy == StrategyRemote && opts.RemoteExclusive {
			sum.Removed++
			continue
		}
		out[k] = v
		sum.Kept++
	}
	if opts.Strategy != StrategyLocal {
		for k, v := range d.RemoteOnly {
			out[k] = v
			sum.Added++
		}
	}

	for _, c := range d.Conflicts {
		res, ok := overrides[c.Key]
		if !ok {
			switch opts.Strategy {
			case StrategyLocal:
				res = ResolveLocal
			case StrategyRemote:
				res = ResolveRemote
			case StrategySmart:
				res = ResolveLocal
				if c.Recommended == SideRemote {
					res = ResolveRemote
				}
			case StrategyManual:
				missing = append(missing, DomainKey{Domain: domain, Key: c.Key})
				continue
			default:
				panic(fmt.Sprintf("unhandled strategy %v", opts.Strategy))
			}
		}

		var winner T
		switch res {
		case ResolveLocal:
			winner = c.Local
		case ResolveRemote:
			winner = c.Remote
		case ResolveMerge:
			winner = merge(c.Local, c.Remote)
		default:
			panic(fmt.Sprintf("unhandled resolution %q", res))
		}
		out[c.Key] = winner
		if equal(winner, c.Local) && sameEncoding(winner, c.Local) {
			sum.Kept++
		} else {
			sum.Updated++
		}
	}

	return out, sum, missing
}

// sameEncoding reports whether a and b encode to the same bytes. A winner that
// only moves a timestamp is still rewritten on commit.
func sameEncoding[T any](a, b T) bool {
	ea, err := json.Marshal(a)
	if err != nil {
		return false
	}
	eb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// MergeSubscriptions keeps the more recently touched subscription, local on a tie.
func MergeSubscriptions(local, remote model.Subscription) model.Subscription {
	if remote.Touched() > local.Touched() {
		return remote.Clone()
	}
	return local.Clone()
}

// MergeWorks keeps the more recently touched work record and unions tags.
func MergeWorks(local, remote model.WorkRecord) model.WorkRecord {
	merged := local.Clone()
	if remote.Touched() > local.Touched() {
		merged = remote.Clone()
	}
	merged.Tags = model.UnionStrings(local.Tags, remote.Tags)
	return merged
}

// MergeSections overlays the members of the remote settings section onto the
// local one. Sections that are not both objects resolve to remote.
func MergeSections(local, remote json.RawMessage) json.RawMessage {
	var l, r map[string]json.RawMessage
	if json.Unmarshal(local, &l) != nil || json.Unmarshal(remote, &r) != nil || l == nil || r == nil {
		return remote
	}
	for k, v := range r {
		l[k] = v
	}
	merged, err := json.Marshal(l)
	if err != nil {
		return remote
	}
	return merged
}

// ResolveBlob decides an ancillary document. StrategyLocal keeps the local
// document; every other strategy adopts the snapshot's document.
func ResolveBlob(b BlobDiff, strategy Strategy) (json.RawMessage, DomainSummary) {
	var sum DomainSummary
	switch {
	case strategy == StrategyLocal || b.Remote == nil:
		if b.Local != nil {
			sum.Kept = 1
		}
		return b.Local, sum
	case b.Identical():
		sum.Kept = 1
		return b.Local, sum
	case b.Local == nil:
		sum.Added = 1
	default:
		sum.Updated = 1
	}
	return b.Remote, sum
}

// ResolveLogs keeps local log entries and, unless strategy is StrategyLocal,
// appends the snapshot's entries that are not already present.
func ResolveLogs(d LogDiff, strategy Strategy) ([]json.RawMessage, DomainSummary) {
	sum := DomainSummary{Kept: len(d.Local)}
	if strategy == StrategyLocal || len(d.RemoteOnly) == 0 {
		return d.Local, sum
	}
	out := make([]json.RawMessage, 0, len(d.Local)+len(d.RemoteOnly))
	out = append(out, d.Local...)
	out = append(out, d.RemoteOnly...)
	sum.Added = len(d.RemoteOnly)
	return out, sum
}

// Resolved is the candidate dataset produced by resolving a DatasetDiff.
type Resolved struct {
	// Merged is the local dataset with every resolved domain replaced.
	Merged *model.Dataset
	// Domains lists the resolved domains in commit order.
	Domains []model.Domain
	Summary map[model.Domain]DomainSummary
}

// ResolveDataset resolves every compared domain of d against local.
// Under StrategyManual, all unresolved conflicts across all domains are
// reported together in one missing-override error.
func ResolveDataset(local *model.Dataset, d *DatasetDiff, opts MergeOptions) (*Resolved, error) {
	merged := *local
	res := &Resolved{Merged: &merged, Summary: make(map[model.Domain]DomainSummary)}
	var missing []DomainKey

	record := func(domain model.Domain, sum DomainSummary, m []DomainKey) {
		res.Summary[domain] = sum
		missing = append(missing, m...)
	}

	if d.Settings != nil {
		out, sum, m := Resolve(d.Settings, model.DomainSettings, opts, EqualSection, MergeSections)
		merged.Settings = keepAbsent(local.Settings, model.Settings(out))
		record(model.DomainSettings, sum, m)
	}
	if d.Videos != nil {
		out, sum, m := Resolve(d.Videos, model.DomainVideos, opts, model.VideoRecord.Equal, model.MergeVideos)
		merged.Videos = keepAbsent(local.Videos, out)
		record(model.DomainVideos, sum, m)
	}
	if d.Actors != nil {
		out, sum, m := Resolve(d.Actors, model.DomainActors, opts, model.ActorRecord.Equal, model.MergeActors)
		merged.Actors = keepAbsent(local.Actors, out)
		record(model.DomainActors, sum, m)
	}
	if d.Subscriptions != nil {
		out, sum, m := Resolve(d.Subscriptions, model.DomainSubscriptions, opts, model.Subscription.Equal, MergeSubscriptions)
		merged.Subscriptions = keepAbsent(local.Subscriptions, out)
		record(model.DomainSubscriptions, sum, m)
	}
	if d.Works != nil {
		out, sum, m := Resolve(d.Works, model.DomainWorks, opts, model.WorkRecord.Equal, MergeWorks)
		merged.Works = keepAbsent(local.Works, out)
		record(model.DomainWorks, sum, m)
	}

	for domain, b := range d.Blobs {
		value, sum := ResolveBlob(b, opts.Strategy)
		switch domain {
		case model.DomainNewWorksConfig:
			merged.NewWorksConfig = value
		case model.DomainUserProfile:
			merged.UserProfile = value
		case model.DomainImportStats:
			merged.ImportStats = value
		}
		record(domain, sum, nil)
	}

	if d.Logs != nil {
		logs, sum := ResolveLogs(*d.Logs, opts.Strategy)
		if local.Logs == nil && len(logs) == 0 {
			logs = nil
		}
		merged.Logs = logs
		record(model.DomainLogs, sum, nil)
	}

	if len(missing) > 0 {
		return nil, missingOverrideError(missing)
	}

	for _, domain := range model.AllDomains {
		if _, ok := res.Summary[domain]; ok {
			res.Domains = append(res.Domains, domain)
		}
	}
	return res, nil
}

// keepAbsent leaves a domain absent when it was absent locally and resolved to nothing.
func keepAbsent[M ~map[string]V, V any](local, resolved M) M {
	if local == nil && len(resolved) == 0 {
		return nil
	}
	return resolved
}
