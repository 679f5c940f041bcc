package model

import (
	"encoding/json"
	"time"
)

// CurrentVersion is the snapshot format written by this version.
const CurrentVersion = "2.1"

// Snapshot is the exported form of a dataset as stored in a vault.
// Unknown top-level members are preserved in Extra.
type Snapshot struct {
	Version      string                 `json:"version"`
	Timestamp    string                 `json:"timestamp"`
	Data         map[string]VideoRecord `json:"data"`
	ActorRecords map[string]ActorRecord `json:"actorRecords"`
	NewWorks     *NewWorks              `json:"newWorks,omitempty"`
	Settings     Settings               `json:"settings,omitempty"`
	UserProfile  json.RawMessage        `json:"userProfile,omitempty"`
	Logs         []json.RawMessage      `json:"logs"`
	ImportStats  json.RawMessage        `json:"importStats,omitempty"`
	Extra        Extensions             `json:"-"`
}

var snapshotFields = fieldSet("version", "timestamp", "data", "actorRecords", "newWorks", "settings", "userProfile", "logs", "importStats")

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var p plain
	ext, err := decodeWithExtensions(data, &p, snapshotFields)
	if err != nil {
		return err
	}
	*s = Snapshot(p)
	s.Extra = ext
	return nil
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return encodeWithExtensions(plain(s), s.Extra)
}

// Dataset converts the snapshot into a dataset. JSON null blobs become absent.
func (s *Snapshot) Dataset() *Dataset {
	ds := &Dataset{
		Videos:      s.Data,
		Actors:      s.ActorRecords,
		Settings:    s.Settings,
		UserProfile: blobBytes(s.UserProfile),
		Logs:        s.Logs,
		ImportStats: blobBytes(s.ImportStats),
	}
	if s.NewWorks != nil {
		ds.Subscriptions = s.NewWorks.Subscriptions
		ds.Works = s.NewWorks.Records
		ds.NewWorksConfig = blobBytes(s.NewWorks.Config)
	}
	return ds
}

// NewSnapshot wraps a dataset in a current-version snapshot taken at ts.
func NewSnapshot(ds *Dataset, ts time.Time) *Snapshot {
	s := &Snapshot{
		Version:      CurrentVersion,
		Timestamp:    ts.UTC().Format(time.RFC3339),
		Data:         ds.Videos,
		ActorRecords: ds.Actors,
		Settings:     ds.Settings,
		UserProfile:  ds.UserProfile,
		Logs:         ds.Logs,
		ImportStats:  ds.ImportStats,
	}
	if s.Data == nil {
		s.Data = map[string]VideoRecord{}
	}
	if s.ActorRecords == nil {
		s.ActorRecords = map[string]ActorRecord{}
	}
	if s.Logs == nil {
		s.Logs = []json.RawMessage{}
	}
	if ds.Subscriptions != nil || ds.Works != nil || ds.NewWorksConfig != nil {
		s.NewWorks = &NewWorks{
			Subscriptions: ds.Subscriptions,
			Records:       ds.Works,
			Config:        ds.NewWorksConfig,
		}
	}
	return s
}
