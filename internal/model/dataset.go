package model

import (
	"encoding/json"
	"fmt"
)

// Domain names one category of stored data. The value doubles as the storage key.
type Domain string

const (
	DomainVideos         Domain = "videoRecords"
	DomainActors         Domain = "actorRecords"
	DomainSubscriptions  Domain = "newWorks.subscriptions"
	DomainWorks          Domain = "newWorks.records"
	DomainNewWorksConfig Domain = "newWorks.config"
	DomainSettings       Domain = "settings"
	DomainUserProfile    Domain = "userProfile"
	DomainLogs           Domain = "logs"
	DomainImportStats    Domain = "importStats"
)

// AllDomains lists every domain in commit order.
var AllDomains = []Domain{
	DomainSettings,
	DomainVideos,
	DomainActors,
	DomainSubscriptions,
	DomainWorks,
	DomainNewWorksConfig,
	DomainUserProfile,
	DomainLogs,
	DomainImportStats,
}

// Dataset is the complete user dataset, local or restored.
// A nil map or blob means the domain is absent.
type Dataset struct {
	Videos         map[string]VideoRecord
	Actors         map[string]ActorRecord
	Subscriptions  map[string]Subscription
	Works          map[string]WorkRecord
	NewWorksConfig json.RawMessage
	Settings       Settings
	UserProfile    json.RawMessage
	Logs           []json.RawMessage
	ImportStats    json.RawMessage
}

// EncodeDomain returns the stored form of one domain, or nil if the domain is absent.
func (ds *Dataset) EncodeDomain(d Domain) ([]byte, error) {
	var v any
	switch d {
	case DomainVideos:
		if ds.Videos == nil {
			return nil, nil
		}
		v = ds.Videos
	case DomainActors:
		if ds.Actors == nil {
			return nil, nil
		}
		v = ds.Actors
	case DomainSubscriptions:
		if ds.Subscriptions == nil {
			return nil, nil
		}
		v = ds.Subscriptions
	case DomainWorks:
		if ds.Works == nil {
			return nil, nil
		}
		v = ds.Works
	case DomainSettings:
		if ds.Settings == nil {
			return nil, nil
		}
		v = ds.Settings
	case DomainLogs:
		if ds.Logs == nil {
			return nil, nil
		}
		v = ds.Logs
	case DomainNewWorksConfig:
		return blobBytes(ds.NewWorksConfig), nil
	case DomainUserProfile:
		return blobBytes(ds.UserProfile), nil
	case DomainImportStats:
		return blobBytes(ds.ImportStats), nil
	default:
		return nil, fmt.Errorf("unknown domain: %s", d)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", d, err)
	}
	return data, nil
}

// DecodeDomain sets one domain from its stored form. Nil data clears the domain.
func (ds *Dataset) DecodeDomain(d Domain, data []byte) error {
	present := Present(data)
	var err error
	switch d {
	case DomainVideos:
		ds.Videos = nil
		if present {
			err = json.Unmarshal(data, &ds.Videos)
		}
	case DomainActors:
		ds.Actors = nil
		if present {
			err = json.Unmarshal(data, &ds.Actors)
		}
	case DomainSubscriptions:
		ds.Subscriptions = nil
		if present {
			err = json.Unmarshal(data, &ds.Subscriptions)
		}
	case DomainWorks:
		ds.Works = nil
		if present {
			err = json.Unmarshal(data, &ds.Works)
		}
	case DomainSettings:
		ds.Settings = nil
		if present {
			err = json.Unmarshal(data, &ds.Settings)
		}
	case DomainLogs:
		ds.Logs = nil
		if present {
			err = json.Unmarshal(data, &ds.Logs)
		}
	case DomainNewWorksConfig:
		ds.NewWorksConfig = blobBytes(data)
	case DomainUserProfile:
		ds.UserProfile = blobBytes(data)
	case DomainImportStats:
		ds.ImportStats = blobBytes(data)
	default:
		return fmt.Errorf("unknown domain: %s", d)
	}
	if err != nil {
		return fmt.Errorf("decoding %s: %w", d, err)
	}
	return nil
}

// Counts returns the number of keyed entries per domain, for display.
func (ds *Dataset) Counts() map[Domain]int {
	return map[Domain]int{
		DomainVideos:        len(ds.Videos),
		DomainActors:        len(ds.Actors),
		DomainSubscriptions: len(ds.Subscriptions),
		DomainWorks:         len(ds.Works),
		DomainSettings:      len(ds.Settings),
		DomainLogs:          len(ds.Logs),
	}
}

func blobBytes(raw json.RawMessage) []byte {
	if !Present(raw) {
		return nil
	}
	return Canonical(raw)
}
