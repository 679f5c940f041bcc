package model

import "encoding/json"

// Subscription marks an actor whose new works are tracked, keyed by actor id.
type Subscription struct {
	ActorID      string     `json:"actorId"`
	ActorName    string     `json:"actorName,omitempty"`
	Enabled      bool       `json:"enabled"`
	LastCheckAt  Millis     `json:"lastCheckAt"`
	SubscribedAt Millis     `json:"subscribedAt"`
	Extra        Extensions `json:"-"`
}

var subscriptionFields = fieldSet("actorId", "actorName", "enabled", "lastCheckAt", "subscribedAt")

func (s *Subscription) UnmarshalJSON(data []byte) error {
	type plain Subscription
	var p plain
	ext, err := decodeWithExtensions(data, &p, subscriptionFields)
	if err != nil {
		return err
	}
	*s = Subscription(p)
	s.Extra = ext
	return nil
}

func (s Subscription) MarshalJSON() ([]byte, error) {
	type plain Subscription
	return encodeWithExtensions(plain(s), s.Extra)
}

// Touched returns the latest moment the subscription changed: the last check
// if there was one, otherwise when it was created.
func (s Subscription) Touched() Millis {
	if s.LastCheckAt > s.SubscribedAt {
		return s.LastCheckAt
	}
	return s.SubscribedAt
}

// Equal compares two subscriptions. The last-check time moves on every poll
// and is ignored.
func (s Subscription) Equal(o Subscription) bool {
	return s.ActorID == o.ActorID &&
		s.ActorName == o.ActorName &&
		s.Enabled == o.Enabled &&
		s.SubscribedAt == o.SubscribedAt &&
		s.Extra.Equal(o.Extra)
}

// Clone returns a deep copy of s.
func (s Subscription) Clone() Subscription {
	s.Extra = s.Extra.Clone()
	return s
}

// WorkRecord is a newly discovered work of a subscribed actor.
type WorkRecord struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	ActorID      string     `json:"actorId"`
	ActorName    string     `json:"actorName,omitempty"`
	Tags         []string   `json:"tags"`
	ReleaseDate  string     `json:"releaseDate,omitempty"`
	URL          string     `json:"url,omitempty"`
	CoverImage   string     `json:"coverImage,omitempty"`
	DiscoveredAt Millis     `json:"discoveredAt"`
	UpdatedAt    Millis     `json:"updatedAt,omitempty"`
	Extra        Extensions `json:"-"`
}

var workFields = fieldSet("id", "title", "actorId", "actorName", "tags", "releaseDate", "url", "coverImage", "discoveredAt", "updatedAt")

func (w *WorkRecord) UnmarshalJSON(data []byte) error {
	type plain WorkRecord
	var p plain
	ext, err := decodeWithExtensions(data, &p, workFields)
	if err != nil {
		return err
	}
	*w = WorkRecord(p)
	w.Extra = ext
	return nil
}

func (w WorkRecord) MarshalJSON() ([]byte, error) {
	type plain WorkRecord
	return encodeWithExtensions(plain(w), w.Extra)
}

// Touched returns updatedAt when set, otherwise the discovery time.
func (w WorkRecord) Touched() Millis {
	if w.UpdatedAt > w.DiscoveredAt {
		return w.UpdatedAt
	}
	return w.DiscoveredAt
}

// Equal compares two work records by content, ignoring updatedAt.
func (w WorkRecord) Equal(o WorkRecord) bool {
	return w.ID == o.ID &&
		w.Title == o.Title &&
		w.ActorID == o.ActorID &&
		w.ActorName == o.ActorName &&
		sameSet(w.Tags, o.Tags) &&
		w.ReleaseDate == o.ReleaseDate &&
		w.URL == o.URL &&
		w.CoverImage == o.CoverImage &&
		w.DiscoveredAt == o.DiscoveredAt &&
		w.Extra.Equal(o.Extra)
}

// Clone returns a deep copy of w.
func (w WorkRecord) Clone() WorkRecord {
	w.Tags = cloneStrings(w.Tags)
	w.Extra = w.Extra.Clone()
	return w
}

// NewWorks is the "new works" section of a snapshot.
type NewWorks struct {
	Subscriptions map[string]Subscription `json:"subscriptions"`
	Records       map[string]WorkRecord   `json:"records"`
	Config        json.RawMessage         `json:"config,omitempty"`
}

// Settings is the user's configuration, kept as opaque top-level sections.
type Settings map[string]json.RawMessage
