package model

// Gender of an actor as recorded by the catalogue site.
type Gender string

const (
	GenderFemale  Gender = "female"
	GenderMale    Gender = "male"
	GenderUnknown Gender = "unknown"
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool {
	switch g {
	case GenderFemale, GenderMale, GenderUnknown:
		return true
	}
	return false
}

// Category is the catalogue section an actor belongs to.
type Category string

const (
	CategoryCensored   Category = "censored"
	CategoryUncensored Category = "uncensored"
	CategoryWestern    Category = "western"
	CategoryUnknown    Category = "unknown"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCensored, CategoryUncensored, CategoryWestern, CategoryUnknown:
		return true
	}
	return false
}

// ActorRecord is a saved actor, keyed by the site's actor id.
// Aliases is always a list: decoding a record without aliases yields an empty one.
type ActorRecord struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Gender     Gender     `json:"gender"`
	Category   Category   `json:"category"`
	Aliases    []string   `json:"aliases"`
	ProfileURL string     `json:"profileUrl,omitempty"`
	AvatarURL  string     `json:"avatarUrl,omitempty"`
	CreatedAt  Millis     `json:"createdAt"`
	UpdatedAt  Millis     `json:"updatedAt"`
	Extra      Extensions `json:"-"`
}

var actorFields = fieldSet("id", "name", "gender", "category", "aliases", "profileUrl", "avatarUrl", "createdAt", "updatedAt")

func (a *ActorRecord) UnmarshalJSON(data []byte) error {
	type plain ActorRecord
	var p plain
	ext, err := decodeWithExtensions(data, &p, actorFields)
	if err != nil {
		return err
	}
	*a = ActorRecord(p)
	a.Extra = ext
	if a.Aliases == nil {
		a.Aliases = []string{}
	}
	return nil
}

func (a ActorRecord) MarshalJSON() ([]byte, error) {
	type plain ActorRecord
	if a.Aliases == nil {
		a.Aliases = []string{}
	}
	return encodeWithExtensions(plain(a), a.Extra)
}

// Equal compares two actor records by content, ignoring timestamps.
func (a ActorRecord) Equal(o ActorRecord) bool {
	return a.ID == o.ID &&
		a.Name == o.Name &&
		a.Gender == o.Gender &&
		a.Category == o.Category &&
		sameSet(a.Aliases, o.Aliases) &&
		a.ProfileURL == o.ProfileURL &&
		a.AvatarURL == o.AvatarURL &&
		a.Extra.Equal(o.Extra)
}

// Clone returns a deep copy of a.
func (a ActorRecord) Clone() ActorRecord {
	a.Aliases = cloneStrings(a.Aliases)
	a.Extra = a.Extra.Clone()
	return a
}

// MergeActors keeps the more recently updated side (local on a tie) and unions aliases.
func MergeActors(local, remote ActorRecord) ActorRecord {
	merged := local.Clone()
	if remote.UpdatedAt > local.UpdatedAt {
		merged = remote.Clone()
	}
	merged.Aliases = UnionStrings(local.Aliases, remote.Aliases)
	return merged
}
