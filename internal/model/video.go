package model

// VideoRecord is the user's watch record for one video, keyed by video code.
type VideoRecord struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	Tags        []string   `json:"tags"`
	ListIDs     []string   `json:"listIds"`
	ReleaseDate string     `json:"releaseDate,omitempty"`
	URL         string     `json:"url,omitempty"`
	CoverImage  string     `json:"coverImage,omitempty"`
	CreatedAt   Millis     `json:"createdAt"`
	UpdatedAt   Millis     `json:"updatedAt"`
	Extra       Extensions `json:"-"`
}

var videoFields = fieldSet("id", "title", "status", "tags", "listIds", "releaseDate", "url", "coverImage", "createdAt", "updatedAt")

func (v *VideoRecord) UnmarshalJSON(data []byte) error {
	type plain VideoRecord
	var p plain
	ext, err := decodeWithExtensions(data, &p, videoFields)
	if err != nil {
		return err
	}
	*v = VideoRecord(p)
	v.Extra = ext
	return nil
}

func (v VideoRecord) MarshalJSON() ([]byte, error) {
	type plain VideoRecord
	return encodeWithExtensions(plain(v), v.Extra)
}

// Equal compares two records by content. Creation and update timestamps are
// bookkeeping and do not make two records different; tags and lists compare as sets.
func (v VideoRecord) Equal(o VideoRecord) bool {
	return v.ID == o.ID &&
		v.Title == o.Title &&
		v.Status == o.Status &&
		sameSet(v.Tags, o.Tags) &&
		sameSet(v.ListIDs, o.ListIDs) &&
		v.ReleaseDate == o.ReleaseDate &&
		v.URL == o.URL &&
		v.CoverImage == o.CoverImage &&
		v.Extra.Equal(o.Extra)
}

// Clone returns a deep copy of v.
func (v VideoRecord) Clone() VideoRecord {
	v.Tags = cloneStrings(v.Tags)
	v.ListIDs = cloneStrings(v.ListIDs)
	v.Extra = v.Extra.Clone()
	return v
}

// MergeVideos combines two versions of the same record field by field:
// the higher-priority status wins, tags are unioned, updatedAt is the later of
// the two and every other field comes from the more recently updated side
// (local on a tie).
func MergeVideos(local, remote VideoRecord) VideoRecord {
	newer, older := local, remote
	if remote.UpdatedAt > local.UpdatedAt {
		newer, older = remote, local
	}

	merged := newer.Clone()
	merged.Status = SafeUpdate(older.Status, newer.Status)
	merged.Tags = UnionStrings(local.Tags, remote.Tags)
	if merged.ListIDs == nil {
		merged.ListIDs = []string{}
	}
	if older.UpdatedAt > merged.UpdatedAt {
		merged.UpdatedAt = older.UpdatedAt
	}
	return merged
}
