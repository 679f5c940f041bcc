package catsync

import (
	"fmt"

	"catsync-go/internal/model"
)

// DefaultRequiredSettings are the settings sections a restored settings document must contain.
var DefaultRequiredSettings = []string{"display", "sync", "actorSync"}

// Validator checks a candidate dataset before it is committed.
type Validator struct {
	RequiredSettings []string
}

// NewValidator creates a Validator. A nil list selects DefaultRequiredSettings.
func NewValidator(requiredSettings []string) *Validator {
	if requiredSettings == nil {
		requiredSettings = DefaultRequiredSettings
	}
	return &Validator{RequiredSettings: requiredSettings}
}

// Validate checks the listed domains of ds and returns a validation error
// naming every violation, or nil.
func (v *Validator) Validate(ds *model.Dataset, domains []model.Domain) error {
	var violations []Violation
	add := func(d model.Domain, key, format string, args ...any) {
		violations = append(violations, Violation{Domain: d, Key: key, Rule: fmt.Sprintf(format, args...)})
	}

	for _, d := range domains {
		switch d {
		case model.DomainVideos:
			for _, key := range sortedKeys(ds.Videos) {
				rec := ds.Videos[key]
				if rec.ID == "" {
					add(d, key, "id is empty")
				} else if rec.ID != key {
					add(d, key, "id %q does not match its key", rec.ID)
				}
				if rec.Title == "" {
					add(d, key, "title is empty")
				}
				if !rec.Status.Valid() {
					add(d, key, "unknown status %q", rec.Status)
				}
				if rec.Tags == nil {
					add(d, key, "tags is not a list")
				}
			}
		case model.DomainActors:
			for _, key := range sortedKeys(ds.Actors) {
				rec := ds.Actors[key]
				if rec.ID == "" {
					add(d, key, "id is empty")
				} else if rec.ID != key {
					add(d, key, "id %q does not match its key", rec.ID)
				}
				if rec.Name == "" {
					add(d, key, "name is empty")
				}
				if !rec.Gender.Valid() {
					add(d, key, "unknown gender %q", rec.Gender)
				}
				if !rec.Category.Valid() {
					add(d, key, "unknown category %q", rec.Category)
				}
				if rec.Aliases == nil {
					add(d, key, "aliases is not a list")
				}
			}
		case model.DomainSubscriptions:
			for _, key := range sortedKeys(ds.Subscriptions) {
				if id := ds.Subscriptions[key].ActorID; id != key {
					add(d, key, "actor id %q does not match its key", id)
				}
			}
		case model.DomainWorks:
			for _, key := range sortedKeys(ds.Works) {
				if id := ds.Works[key].ID; id != key {
					add(d, key, "id %q does not match its key", id)
				}
			}
		case model.DomainSettings:
			if ds.Settings == nil {
				continue
			}
			for _, section := range v.RequiredSettings {
				if !model.Present(ds.Settings[section]) {
					add(d, "", "required section %q is missing", section)
				}
			}
		}
	}

	if len(violations) > 0 {
		return validationError(violations)
	}
	return nil
}
