package catsync

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"catsync-go/internal/model"
)

// ConflictView is a conflict in encoded form, for display.
type ConflictView struct {
	Domain      model.Domain
	Key         string
	Recommended Side
	Local       json.RawMessage
	Remote      json.RawMessage
}

// DomainPreview counts the diff of one domain.
type DomainPreview struct {
	Domain     model.Domain
	LocalOnly  int
	RemoteOnly int
	Identical  int
	Conflicts  []ConflictView
}

// PreviewReport is what a session shows before it is applied.
type PreviewReport struct {
	SessionID string
	Version   SchemaVersion
	Strategy  Strategy
	Warnings  []error
	Domains   []DomainPreview
}

// Report summarizes the diff of a previewing session, in commit order.
func (s *Session) Report() (*PreviewReport, error) {
	r := &PreviewReport{
		SessionID: s.ID,
		Version:   s.version,
		Strategy:  s.opts.Strategy,
		Warnings:  s.warnings,
	}
	d := s.diff
	if d == nil {
		return r, nil
	}

	for _, domain := range model.AllDomains {
		var p *DomainPreview
		var err error
		switch domain {
		case model.DomainVideos:
			p, err = keyedPreview(domain, d.Videos)
		case model.DomainActors:
			p, err = keyedPreview(domain, d.Actors)
		case model.DomainSubscriptions:
			p, err = keyedPreview(domain, d.Subscriptions)
		case model.DomainWorks:
			p, err = keyedPreview(domain, d.Works)
		case model.DomainSettings:
			p, err = keyedPreview(domain, d.Settings)
		case model.DomainLogs:
			if d.Logs != nil {
				p = &DomainPreview{
					Domain:     domain,
					LocalOnly:  max(len(d.Logs.Local)-d.Logs.Shared, 0),
					RemoteOnly: len(d.Logs.RemoteOnly),
					Identical:  d.Logs.Shared,
				}
			}
		default:
			if b, ok := d.Blobs[domain]; ok {
				p = blobPreview(domain, b)
			}
		}
		if err != nil {
			return nil, err
		}
		if p != nil {
			r.Domains = append(r.Domains, *p)
		}
	}
	return r, nil
}

func keyedPreview[T any](domain model.Domain, d *DiffResult[T]) (*DomainPreview, error) {
	if d == nil {
		return nil, nil
	}
	p := &DomainPreview{
		Domain:     domain,
		LocalOnly:  len(d.LocalOnly),
		RemoteOnly: len(d.RemoteOnly),
		Identical:  len(d.Identical),
	}
	for _, c := range d.Conflicts {
		l, err := json.Marshal(c.Local)
		if err != nil {
			return nil, fmt.Errorf("encoding %s[%s]: %w", domain, c.Key, err)
		}
		r, err := json.Marshal(c.Remote)
		if err != nil {
			return nil, fmt.Errorf("encoding %s[%s]: %w", domain, c.Key, err)
		}
		p.Conflicts = append(p.Conflicts, ConflictView{
			Domain:      domain,
			Key:         c.Key,
			Recommended: c.Recommended,
			Local:       l,
			Remote:      r,
		})
	}
	return p, nil
}

func blobPreview(domain model.Domain, b BlobDiff) *DomainPreview {
	p := &DomainPreview{Domain: domain}
	switch {
	case b.Identical():
		p.Identical = 1
	case b.Local == nil:
		p.RemoteOnly = 1
	default:
		p.Conflicts = []ConflictView{{
			Domain:      domain,
			Key:         string(domain),
			Recommended: SideRemote,
			Local:       b.Local,
			Remote:      b.Remote,
		}}
	}
	return p
}

// RenderConflict renders a unified diff from the local to the remote version.
func RenderConflict(c ConflictView) (string, error) {
	local, err := indent(c.Local)
	if err != nil {
		return "", err
	}
	remote, err := indent(c.Remote)
	if err != nil {
		return "", err
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(local),
		B:        difflib.SplitLines(remote),
		FromFile: fmt.Sprintf("local/%s/%s", c.Domain, c.Key),
		ToFile:   fmt.Sprintf("remote/%s/%s", c.Domain, c.Key),
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}

func indent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, model.Canonical(raw), "", "  "); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}
