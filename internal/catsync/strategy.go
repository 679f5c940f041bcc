package catsync

import (
	"fmt"
	"sort"
	"strings"

	"catsync-go/internal/model"
)

// Strategy is the policy that decides conflicts and one-sided records.
type Strategy int

const (
	// StrategySmart follows each conflict's recommendation and keeps the union of both sides.
	StrategySmart Strategy = iota
	// StrategyLocal keeps local data and imports nothing from the snapshot.
	StrategyLocal
	// StrategyRemote takes the snapshot's side of every conflict.
	StrategyRemote
	// StrategyManual requires an explicit resolution for every conflict.
	StrategyManual
)

var strategyNames = map[Strategy]string{
	StrategySmart:  "smart",
	StrategyLocal:  "local",
	StrategyRemote: "remote",
	StrategyManual: "manual",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy parses a strategy name. "custom" is accepted as a synonym for "manual".
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "smart", "":
		return StrategySmart, nil
	case "local":
		return StrategyLocal, nil
	case "remote":
		return StrategyRemote, nil
	case "manual", "custom":
		return StrategyManual, nil
	}
	return 0, fmt.Errorf("unknown strategy %q (expected smart, local, remote or manual)", name)
}

// Resolution is an explicit per-record decision.
type Resolution string

const (
	ResolveLocal  Resolution = "local"
	ResolveRemote Resolution = "remote"
	ResolveMerge  Resolution = "merge"
)

// ParseResolution parses a resolution name.
func ParseResolution(name string) (Resolution, error) {
	switch r := Resolution(strings.ToLower(strings.TrimSpace(name))); r {
	case ResolveLocal, ResolveRemote, ResolveMerge:
		return r, nil
	}
	return "", fmt.Errorf("unknown resolution %q (expected local, remote or merge)", name)
}

// Side names one of the two datasets being reconciled.
type Side int

const (
	SideLocal Side = iota
	SideRemote
)

func (s Side) String() string {
	if s == SideRemote {
		return "remote"
	}
	return "local"
}

// Overrides holds explicit resolutions per domain and key.
type Overrides map[model.Domain]map[string]Resolution

// Set records a resolution for one key.
func (o Overrides) Set(domain model.Domain, key string, r Resolution) {
	if o[domain] == nil {
		o[domain] = make(map[string]Resolution)
	}
	o[domain][key] = r
}

// MergeOptions controls one restore.
type MergeOptions struct {
	Strategy Strategy
	// Domains limits the restore to the listed domains. Nil means every domain.
	Domains []model.Domain
	// Overrides apply under every strategy and are mandatory for conflicts under StrategyManual.
	Overrides Overrides
	// RemoteExclusive makes StrategyRemote drop local records the snapshot does not contain.
	RemoteExclusive bool
}

func (o MergeOptions) includes(d model.Domain) bool {
	if o.Domains == nil {
		return true
	}
	for _, x := range o.Domains {
		if x == d {
			return true
		}
	}
	return false
}

// domainGroups maps restore selection names to the domains they cover.
var domainGroups = map[string][]model.Domain{
	"newWorks": {model.DomainSubscriptions, model.DomainWorks, model.DomainNewWorksConfig},
}

// ParseDomains turns user-facing selection names into domains. Besides the domain
// names themselves, "newWorks" selects all of the new-works domains.
func ParseDomains(names []string) ([]model.Domain, error) {
	seen := make(map[model.Domain]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if group, ok := domainGroups[name]; ok {
			for _, d := range group {
				seen[d] = true
			}
			continue
		}
		found := false
		for _, d := range model.AllDomains {
			if string(d) == name {
				seen[d] = true
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown domain %q", name)
		}
	}

	out := make([]model.Domain, 0, len(seen))
	for _, d := range model.AllDomains {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out, nil
}

// ParseOverride parses "domain:key=resolution".
func ParseOverride(s string) (model.Domain, string, Resolution, error) {
	target, res, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", "", fmt.Errorf("invalid override %q (expected domain:key=resolution)", s)
	}
	domainName, key, ok := strings.Cut(target, ":")
	if !ok || key == "" {
		return "", "", "", fmt.Errorf("invalid override %q (expected domain:key=resolution)", s)
	}
	domains, err := ParseDomains([]string{domainName})
	if err != nil {
		return "", "", "", err
	}
	if len(domains) != 1 {
		return "", "", "", fmt.Errorf("override must name a single domain: %q", domainName)
	}
	r, err := ParseResolution(res)
	if err != nil {
		return "", "", "", err
	}
	return domains[0], key, r, nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
