package query

import (
	"strings"

	"github.com/ragmap-dev/ragmap/internal/ragmap/enrich"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// Filters narrows the latest catalog before any ranking happens. All set
// fields must match (AND semantics).
type Filters struct {
	MinScore     *int
	Categories   []string
	Transport    string
	RegistryType string
	HasRemote    *bool
	Reachable    *bool
	Citations    *bool
	LocalOnly    *bool
	ServerKind   types.ServerKind
}

// Matches reports whether the item passes every set filter.
func (f Filters) Matches(item *Item) bool {
	ragmap := item.Entry.RagMap

	if f.MinScore != nil && ragmap.RagScore < *f.MinScore {
		return false
	}
	if len(f.Categories) > 0 {
		have := make(map[string]bool, len(ragmap.Categories))
		for _, category := range ragmap.Categories {
			have[strings.ToLower(category)] = true
		}
		for _, want := range f.Categories {
			if !have[strings.ToLower(want)] {
				return false
			}
		}
	}
	if f.Transport != "" && !hasTransport(item.Entry.Server, f.Transport) {
		return false
	}
	if f.RegistryType != "" && !hasRegistryType(item.Entry.Server, f.RegistryType) {
		return false
	}
	if f.HasRemote != nil && effectiveHasRemote(&item.Entry) != *f.HasRemote {
		return false
	}
	if f.Reachable != nil {
		reachable := ragmap.Reachable != nil && *ragmap.Reachable
		if reachable != *f.Reachable {
			return false
		}
	}
	if f.Citations != nil && ragmap.Citations != *f.Citations {
		return false
	}
	if f.LocalOnly != nil {
		localOnly := !effectiveHasRemote(&item.Entry)
		if localOnly != *f.LocalOnly {
			return false
		}
	}
	if f.ServerKind != "" && effectiveKind(&item.Entry) != f.ServerKind {
		return false
	}
	return true
}

func hasTransport(record types.ServerRecord, transport string) bool {
	for _, pkg := range record.Packages {
		if pkg.Transport != nil && pkg.Transport.Type == transport {
			return true
		}
	}
	for _, remote := range record.Remotes {
		if remote.Type == transport {
			return true
		}
	}
	return false
}

func hasRegistryType(record types.ServerRecord, registryType string) bool {
	for _, pkg := range record.Packages {
		if strings.EqualFold(pkg.RegistryType, registryType) {
			return true
		}
	}
	return false
}

// effectiveHasRemote trusts the stored enrichment and recomputes from the
// server record when the enrichment never ran (neither capability flag set).
func effectiveHasRemote(entry *types.CatalogEntry) bool {
	if !entry.RagMap.HasRemote && !entry.RagMap.LocalOnly {
		return enrich.HasRemoteEndpoint(entry.Server)
	}
	return entry.RagMap.HasRemote
}

func effectiveKind(entry *types.CatalogEntry) types.ServerKind {
	if entry.RagMap.ServerKind == "" {
		return enrich.ClassifyKind(entry.Server)
	}
	return entry.RagMap.ServerKind
}
