package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// Reverse-DNS keys the upstream registry uses inside each entry's _meta blob.
const (
	officialMetaKey          = "io.modelcontextprotocol.registry/official"
	publisherProvidedMetaKey = "io.modelcontextprotocol.registry/publisher-provided"
)

// entryEnvelope mirrors one element of the upstream servers array.
type entryEnvelope struct {
	Server json.RawMessage            `json:"server"`
	Meta   map[string]json.RawMessage `json:"_meta"`
}

// serverWire is the upstream server shape. It differs from the stored record
// only in nesting the repository URL inside an object.
type serverWire struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Title       string          `json:"title"`
	WebsiteURL  string          `json:"websiteUrl"`
	Repository  *repositoryWire `json:"repository"`
	Remotes     []types.Remote  `json:"remotes"`
	Packages    []types.Package `json:"packages"`
}

type repositoryWire struct {
	URL string `json:"url"`
}

// normalizedEntry is the catalog-ready decomposition of one upstream blob.
// Official and PublisherProvided stay opaque so unknown upstream fields
// round-trip unchanged.
type normalizedEntry struct {
	Server            types.ServerRecord
	Official          json.RawMessage
	PublisherProvided json.RawMessage
}

// normalizeEntry maps a raw upstream entry into its stored parts.
func normalizeEntry(raw json.RawMessage) (*normalizedEntry, error) {
	var envelope entryEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode upstream entry: %w", err)
	}
	if len(envelope.Server) == 0 {
		return nil, fmt.Errorf("upstream entry has no server object")
	}

	var wire serverWire
	if err := json.Unmarshal(envelope.Server, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode upstream server object: %w", err)
	}

	record := types.ServerRecord{
		Name:        wire.Name,
		Version:     wire.Version,
		Description: wire.Description,
		Title:       wire.Title,
		WebsiteURL:  wire.WebsiteURL,
		Remotes:     wire.Remotes,
		Packages:    wire.Packages,
	}
	if wire.Repository != nil {
		record.RepositoryURL = wire.Repository.URL
	}

	entry := &normalizedEntry{Server: record}
	if official, ok := envelope.Meta[officialMetaKey]; ok {
		entry.Official = official
	}
	if publisher, ok := envelope.Meta[publisherProvidedMetaKey]; ok {
		entry.PublisherProvided = publisher
	}
	return entry, nil
}
