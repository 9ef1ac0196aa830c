// Package types holds the catalog data model shared by the ingestion
// pipeline and the read API.
package types

import (
	"encoding/json"
	"time"
)

// Transport type values used by remotes and package transports.
const (
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
	TransportStdio          = "stdio"
)

// ServerRecord is the normalized form of an upstream server version.
// It is immutable once written for a given (name, version).
type ServerRecord struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Description   string    `json:"description,omitempty"`
	Title         string    `json:"title,omitempty"`
	RepositoryURL string    `json:"repositoryUrl,omitempty"`
	WebsiteURL    string    `json:"websiteUrl,omitempty"`
	Remotes       []Remote  `json:"remotes,omitempty"`
	Packages      []Package `json:"packages,omitempty"`
}

// Remote is a network endpoint a server is reachable at.
type Remote struct {
	Type    string   `json:"type"`
	URL     string   `json:"url"`
	Headers []Header `json:"headers,omitempty"`
}

// Header describes a header a remote expects; values are never stored.
type Header struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsSecret    bool   `json:"isSecret,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Package is an installable distribution of a server.
type Package struct {
	RegistryType     string     `json:"registryType,omitempty"`
	Identifier       string     `json:"identifier,omitempty"`
	Version          string     `json:"version,omitempty"`
	RuntimeHint      string     `json:"runtimeHint,omitempty"`
	Transport        *Transport `json:"transport,omitempty"`
	PackageArguments []Argument `json:"packageArguments,omitempty"`
}

// Transport describes how a package is spoken to once running.
type Transport struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Argument is a package argument; only positional arguments are projected
// into install commands.
type Argument struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// ArgumentTypePositional marks arguments appended verbatim to install commands.
const ArgumentTypePositional = "positional"

// ServerKind classifies what role a server plays in a RAG pipeline.
type ServerKind string

const (
	ServerKindRetriever ServerKind = "retriever"
	ServerKindEvaluator ServerKind = "evaluator"
	ServerKindIndexer   ServerKind = "indexer"
	ServerKindRouter    ServerKind = "router"
	ServerKindOther     ServerKind = "other"
)

// Embedding is a dense vector derived from a server's text blob.
type Embedding struct {
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Vector     []float32 `json:"vector"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Enrichment is the derived classification of a server record. Everything
// except the reachability fields is a pure function of the record; the
// reachability fields are written by the probe scheduler and absent values
// mean "unknown", never "false".
type Enrichment struct {
	Categories        []string   `json:"categories"`
	RagScore          int        `json:"ragScore"`
	Reasons           []string   `json:"reasons,omitempty"`
	Keywords          []string   `json:"keywords,omitempty"`
	HasRemote         bool       `json:"hasRemote"`
	LocalOnly         bool       `json:"localOnly"`
	Citations         bool       `json:"citations"`
	ServerKind        ServerKind `json:"serverKind"`
	Embedding         *Embedding `json:"embedding,omitempty"`
	EmbeddingTextHash string     `json:"embeddingTextHash,omitempty"`

	Reachable          *bool      `json:"reachable,omitempty"`
	ReachableCheckedAt *time.Time `json:"reachableCheckedAt,omitempty"`
	LastReachableAt    *time.Time `json:"lastReachableAt,omitempty"`
	ReachableStatus    *int       `json:"reachableStatus,omitempty"`
	ReachableMethod    string     `json:"reachableMethod,omitempty"`
}

// HasReachabilitySignal reports whether any probe has ever touched this
// enrichment.
func (e *Enrichment) HasReachabilitySignal() bool {
	return e.Reachable != nil || e.ReachableCheckedAt != nil || e.LastReachableAt != nil
}

// CatalogEntry is the canonical serialized form of a server version. The
// official and publisher-provided blobs round-trip unchanged; only the known
// official keys are ever interpreted, via ParseOfficial.
type CatalogEntry struct {
	Server            ServerRecord    `json:"server"`
	Official          json.RawMessage `json:"official,omitempty"`
	PublisherProvided json.RawMessage `json:"publisherProvided,omitempty"`
	RagMap            Enrichment      `json:"ragmap"`
}

// OfficialMeta carries the known keys of the upstream official metadata blob.
type OfficialMeta struct {
	Status      string `json:"status,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
	IsLatest    bool   `json:"isLatest,omitempty"`
}

// ParseOfficial decodes the known keys of an official metadata blob. Unknown
// keys are ignored and remain in the raw blob. A nil or malformed blob yields
// the zero value.
func ParseOfficial(raw json.RawMessage) OfficialMeta {
	var meta OfficialMeta
	if len(raw) == 0 {
		return meta
	}
	_ = json.Unmarshal(raw, &meta)
	return meta
}

// UpdatedAtTime parses the official updatedAt timestamp, falling back to
// publishedAt. Returns the zero time when neither parses.
func (m OfficialMeta) UpdatedAtTime() time.Time {
	for _, raw := range []string{m.UpdatedAt, m.PublishedAt} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// PublishedAtTime parses the official publishedAt timestamp.
func (m OfficialMeta) PublishedAtTime() time.Time {
	if m.PublishedAt == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, m.PublishedAt); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// RunMode selects how much of the upstream catalog an ingestion run covers.
type RunMode string

const (
	RunModeFull        RunMode = "full"
	RunModeIncremental RunMode = "incremental"
)

// RunMeta identifies a single ingestion run. Runs are independent; there is
// no cross-run locking.
type RunMeta struct {
	RunID      string     `json:"runId"`
	Mode       RunMode    `json:"mode"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
