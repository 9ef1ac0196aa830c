// Package enrich derives the RAG-relevance classification of a server
// record. Enrichment is a pure function of the record: identical inputs
// produce bit-identical outputs, which the ingestion pipeline relies on to
// skip redundant embedding work.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

const (
	maxScore    = 100
	maxReasons  = 12
	maxKeywords = 24
)

// rule is one row of the scoring table. Rules fire at most once per record;
// requireCore rules fire only after a core (non-requireCore) rule has fired.
type rule struct {
	category    string
	weight      int
	pattern     *regexp.Regexp
	keyword     string
	requireCore bool
}

var rules = []rule{
	{category: "rag", weight: 30, pattern: regexp.MustCompile(`(?i)\brag\b|retrieval[- ]augmented`), keyword: "rag"},
	{category: "retrieval", weight: 15, pattern: regexp.MustCompile(`(?i)\bretriev(al|e)\b|semantic search`), keyword: "retrieval"},
	{category: "embeddings", weight: 20, pattern: regexp.MustCompile(`(?i)\bembedding(s)?\b|vectorize|text-embedding`), keyword: "embeddings"},
	{category: "vector-db", weight: 20, pattern: regexp.MustCompile(`(?i)\bvector\s*(db|database)\b|vector store|pgvector`), keyword: "vector db"},
	{category: "qdrant", weight: 15, pattern: regexp.MustCompile(`(?i)\bqdrant\b`)},
	{category: "pinecone", weight: 15, pattern: regexp.MustCompile(`(?i)\bpinecone\b`)},
	{category: "weaviate", weight: 15, pattern: regexp.MustCompile(`(?i)\bweaviate\b`)},
	{category: "milvus", weight: 15, pattern: regexp.MustCompile(`(?i)\bmilvus\b`)},
	{category: "chroma", weight: 15, pattern: regexp.MustCompile(`(?i)\bchroma\b`)},
	{category: "reranking", weight: 12, pattern: regexp.MustCompile(`(?i)\brerank(er|ing)?\b`), keyword: "rerank"},
	{category: "documents", weight: 10, pattern: regexp.MustCompile(`(?i)\bpdf\b|docx|markdown|documents?\b`), keyword: "documents"},
	{category: "ingestion", weight: 10, pattern: regexp.MustCompile(`(?i)\bingest(ion|ing)?\b|etl|connector`), keyword: "ingestion"},
	{category: "search", weight: 8, pattern: regexp.MustCompile(`(?i)\bsearch\b|query\b`), keyword: "search", requireCore: true},
}

var citationsPattern = regexp.MustCompile(`(?i)\bcitation(s)?\b|cite(s|d)?\s+(source|reference)|source\s+attribution|grounding\b|provenance\b`)

// kindRules classify a server's role; the first match wins.
var kindRules = []struct {
	kind    types.ServerKind
	pattern *regexp.Regexp
}{
	{types.ServerKindEvaluator, regexp.MustCompile(`(?i)evaluate|evaluation|benchmark|dataset|leaderboard|judge`)},
	{types.ServerKindIndexer, regexp.MustCompile(`(?i)ingest|index|crawl|scrape|etl|connector`)},
	{types.ServerKindRouter, regexp.MustCompile(`(?i)router|select tool|tool selection|orchestrate`)},
	{types.ServerKindRetriever, regexp.MustCompile(`(?i)search|retrieval|retriever|semantic search|rag|vector search`)},
}

// BuildText converts a server record into the canonical text blob scored by
// the rule table and embedded by the embedding client. Field order is fixed
// so checksums stay stable across ingest runs.
func BuildText(record types.ServerRecord) string {
	var parts []string
	appendIf(&parts, record.Name, record.Title, record.Description, record.RepositoryURL, record.WebsiteURL)
	for _, pkg := range record.Packages {
		appendIf(&parts, pkg.Identifier, pkg.RegistryType)
		if pkg.Transport != nil {
			appendIf(&parts, pkg.Transport.Type)
		}
	}
	for _, remote := range record.Remotes {
		appendIf(&parts, remote.Type, remote.URL)
	}
	return strings.Join(parts, "\n")
}

// TextHash returns the SHA-256 hex digest of a text blob.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HasRemoteEndpoint reports whether the record exposes any remotely callable
// endpoint: a remote with a URL, or a streamable-http package transport with
// a URL.
func HasRemoteEndpoint(record types.ServerRecord) bool {
	for _, remote := range record.Remotes {
		if strings.TrimSpace(remote.URL) != "" {
			return true
		}
	}
	for _, pkg := range record.Packages {
		if pkg.Transport != nil && pkg.Transport.Type == types.TransportStreamableHTTP && strings.TrimSpace(pkg.Transport.URL) != "" {
			return true
		}
	}
	return false
}

// Enrich scores a server record against the rule table and infers its
// capability booleans and kind. Reachability fields are left unset; those
// belong to the probe scheduler.
func Enrich(record types.ServerRecord) types.Enrichment {
	text := BuildText(record)

	var (
		score      int
		categories []string
		reasons    []string
		keywords   []string
		coreFired  bool
	)
	seenCategory := make(map[string]bool)
	seenKeyword := make(map[string]bool)

	for _, r := range rules {
		if r.requireCore && !coreFired {
			continue
		}
		if !r.pattern.MatchString(text) {
			continue
		}
		if !r.requireCore {
			coreFired = true
		}
		score += r.weight
		if !seenCategory[r.category] {
			seenCategory[r.category] = true
			categories = append(categories, r.category)
			if len(reasons) < maxReasons {
				reasons = append(reasons, r.category)
			}
		}
		if r.keyword != "" && !seenKeyword[r.keyword] && len(keywords) < maxKeywords {
			seenKeyword[r.keyword] = true
			keywords = append(keywords, r.keyword)
		}
	}
	if score > maxScore {
		score = maxScore
	}

	hasRemote := HasRemoteEndpoint(record)

	return types.Enrichment{
		Categories:        categories,
		RagScore:          score,
		Reasons:           reasons,
		Keywords:          keywords,
		HasRemote:         hasRemote,
		LocalOnly:         !hasRemote,
		Citations:         citationsPattern.MatchString(text),
		ServerKind:        ClassifyKind(record),
		EmbeddingTextHash: TextHash(text),
	}
}

// ClassifyKind infers the role a server plays in a RAG pipeline from its
// name, title and description. The first matching rule wins.
func ClassifyKind(record types.ServerRecord) types.ServerKind {
	var parts []string
	appendIf(&parts, record.Name, record.Title, record.Description)
	text := strings.Join(parts, "\n")
	for _, kr := range kindRules {
		if kr.pattern.MatchString(text) {
			return kr.kind
		}
	}
	return types.ServerKindOther
}

func appendIf(parts *[]string, values ...string) {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			*parts = append(*parts, v)
		}
	}
}
