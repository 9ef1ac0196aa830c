// Package query ranks the latest catalog. Keyword matching runs over the
// enrichment text blob and blends with semantic similarity when stored
// embeddings exist; the "top" ordering uses quality signals alone.
package query

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ragmap-dev/ragmap/internal/ragmap/database"
	"github.com/ragmap-dev/ragmap/internal/ragmap/enrich"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

const (
	// MaxSearchLimit caps search and top result sizes.
	MaxSearchLimit = 50
	// DefaultSearchLimit applies when a caller passes a non-positive limit.
	DefaultSearchLimit = 20
	// DefaultQuery substitutes for an empty search query.
	DefaultQuery = "rag"

	maxQueryTokens     = 16
	projectionPageSize = 200
)

// ClampSearchLimit normalizes a caller-supplied result budget.
func ClampSearchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

// ResultKind records which ranker produced a result.
type ResultKind string

const (
	ResultKindKeyword  ResultKind = "keyword"
	ResultKindSemantic ResultKind = "semantic"
)

// Item is one latest catalog entry prepared for ranking. SearchText is the
// same text blob the enrichment scored, rebuilt rather than persisted.
type Item struct {
	Entry      types.CatalogEntry
	SearchText string
	UpdatedAt  time.Time
}

// Result pairs an item with its ranker score.
type Result struct {
	Item  Item
	Score float64
	Kind  ResultKind
}

// SearchRequest describes one search call. QueryVector enables the semantic
// ranker; without it only keyword matching runs.
type SearchRequest struct {
	Query       string
	QueryVector []float32
	Limit       int
	Filters     Filters
}

// Engine serves search and top queries over the latest catalog.
type Engine struct {
	store database.CatalogStore
}

// NewEngine builds a query engine over the given store.
func NewEngine(store database.CatalogStore) *Engine {
	return &Engine{store: store}
}

// Search filters the latest catalog and ranks it. With a query vector the
// semantic results come first and keyword-only hits fill the remainder;
// otherwise the keyword ranking is returned directly.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	items, err := e.collectLatest(ctx)
	if err != nil {
		return nil, err
	}
	filtered := applyFilters(items, req.Filters)

	queryText := strings.TrimSpace(req.Query)
	if queryText == "" {
		queryText = DefaultQuery
	}
	keyword := rankKeyword(filtered, queryText)

	limit := ClampSearchLimit(req.Limit)
	if len(req.QueryVector) == 0 {
		if len(keyword) > limit {
			keyword = keyword[:limit]
		}
		return keyword, nil
	}

	semantic := rankSemantic(filtered, req.QueryVector)
	merged := make([]Result, 0, limit)
	emitted := make(map[string]bool, limit)
	for _, result := range semantic {
		if len(merged) >= limit {
			break
		}
		merged = append(merged, result)
		emitted[result.Item.Entry.Server.Name] = true
	}
	for _, result := range keyword {
		if len(merged) >= limit {
			break
		}
		if emitted[result.Item.Entry.Server.Name] {
			continue
		}
		merged = append(merged, result)
	}
	return merged, nil
}

// Top filters the latest catalog and orders it purely by quality signals.
func (e *Engine) Top(ctx context.Context, limit int, filters Filters) ([]Result, error) {
	items, err := e.collectLatest(ctx)
	if err != nil {
		return nil, err
	}
	filtered := applyFilters(items, filters)
	sort.SliceStable(filtered, func(i, j int) bool {
		return qualityLess(&filtered[i], &filtered[j])
	})

	limit = ClampSearchLimit(limit)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	results := make([]Result, 0, len(filtered))
	for _, item := range filtered {
		results = append(results, Result{Item: item})
	}
	return results, nil
}

// collectLatest pages the visible latest snapshots into ranking items.
func (e *Engine) collectLatest(ctx context.Context) ([]Item, error) {
	var items []Item
	cursor := ""
	for {
		entries, next, err := e.store.ListLatest(ctx, database.ListLatestFilter{Cursor: cursor, Limit: projectionPageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to build search projection: %w", err)
		}
		for _, entry := range entries {
			items = append(items, Item{
				Entry:      entry,
				SearchText: enrich.BuildText(entry.Server),
				UpdatedAt:  types.ParseOfficial(entry.Official).UpdatedAtTime(),
			})
		}
		if next == "" {
			return items, nil
		}
		cursor = next
	}
}

func applyFilters(items []Item, filters Filters) []Item {
	filtered := make([]Item, 0, len(items))
	for i := range items {
		if filters.Matches(&items[i]) {
			filtered = append(filtered, items[i])
		}
	}
	return filtered
}

var queryTokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// tokenizeQuery lowercases the query, splits it into alphanumeric tokens,
// keeps the first 16 and dedupes them in order.
func tokenizeQuery(query string) []string {
	raw := queryTokenSplit.Split(strings.ToLower(query), -1)
	tokens := make([]string, 0, len(raw))
	for _, token := range raw {
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) > maxQueryTokens {
		tokens = tokens[:maxQueryTokens]
	}

	seen := make(map[string]bool, len(tokens))
	deduped := tokens[:0]
	for _, token := range tokens {
		if !seen[token] {
			seen[token] = true
			deduped = append(deduped, token)
		}
	}
	return deduped
}

// rankKeyword scores items by how many distinct query tokens match the
// search text at a word boundary. Zero-score items are dropped.
func rankKeyword(items []Item, query string) []Result {
	tokens := tokenizeQuery(query)
	if len(tokens) == 0 {
		return nil
	}

	patterns := make([]*regexp.Regexp, len(tokens))
	for i, token := range tokens {
		patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(token))
	}

	var results []Result
	for i := range items {
		matches := 0
		for _, pattern := range patterns {
			if pattern.MatchString(items[i].SearchText) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		results = append(results, Result{Item: items[i], Score: float64(matches), Kind: ResultKindKeyword})
	}
	sortResults(results)
	return results
}

// rankSemantic scores items by cosine similarity against the query vector.
// Items without an embedding are skipped; non-positive scores are dropped.
func rankSemantic(items []Item, queryVector []float32) []Result {
	var results []Result
	for i := range items {
		embedding := items[i].Entry.RagMap.Embedding
		if embedding == nil || len(embedding.Vector) == 0 {
			continue
		}
		score := cosineSimilarity(queryVector, embedding.Vector)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Item: items[i], Score: score, Kind: ResultKindSemantic})
	}
	sortResults(results)
	return results
}

// sortResults orders by ranker score, breaking ties with quality signals.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return qualityLess(&results[i].Item, &results[j].Item)
	})
}

// qualityLess is the shared tiebreak order: reachable entries first, then
// rag score, then update recency, then name.
func qualityLess(a, b *Item) bool {
	aReachable := a.Entry.RagMap.Reachable != nil && *a.Entry.RagMap.Reachable
	bReachable := b.Entry.RagMap.Reachable != nil && *b.Entry.RagMap.Reachable
	if aReachable != bReachable {
		return aReachable
	}
	if a.Entry.RagMap.RagScore != b.Entry.RagMap.RagScore {
		return a.Entry.RagMap.RagScore > b.Entry.RagMap.RagScore
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.Entry.Server.Name < b.Entry.Server.Name
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
