package catalog

import (
	"sort"
	"strings"

	"ordena/internal"
	"ordena/internal/util"
)

// Entry is one catalog product with its precomputed normalized name and
// token set. Entries are built once per catalog and never mutated, so
// resolution is reproducible regardless of storage order.
type Entry struct {
	Product    internal.CatalogProduct
	Normalized string
	Tokens     []string
}

type Index struct {
	Entries []Entry
	ByName  map[string][]int
	ByID    map[int]internal.CatalogProduct
}

func BuildIndex(products []internal.CatalogProduct) *Index {
	idx := &Index{
		Entries: make([]Entry, 0, len(products)),
		ByName:  map[string][]int{},
		ByID:    map[int]internal.CatalogProduct{},
	}

	sorted := make([]internal.CatalogProduct, len(products))
	copy(sorted, products)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, p := range sorted {
		norm := util.NormalizeName(p.Name)
		pos := len(idx.Entries)
		idx.Entries = append(idx.Entries, Entry{Product: p, Normalized: norm, Tokens: util.Tokenize(p.Name)})
		idx.ByName[norm] = append(idx.ByName[norm], pos)
		idx.ByID[p.ID] = p
	}

	return idx
}

// Resolution is the outcome of resolving raw product text against the
// catalog. Product is nil when Kind is MatchNone.
type Resolution struct {
	Product *internal.CatalogProduct
	Kind    internal.MatchKind
	Score   float64
}

// Resolve maps free-text product wording to a catalog entry. Tiers are
// tried in order and the first tier with any hit wins: exact equality,
// substring containment either direction, then token overlap where at
// least minOverlap of the query tokens each substring-match some catalog
// token. Ties inside a tier break on score, then shortest normalized
// name, then lowest id.
func (ix *Index) Resolve(text string, minOverlap float64) Resolution {
	norm := util.NormalizeName(text)
	if norm == "" {
		return Resolution{Kind: internal.MatchNone}
	}

	if positions, ok := ix.ByName[norm]; ok && len(positions) > 0 {
		best := ix.pickBest(positions, nil)
		p := ix.Entries[best].Product
		return Resolution{Product: &p, Kind: internal.MatchExact, Score: 1}
	}

	if res, ok := ix.resolveSubstring(norm); ok {
		return res
	}

	return ix.resolveTokens(text, minOverlap)
}

func (ix *Index) resolveSubstring(norm string) (Resolution, bool) {
	var hits []int
	scores := map[int]float64{}
	for i, e := range ix.Entries {
		if e.Normalized == "" {
			continue
		}
		if strings.Contains(e.Normalized, norm) || strings.Contains(norm, e.Normalized) {
			shorter, longer := len(norm), len(e.Normalized)
			if shorter > longer {
				shorter, longer = longer, shorter
			}
			hits = append(hits, i)
			scores[i] = float64(shorter) / float64(longer)
		}
	}
	if len(hits) == 0 {
		return Resolution{}, false
	}

	best := ix.pickBest(hits, scores)
	p := ix.Entries[best].Product
	return Resolution{Product: &p, Kind: internal.MatchPartial, Score: scores[best]}, true
}

func (ix *Index) resolveTokens(text string, minOverlap float64) Resolution {
	qTokens := util.Tokenize(text)
	if len(qTokens) == 0 {
		return Resolution{Kind: internal.MatchNone}
	}

	var hits []int
	scores := map[int]float64{}
	for i, e := range ix.Entries {
		if len(e.Tokens) == 0 {
			continue
		}
		overlap := 0
		for _, qt := range qTokens {
			for _, et := range e.Tokens {
				if strings.Contains(et, qt) || strings.Contains(qt, et) {
					overlap++
					break
				}
			}
		}
		score := float64(overlap) / float64(len(qTokens))
		if score >= minOverlap {
			hits = append(hits, i)
			scores[i] = score
		}
	}
	if len(hits) == 0 {
		return Resolution{Kind: internal.MatchNone}
	}

	best := ix.pickBest(hits, scores)
	p := ix.Entries[best].Product
	return Resolution{Product: &p, Kind: internal.MatchPartial, Score: scores[best]}
}

// pickBest orders candidate positions by score desc, then shortest
// normalized name, then lowest product id. A nil score map treats all
// candidates as equal.
func (ix *Index) pickBest(positions []int, scores map[int]float64) int {
	best := positions[0]
	for _, pos := range positions[1:] {
		if scores != nil && scores[pos] != scores[best] {
			if scores[pos] > scores[best] {
				best = pos
			}
			continue
		}
		cand, cur := ix.Entries[pos], ix.Entries[best]
		if len(cand.Normalized) != len(cur.Normalized) {
			if len(cand.Normalized) < len(cur.Normalized) {
				best = pos
			}
			continue
		}
		if cand.Product.ID < cur.Product.ID {
			best = pos
		}
	}
	return best
}
