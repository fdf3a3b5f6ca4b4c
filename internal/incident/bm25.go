package incident

import (
	"math"
	"strings"
	"unicode"
)

// BM25 ranking over the incident corpus. The corpus is tiny (seed-file
// scale) and rebuilt wholesale on reload, so the index is a plain
// in-memory posting map; pulling in a search engine dependency for a
// few hundred documents would be all ceremony.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type bm25Index struct {
	docLens  []int
	avgLen   float64
	postings map[string][]posting // term -> docs containing it
	numDocs  int
}

type posting struct {
	doc int
	tf  int
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func newBM25Index(docs []string) *bm25Index {
	idx := &bm25Index{
		docLens:  make([]int, len(docs)),
		postings: make(map[string][]posting),
		numDocs:  len(docs),
	}
	total := 0
	for i, doc := range docs {
		terms := tokenize(doc)
		idx.docLens[i] = len(terms)
		total += len(terms)
		counts := make(map[string]int)
		for _, t := range terms {
			counts[t]++
		}
		for t, c := range counts {
			idx.postings[t] = append(idx.postings[t], posting{doc: i, tf: c})
		}
	}
	if len(docs) > 0 {
		idx.avgLen = float64(total) / float64(len(docs))
	}
	return idx
}

// score returns one BM25 score per document for the query.
func (idx *bm25Index) score(query string) []float64 {
	scores := make([]float64, idx.numDocs)
	if idx.numDocs == 0 {
		return scores
	}
	for _, term := range tokenize(query) {
		plist := idx.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (float64(idx.numDocs)-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.tf)
			norm := 1 - bm25B + bm25B*float64(idx.docLens[p.doc])/idx.avgLen
			scores[p.doc] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}
	return scores
}
