// Package matcher ranks catalog templates against free text with TF-IDF
// vectors and cosine similarity.
package matcher

import (
	"math"

	"github.com/rahul/autopilot/internal/catalog"
)

// Vector is a sparse term-weight vector keyed by vocabulary position.
type Vector map[int]float64

// Norm is the Euclidean length of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Cosine returns dot(a,b)/(|a||b|), or 0 when either vector is all-zero.
func Cosine(a, b Vector) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for i, w := range a {
		dot += w * b[i]
	}
	return dot / (na * nb)
}

// Index is the cached vocabulary and per-template vectors of one catalog.
// It is never modified after BuildIndex returns.
type Index struct {
	tokenizer Tokenizer
	vocab     map[string]int
	idf       []float64
	templates []catalog.TaskTemplate
	vectors   []Vector
}

// BuildIndex builds one document per template from its name, keywords and
// description. IDF is smoothed: ln((1+n)/(1+df)) + 1.
func BuildIndex(templates []catalog.TaskTemplate, tok Tokenizer) *Index {
	idx := &Index{
		tokenizer: Tokenizer{NGramMax: tok.NGramMax},
		vocab:     make(map[string]int),
		templates: templates,
	}
	docs := make([][]string, len(templates))
	df := make(map[string]int)
	for i, t := range templates {
		docs[i] = idx.tokenizer.Terms(t.Document())
		seen := make(map[string]bool)
		for _, term := range docs[i] {
			if _, ok := idx.vocab[term]; !ok {
				idx.vocab[term] = len(idx.vocab)
			}
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	n := float64(len(templates))
	idx.idf = make([]float64, len(idx.vocab))
	for term, pos := range idx.vocab {
		idx.idf[pos] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	for _, terms := range docs {
		idx.vectors = append(idx.vectors, idx.weigh(terms))
	}
	// Queries may expand synonyms; documents never do.
	idx.tokenizer.ExpandSynonyms = tok.ExpandSynonyms
	return idx
}

// weigh counts terms found in the vocabulary, applies IDF and L2-normalises.
func (idx *Index) weigh(terms []string) Vector {
	v := make(Vector)
	for _, term := range terms {
		if pos, ok := idx.vocab[term]; ok {
			v[pos]++
		}
	}
	for pos := range v {
		v[pos] *= idx.idf[pos]
	}
	if norm := v.Norm(); norm > 0 {
		for pos := range v {
			v[pos] /= norm
		}
	}
	return v
}

// Vectorize maps text onto the cached vocabulary. Unknown terms are dropped.
func (idx *Index) Vectorize(text string) Vector {
	return idx.weigh(idx.tokenizer.Terms(text))
}

// Len is the number of indexed templates.
func (idx *Index) Len() int { return len(idx.templates) }

// VocabularySize is the number of distinct terms in the index.
func (idx *Index) VocabularySize() int { return len(idx.vocab) }

// Vector returns the cached vector of the i-th template in load order.
func (idx *Index) Vector(i int) Vector { return idx.vectors[i] }

// Scores returns the similarity of text against every template, in load order.
func (idx *Index) Scores(text string) []float64 {
	q := idx.Vectorize(text)
	out := make([]float64, len(idx.vectors))
	for i, d := range idx.vectors {
		out[i] = Cosine(q, d)
	}
	return out
}
