package ml

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// englishStopWords is a compact English stop-word list applied before vocabulary selection
var englishStopWords = toSet(strings.Fields(`
	a about above after again against all almost also am among an and any are around as at
	be because been before being below between both but by can cannot could did do does doing
	done down during each either else enough etc even ever every few for from further get give
	go had has have having he her here hers herself him himself his how however i ie if in into
	is it its itself just least less made many may me might mine more most mostly much must my
	myself neither never no nor not now of off often on once one only onto or other others our
	ours ourselves out over own per perhaps please rather re same see seem seemed seeming seems
	several she should since so some still such than that the their theirs them themselves then
	there these they this those though through thus to too toward towards under until up upon
	us very via was we well were what whatever when where whether which while who whom whose why
	will with within without would yet you your yours yourself yourselves
`))

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Tokenize lowercases text and returns word tokens of two or more characters, minus stop words
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, stop := englishStopWords[tok]; !stop {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// TfidfVectorizer turns free text into l2-normalized tf-idf vectors over a bounded vocabulary.
// The vocabulary keeps the MaxFeatures terms with the highest corpus frequency, ties broken
// alphabetically. idf uses the smoothed form ln((1+n)/(1+df)) + 1.
type TfidfVectorizer struct {
	MaxFeatures int       `json:"max_features"`
	Terms       []string  `json:"terms"`
	IDF         []float64 `json:"idf"`

	index map[string]int
}

func NewTfidfVectorizer(maxFeatures int) *TfidfVectorizer {
	return &TfidfVectorizer{MaxFeatures: maxFeatures}
}

func (v *TfidfVectorizer) Fit(docs []string) {
	termFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(doc) {
			termFreq[tok]++
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				docFreq[tok]++
			}
		}
	}

	terms := make([]string, 0, len(termFreq))
	for t := range termFreq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if termFreq[terms[i]] != termFreq[terms[j]] {
			return termFreq[terms[i]] > termFreq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.Terms = terms
	v.IDF = make([]float64, len(terms))
	for i, t := range terms {
		v.IDF[i] = math.Log((1+n)/(1+float64(docFreq[t]))) + 1
	}
	v.buildIndex()
}

func (v *TfidfVectorizer) buildIndex() {
	v.index = make(map[string]int, len(v.Terms))
	for i, t := range v.Terms {
		v.index[t] = i
	}
}

func (v *TfidfVectorizer) Width() int {
	return len(v.Terms)
}

// Transform appends the tf-idf vector of doc to dst. Out-of-vocabulary tokens are ignored.
func (v *TfidfVectorizer) Transform(doc string, dst []float64) []float64 {
	vec := make([]float64, len(v.Terms))
	for _, tok := range Tokenize(doc) {
		if i, ok := v.index[tok]; ok {
			vec[i]++
		}
	}

	var norm float64
	for i := range vec {
		vec[i] *= v.IDF[i]
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return append(dst, vec...)
}
