package ml

import (
	"sort"
)

// OneHotEncoder maps each categorical column to one indicator per category seen during Fit.
// Categories unseen at Fit time encode as all zeros.
type OneHotEncoder struct {
	Categories [][]string `json:"categories"`

	index []map[string]int
}

// Fit collects the sorted distinct categories of every column. columns[j][i] is row i of column j.
func (e *OneHotEncoder) Fit(columns [][]string) {
	e.Categories = make([][]string, len(columns))
	for j, col := range columns {
		seen := make(map[string]struct{})
		for _, v := range col {
			seen[v] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		e.Categories[j] = cats
	}
	e.buildIndex()
}

func (e *OneHotEncoder) buildIndex() {
	e.index = make([]map[string]int, len(e.Categories))
	for j, cats := range e.Categories {
		m := make(map[string]int, len(cats))
		for i, c := range cats {
			m[c] = i
		}
		e.index[j] = m
	}
}

// Width is the number of indicator columns produced
func (e *OneHotEncoder) Width() int {
	w := 0
	for _, cats := range e.Categories {
		w += len(cats)
	}
	return w
}

// Transform appends the indicators for one row of categorical values to dst.
// The encoder must have been fitted or decoded through Pipeline first.
func (e *OneHotEncoder) Transform(values []string, dst []float64) []float64 {
	for j, cats := range e.Categories {
		block := make([]float64, len(cats))
		if j < len(values) && j < len(e.index) {
			if i, ok := e.index[j][values[j]]; ok {
				block[i] = 1
			}
		}
		dst = append(dst, block...)
	}
	return dst
}
