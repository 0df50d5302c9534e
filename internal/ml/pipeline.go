// Package ml holds the candidate classifier: a feature pipeline (standard scaling, one-hot
// encoding, tf-idf) in front of a random forest, serializable as JSON.
package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/alimgiray/gscout/internal/models"
)

var ErrEmptyTrainingSet = errors.New("no training rows")

// FitParams configure a pipeline fit
type FitParams struct {
	Forest      ForestParams
	MaxFeatures int
}

// Pipeline is a fitted feature pipeline plus classifier. Classes holds the sorted label values
// seen in training; forest outputs are indexed by position in Classes.
type Pipeline struct {
	Schema  models.FeatureSchema `json:"schema"`
	Classes []int                `json:"classes"`
	Scaler  *StandardScaler      `json:"scaler"`
	OneHot  *OneHotEncoder       `json:"one_hot"`
	Tfidf   *TfidfVectorizer     `json:"tfidf"`
	Forest  *RandomForest        `json:"forest"`
}

// Fit trains a pipeline on rows with integer labels
func Fit(schema models.FeatureSchema, rows []Row, labels []int, params FitParams) (*Pipeline, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("rows and labels differ in length: %d != %d", len(rows), len(labels))
	}

	p := &Pipeline{
		Schema: schema,
		Scaler: &StandardScaler{},
		OneHot: &OneHotEncoder{},
		Tfidf:  NewTfidfVectorizer(params.MaxFeatures),
		Forest: NewRandomForest(params.Forest),
	}

	numeric := make([][]float64, len(rows))
	columns := make([][]string, len(schema.Categorical))
	docs := make([]string, len(rows))
	for i, row := range rows {
		numeric[i] = row.Numeric
		for j := range columns {
			v := UnknownCategory
			if j < len(row.Categorical) {
				v = row.Categorical[j]
			}
			columns[j] = append(columns[j], v)
		}
		docs[i] = row.Text
	}
	p.Scaler.Fit(numeric)
	p.OneHot.Fit(columns)
	p.Tfidf.Fit(docs)

	classIndex := make(map[int]int)
	for _, l := range labels {
		classIndex[l] = 0
	}
	for l := range classIndex {
		p.Classes = append(p.Classes, l)
	}
	sort.Ints(p.Classes)
	for i, l := range p.Classes {
		classIndex[l] = i
	}

	X := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, row := range rows {
		X[i] = p.transform(row)
		y[i] = classIndex[labels[i]]
	}
	p.Forest.Fit(X, y, len(p.Classes))
	return p, nil
}

func (p *Pipeline) transform(row Row) []float64 {
	width := len(row.Numeric) + p.OneHot.Width() + p.Tfidf.Width()
	x := make([]float64, 0, width)
	x = p.Scaler.Transform(row.Numeric, x)
	x = p.OneHot.Transform(row.Categorical, x)
	x = p.Tfidf.Transform(row.Text, x)
	return x
}

// PredictProba returns, per row, the probability of the positive (accepted) label.
// A model trained on a single class answers 1 or 0 according to that class.
func (p *Pipeline) PredictProba(rows []Row) []float64 {
	out := make([]float64, len(rows))
	positive := -1
	for i, c := range p.Classes {
		if c == int(models.AnnotationAccepted) {
			positive = i
		}
	}
	if positive < 0 {
		return out
	}
	if len(p.Classes) == 1 {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, row := range rows {
		out[i] = p.Forest.PredictProba(p.transform(row))[positive]
	}
	return out
}

// Marshal serializes the fitted pipeline
func (p *Pipeline) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// Decode restores a pipeline serialized with Marshal and rebuilds its lookup indexes
func Decode(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Scaler == nil || p.OneHot == nil || p.Tfidf == nil || p.Forest == nil {
		return nil, errors.New("incomplete pipeline state")
	}
	if len(p.Classes) == 0 || p.Forest.NClasses != len(p.Classes) {
		return nil, fmt.Errorf("class ordering mismatch: %d classes, forest has %d", len(p.Classes), p.Forest.NClasses)
	}
	if len(p.Tfidf.Terms) != len(p.Tfidf.IDF) {
		return nil, errors.New("tf-idf vocabulary and weights differ in length")
	}
	p.OneHot.buildIndex()
	p.Tfidf.buildIndex()
	return &p, nil
}
