package ml

import (
	"math"
)

// StandardScaler standardizes each numeric column to zero mean and unit variance.
// z = (x - mean) / scale, where a zero-variance column keeps scale 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit learns per-column mean and population standard deviation
func (s *StandardScaler) Fit(rows [][]float64) {
	if len(rows) == 0 {
		s.Mean, s.Scale = nil, nil
		return
	}
	width := len(rows[0])
	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)

	n := float64(len(rows))
	for _, row := range rows {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range rows {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Scale[j] += d * d
		}
	}
	for j := range s.Scale {
		std := math.Sqrt(s.Scale[j] / n)
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
}

// Transform standardizes a single row into dst, which must have len(row) capacity
func (s *StandardScaler) Transform(row []float64, dst []float64) []float64 {
	for j, v := range row {
		mean, scale := 0.0, 1.0
		if j < len(s.Mean) {
			mean, scale = s.Mean[j], s.Scale[j]
		}
		dst = append(dst, (v-mean)/scale)
	}
	return dst
}
