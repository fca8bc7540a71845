// Package weighting computes TF-IDF weights.
package weighting

import (
	"fmt"
	"math"
)

const (
	// Log10 is the smoothed scheme: idf = log10(N/df) + 1, tf = 1 + log10(tf).
	Log10 = "log10"
	// Natural is the unsmoothed scheme: idf = ln(N/df), tf = raw count.
	Natural = "natural"
)

// Scheme maps corpus statistics to weights.
type Scheme interface {
	Name() string
	// IDF returns the inverse document frequency of a term found in df of n
	// documents.
	IDF(n, df int64) float64
	// TF returns the weight of a term occurring tf times in one document.
	TF(tf int) float64
}

// ByName returns the scheme registered under name.
func ByName(name string) (Scheme, error) {
	switch name {
	case Log10, "":
		return log10Scheme{}, nil
	case Natural:
		return naturalScheme{}, nil
	default:
		return nil, fmt.Errorf("unknown weighting scheme %q", name)
	}
}

// Default returns the log10 scheme.
func Default() Scheme { return log10Scheme{} }

// TFIDF returns s.TF(tf) * s.IDF(n, df).
func TFIDF(s Scheme, tf int, n, df int64) float64 {
	return s.TF(tf) * s.IDF(n, df)
}

// Valid reports whether w may be stored as a vector entry.
func Valid(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w > 0
}

type log10Scheme struct{}

func (log10Scheme) Name() string { return Log10 }

func (log10Scheme) IDF(n, df int64) float64 {
	if df <= 0 {
		return math.NaN()
	}
	return math.Log10(float64(n)/float64(df)) + 1
}

func (log10Scheme) TF(tf int) float64 {
	if tf < 1 {
		return 0
	}
	return 1 + math.Log10(float64(tf))
}

type naturalScheme struct{}

func (naturalScheme) Name() string { return Natural }

func (naturalScheme) IDF(n, df int64) float64 {
	if df <= 0 {
		return math.NaN()
	}
	return math.Log(float64(n) / float64(df))
}

func (naturalScheme) TF(tf int) float64 {
	return float64(tf)
}
