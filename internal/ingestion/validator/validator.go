// Package validator checks document requests before they reach the indexer
// and reports per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/ingestion"
)

// MaxContentLength bounds a single document in bytes.
const MaxContentLength = 1 << 20

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateDocumentRequest rejects missing, blank and oversized content.
func ValidateDocumentRequest(req *ingestion.DocumentRequest) error {
	errs := make(map[string]string)
	switch {
	case strings.TrimSpace(req.Content) == "":
		errs["content"] = "content is required"
	case len(req.Content) > MaxContentLength:
		errs["content"] = fmt.Sprintf("content must be at most %d bytes", MaxContentLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
