package parser

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		query     string
		wantTerms []string
		wantBlank bool
	}{
		{"cat sat", []string{"cat", "sat"}, false},
		{"Cat cat SAT cat", []string{"cat", "sat"}, false},
		{"the cat AND NOT the dog", []string{"cat", "dog"}, false},
		{"the of", []string{}, false},
		{"   ", []string{}, true},
		{"", []string{}, true},
	}
	for _, tt := range tests {
		plan := Parse(tt.query)
		if !reflect.DeepEqual(plan.Terms, tt.wantTerms) {
			t.Errorf("Parse(%q).Terms = %v, want %v", tt.query, plan.Terms, tt.wantTerms)
		}
		if plan.Blank() != tt.wantBlank {
			t.Errorf("Parse(%q).Blank() = %v", tt.query, plan.Blank())
		}
		if plan.RawQuery != tt.query {
			t.Errorf("RawQuery = %q", plan.RawQuery)
		}
	}
}
