package model

import (
	"strings"
)

// PriceListEntry is one line of a per-market price list as produced by the
// extraction layer. Free-text fields are kept verbatim.
type PriceListEntry struct {
	LineIndex int     `json:"line_index"`
	ModelCode string  `json:"model_code"`
	Brand     string  `json:"brand"`
	ModelYear int     `json:"model_year"`
	Model     string  `json:"model,omitempty"`
	Package   string  `json:"package,omitempty"`
	Engine    string  `json:"engine,omitempty"`
	Track     string  `json:"track,omitempty"`
	Starter   string  `json:"starter,omitempty"`
	Color     string  `json:"color,omitempty"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency,omitempty"`
	Market    string  `json:"market,omitempty"`
}

const (
	minModelYear = 1950
	maxModelYear = 2100
)

// Validate checks the identity fields every downstream stage relies on.
func (e PriceListEntry) Validate() error {
	var problems []string
	if strings.TrimSpace(e.ModelCode) == "" {
		problems = append(problems, "model_code is required")
	}
	if strings.TrimSpace(e.Brand) == "" {
		problems = append(problems, "brand is required")
	}
	if e.Price <= 0 {
		problems = append(problems, "price must be positive")
	}
	if e.ModelYear < minModelYear || e.ModelYear > maxModelYear {
		problems = append(problems, "model_year out of range")
	}
	if len(problems) == 0 {
		return nil
	}
	return &ProcessingError{
		LineIndex:    e.LineIndex,
		ModelCode:    e.ModelCode,
		Kind:         ErrorKindValidation,
		Message:      strings.Join(problems, "; "),
		RecoveryHint: "fix the price-list line and resubmit",
	}
}

// ModelText returns the free-text model description, falling back to the
// model code with separators turned into spaces.
func (e PriceListEntry) ModelText() string {
	if m := strings.TrimSpace(e.Model); m != "" {
		return m
	}
	return strings.Join(strings.FieldsFunc(e.ModelCode, func(r rune) bool {
		return r == '_' || r == '-' || r == '/' || r == ' '
	}), " ")
}

// RawText concatenates every free-text field of the line.
func (e PriceListEntry) RawText() string {
	parts := []string{e.ModelCode, e.Model, e.Package, e.Engine, e.Track, e.Starter, e.Color}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
