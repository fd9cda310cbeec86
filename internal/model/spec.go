package model

import (
	"encoding/json"
	"maps"
	"sort"
	"strconv"
	"strings"
)

// SpecMap holds nested specification groups: group -> key -> value.
type SpecMap map[string]map[string]any

// Clone returns a deep copy of the group maps. Values are copied by assignment.
func (s SpecMap) Clone() SpecMap {
	out := make(SpecMap, len(s))
	for group, fields := range s {
		out[group] = maps.Clone(fields)
		if out[group] == nil {
			out[group] = map[string]any{}
		}
	}
	return out
}

// Get returns the value for group/key.
func (s SpecMap) Get(group, key string) (any, bool) {
	fields, ok := s[group]
	if !ok {
		return nil, false
	}
	v, ok := fields[key]
	return v, ok
}

// Set assigns group/key, creating the group as needed.
func (s SpecMap) Set(group, key string, value any) {
	fields, ok := s[group]
	if !ok {
		fields = map[string]any{}
		s[group] = fields
	}
	fields[key] = value
}

// FieldCount returns the total number of keys across all groups.
func (s SpecMap) FieldCount() int {
	n := 0
	for _, fields := range s {
		n += len(fields)
	}
	return n
}

// Groups returns the group names in sorted order.
func (s SpecMap) Groups() []string {
	out := make([]string, 0, len(s))
	for g := range s {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// BrandKey folds a brand name for comparison: upper-cased with spaces,
// hyphens and underscores removed.
func BrandKey(brand string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '_' {
			return -1
		}
		return r
	}, strings.ToUpper(brand))
}

// BaseModelSource records where a base model came from.
type BaseModelSource string

const (
	SourceCatalog    BaseModelSource = "catalog"
	SourceEnrichment BaseModelSource = "enrichment"
)

// BaseModelSpecification is a canonical catalog entry for a product family.
type BaseModelSpecification struct {
	ID                string          `json:"base_model_id"`
	ModelName         string          `json:"model_name"`
	Brand             string          `json:"brand"`
	ModelYear         int             `json:"model_year"`
	Category          string          `json:"category"`
	Specifications    SpecMap         `json:"specifications"`
	ExtractionQuality float64         `json:"extraction_quality"`
	Source            BaseModelSource `json:"source,omitempty"`
}

// Merge copies every field of other into s, overwriting existing keys.
func (s SpecMap) Merge(other SpecMap) {
	for group, fields := range other {
		for k, v := range fields {
			s.Set(group, k, v)
		}
	}
}

// Float returns group/key as a float64 when it holds a number or a numeric string.
func (s SpecMap) Float(group, key string) (float64, bool) {
	v, ok := s.Get(group, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
