// Package vocab holds the static keyword tables used to normalize, score and
// enrich price-list text. Tables are immutable after load.
package vocab

import (
	_ "embed"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultYAML []byte

// ValueRule maps a keyword to a derived specification value.
type ValueRule struct {
	Keyword string `yaml:"keyword"`
	Value   string `yaml:"value"`
}

// OptionRule describes how to detect one kind of spring option.
type OptionRule struct {
	Type        string            `yaml:"type"`
	Description string            `yaml:"description"`
	Keywords    []string          `yaml:"keywords"`
	Confidence  float64           `yaml:"confidence"`
	Details     map[string]string `yaml:"details"`
}

// Synonyms holds the rewrite tables applied by the normalizers.
type Synonyms struct {
	Model   map[string]string `yaml:"model"`
	Package map[string]string `yaml:"package"`
	Engine  map[string]string `yaml:"engine"`
}

// Vocabulary is the full set of keyword tables.
type Vocabulary struct {
	Families        map[string][]string `yaml:"families"`
	EngineKeywords  []string            `yaml:"engine_keywords"`
	PackageKeywords []string            `yaml:"package_keywords"`
	Categories      map[string][]string `yaml:"categories"`
	Synonyms        Synonyms            `yaml:"synonyms"`
	Abbreviations   map[string]string   `yaml:"abbreviations"`
	FuelSystems     []ValueRule         `yaml:"fuel_systems"`
	ForcedInduction []ValueRule         `yaml:"forced_induction"`
	RequiredGroups  []string            `yaml:"required_groups"`
	OptionRules     []OptionRule        `yaml:"option_rules"`

	familyNames []string
}

var loadDefault = sync.OnceValues(func() (*Vocabulary, error) {
	return Parse(defaultYAML)
})

// Default returns the embedded vocabulary. It panics if the embedded file is
// invalid, which is caught by the package tests.
func Default() *Vocabulary {
	v, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return v
}

// Load reads a vocabulary override file.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vocab: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a vocabulary document.
func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, eris.Wrap(err, "vocab: parse")
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	v.familyNames = make([]string, 0, len(v.Families))
	for name := range v.Families {
		v.familyNames = append(v.familyNames, name)
	}
	sort.Strings(v.familyNames)
	return &v, nil
}

// Validate rejects synonym tables that would make normalization
// non-idempotent: no rewrite target may itself contain a rewrite key.
func (v *Vocabulary) Validate() error {
	if len(v.Families) == 0 {
		return eris.New("vocab: no model families defined")
	}
	for name, table := range map[string]map[string]string{
		"model":   v.ModelSynonyms(),
		"package": v.Synonyms.Package,
		"engine":  v.Synonyms.Engine,
	} {
		for _, target := range table {
			for key := range table {
				if ContainsPhrase(target, key) {
					return eris.Errorf("vocab: %s synonym target %q contains key %q", name, target, key)
				}
			}
		}
	}
	for _, r := range v.OptionRules {
		if r.Confidence <= 0 || r.Confidence > 1 {
			return eris.Errorf("vocab: option rule %q confidence out of range", r.Type)
		}
	}
	return nil
}

// ModelSynonyms merges the model and package tables; model names often carry
// their package designation.
func (v *Vocabulary) ModelSynonyms() map[string]string {
	out := make(map[string]string, len(v.Synonyms.Model)+len(v.Synonyms.Package))
	for k, val := range v.Synonyms.Package {
		out[k] = val
	}
	for k, val := range v.Synonyms.Model {
		out[k] = val
	}
	return out
}

// Family returns the first model family (in name order) whose keywords appear
// in text, or "" when none match.
func (v *Vocabulary) Family(text string) string {
	for _, name := range v.familyNames {
		for _, kw := range v.Families[name] {
			if ContainsPhrase(text, kw) {
				return name
			}
		}
	}
	return ""
}

// SameFamily reports whether both texts resolve to the same non-empty family.
func (v *Vocabulary) SameFamily(a, b string) bool {
	fa := v.Family(a)
	return fa != "" && fa == v.Family(b)
}

// SharedEngineKeywords counts engine keywords present in both texts.
func (v *Vocabulary) SharedEngineKeywords(a, b string) int {
	return sharedKeywords(v.EngineKeywords, a, b)
}

// SharedPackageKeywords counts package keywords present in both texts.
func (v *Vocabulary) SharedPackageKeywords(a, b string) int {
	return sharedKeywords(v.PackageKeywords, a, b)
}

// CategoryOf returns the first category (in name order) with a keyword in text.
func (v *Vocabulary) CategoryOf(text string) string {
	names := make([]string, 0, len(v.Categories))
	for name := range v.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, kw := range v.Categories[name] {
			if ContainsPhrase(text, kw) {
				return name
			}
		}
	}
	return ""
}

// FirstValue returns the value of the first rule whose keyword appears in text.
func FirstValue(rules []ValueRule, text string) (string, bool) {
	for _, r := range rules {
		if ContainsPhrase(text, r.Keyword) {
			return r.Value, true
		}
	}
	return "", false
}

func sharedKeywords(keywords []string, a, b string) int {
	n := 0
	for _, kw := range keywords {
		if ContainsPhrase(a, kw) && ContainsPhrase(b, kw) {
			n++
		}
	}
	return n
}

// ContainsPhrase reports whether phrase occurs in text as whole words,
// case-insensitively. Words are separated by spaces.
func ContainsPhrase(text, phrase string) bool {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return false
	}
	padded := " " + strings.Join(strings.Fields(strings.ToUpper(text)), " ") + " "
	return strings.Contains(padded, " "+strings.ToUpper(phrase)+" ")
}

// ReplacePhrase replaces whole-word occurrences of phrase in text.
func ReplacePhrase(text, phrase, replacement string) string {
	padded := " " + text + " "
	padded = strings.ReplaceAll(padded, " "+phrase+" ", " "+replacement+" ")
	// A second pass catches adjacent repeats that shared a separator.
	padded = strings.ReplaceAll(padded, " "+phrase+" ", " "+replacement+" ")
	return strings.TrimSpace(padded)
}
