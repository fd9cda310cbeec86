// Package normalize turns free-text model, package and engine strings into
// canonical comparable forms. All functions are total and idempotent.
package normalize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// glyphs decorate brochure text. They are removed before compatibility
// decomposition, which would otherwise expand ™ to "TM".
var glyphs = runes.Predicate(func(r rune) bool {
	switch r {
	case '™', '®', '©', '℠', '*', '†', '‡':
		return true
	}
	return false
})

var separators = strings.NewReplacer(
	"_", " ",
	"/", " ",
	",", " ",
	";", " ",
	"(", " ",
	")", " ",
	"[", " ",
	"]", " ",
	"\"", " ",
	"'", " ",
)

// engineRe captures displacement, variant and turbo designation, e.g.
// "850 E-TEC", "600R E-TEC", "900 ACE TURBO R", "850CC ETEC".
var engineRe = regexp.MustCompile(`^(\d{3,4})(R)?\s*(?:CC)?\s*(E-TEC|ACE|EFI|ROTAX)?\s*(TURBO(?:\s+R)?)?$`)

// Normalizer applies a vocabulary's synonym tables.
type Normalizer struct {
	model  []rewrite
	pkg    []rewrite
	engine []rewrite
}

type rewrite struct {
	from, to string
}

// New builds a Normalizer over v.
func New(v *vocab.Vocabulary) *Normalizer {
	return &Normalizer{
		model:  sortedRewrites(v.ModelSynonyms()),
		pkg:    sortedRewrites(v.Synonyms.Package),
		engine: sortedRewrites(v.Synonyms.Engine),
	}
}

// sortedRewrites orders keys longest first so multi-word keys win over
// their single-word parts.
func sortedRewrites(table map[string]string) []rewrite {
	out := make([]rewrite, 0, len(table))
	for k, v := range table {
		out = append(out, rewrite{from: strings.ToUpper(k), to: strings.ToUpper(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].from) != len(out[j].from) {
			return len(out[i].from) > len(out[j].from)
		}
		return out[i].from < out[j].from
	})
	return out
}

// ModelName normalizes a model/family description.
func (n *Normalizer) ModelName(s string) string {
	return apply(clean(s), n.model)
}

// PackageName normalizes a package/trim description.
func (n *Normalizer) PackageName(s string) string {
	return apply(clean(s), n.pkg)
}

// EngineSpec normalizes an engine description and re-emits recognized
// displacement, variant and turbo tokens in canonical order. Unrecognized
// input is returned cleaned and upper-cased without reordering.
func (n *Normalizer) EngineSpec(s string) string {
	cleaned := apply(clean(s), n.engine)
	m := engineRe.FindStringSubmatch(cleaned)
	if m == nil {
		return cleaned
	}
	parts := []string{m[1] + m[2]}
	if m[3] != "" {
		parts = append(parts, m[3])
	}
	if m[4] != "" {
		parts = append(parts, strings.Join(strings.Fields(m[4]), " "))
	}
	return strings.Join(parts, " ")
}

func clean(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(runes.Remove(glyphs), norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = separators.Replace(folded)
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}

func apply(s string, table []rewrite) string {
	for _, rw := range table {
		s = vocab.ReplacePhrase(s, rw.from, rw.to)
	}
	return s
}

var defaultNormalizer = New(vocab.Default())

// NormalizeModelName normalizes with the default vocabulary.
func NormalizeModelName(s string) string { return defaultNormalizer.ModelName(s) }

// NormalizePackageName normalizes with the default vocabulary.
func NormalizePackageName(s string) string { return defaultNormalizer.PackageName(s) }

// NormalizeEngineSpec normalizes with the default vocabulary.
func NormalizeEngineSpec(s string) string { return defaultNormalizer.EngineSpec(s) }
