package similarity

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Semantic scores by cosine similarity of embeddings. A failed embedding
// degrades to the lexical score for that pair.
type Semantic struct {
	embedder Embedder
	vocab    *vocab.Vocabulary
	lexical  *Lexical
	abbrevs  []string

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewSemantic returns a semantic scorer. Prefer New, which probes the
// embedder first.
func NewSemantic(embedder Embedder, v *vocab.Vocabulary) *Semantic {
	abbrevs := make([]string, 0, len(v.Abbreviations))
	for k := range v.Abbreviations {
		abbrevs = append(abbrevs, k)
	}
	sort.Strings(abbrevs)
	return &Semantic{
		embedder: embedder,
		vocab:    v,
		lexical:  NewLexical(v),
		abbrevs:  abbrevs,
		cache:    make(map[string][]float32),
	}
}

func (s *Semantic) Strategy() string { return StrategySemantic }

// Score implements Scorer.
func (s *Semantic) Score(ctx context.Context, a, b string) float64 {
	if a == b && a != "" {
		return 1
	}
	a, b = canonical(a), canonical(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	va, err := s.vector(ctx, a)
	if err != nil {
		zap.L().Debug("similarity: embedding failed, using lexical score", zap.String("text", a), zap.Error(err))
		return s.lexical.Score(ctx, a, b)
	}
	vb, err := s.vector(ctx, b)
	if err != nil {
		zap.L().Debug("similarity: embedding failed, using lexical score", zap.String("text", b), zap.Error(err))
		return s.lexical.Score(ctx, a, b)
	}
	return clamp(cosine(va, vb) + DomainBoost(s.vocab, a, b))
}

func (s *Semantic) vector(ctx context.Context, text string) ([]float32, error) {
	s.mu.RLock()
	v, ok := s.cache[text]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}
	v, err := s.embedder.Embed(ctx, s.expand(text))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[text] = v
	s.mu.Unlock()
	return v, nil
}

// expand appends the long form of every abbreviation present in text so the
// embedding sees e.g. "E-TEC" as a direct-injection two-stroke engine.
func (s *Semantic) expand(text string) string {
	var b strings.Builder
	b.WriteString(text)
	for _, abbr := range s.abbrevs {
		if vocab.ContainsPhrase(text, abbr) {
			b.WriteString(" ")
			b.WriteString(s.vocab.Abbreviations[abbr])
		}
	}
	return b.String()
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
