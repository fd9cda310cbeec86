package model

// MatchMethod names the tier that accepted a candidate.
type MatchMethod string

const (
	MatchExact    MatchMethod = "EXACT"
	MatchSemantic MatchMethod = "SEMANTIC"
	MatchFuzzy    MatchMethod = "FUZZY"
	MatchNone     MatchMethod = "NONE"
)

// TierResult describes one tier of the matching protocol for a single line.
type TierResult struct {
	Tier             int         `json:"tier"`
	Method           MatchMethod `json:"method"`
	Executed         bool        `json:"executed"`
	Accepted         bool        `json:"accepted"`
	Confidence       float64     `json:"confidence"`
	Threshold        float64     `json:"threshold"`
	CandidateID      string      `json:"candidate_id,omitempty"`
	CandidatesScored int         `json:"candidates_scored"`
}

// MatchingResult is produced once per line and never mutated afterwards.
type MatchingResult struct {
	Tiers               []TierResult `json:"tiers"`
	OverallConfidence   float64      `json:"overall_confidence"`
	FinalMethod         MatchMethod  `json:"final_method"`
	MatchedID           string       `json:"matched_id,omitempty"`
	RequiresHumanReview bool         `json:"requires_human_review"`
}

// Tier returns the result of tier n (1-based), if recorded.
func (r MatchingResult) Tier(n int) (TierResult, bool) {
	for _, t := range r.Tiers {
		if t.Tier == n {
			return t, true
		}
	}
	return TierResult{}, false
}
