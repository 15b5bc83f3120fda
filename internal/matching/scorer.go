package matching

import (
	"math"
	"strings"
	"time"
)

// Factors are the per-pair relevance signals. They are a pure function of
// one (opportunity, profile) pair and are recomputed every cycle, never
// persisted.
type Factors struct {
	NAICSMatch      bool    `json:"naicsMatch"`
	SetAsideMatch   bool    `json:"setAsideMatch"`
	LocationMatch   bool    `json:"locationMatch"`
	CapabilityMatch bool    `json:"capabilityMatch"`
	RecencyScore    float64 `json:"recencyScore"`
	ValueScore      float64 `json:"valueScore"`

	// DeadlineUrgency only drives alert classification; it carries no
	// weight in the score.
	DeadlineUrgency float64 `json:"deadlineUrgency"`
}

// Factor weights. The constants are tuned against the existing corpus;
// changing them changes every score, so they are fixed here and surfaced
// only through configuration of the threshold, not the weights.
const (
	weightNAICS      = 0.25
	weightSetAside   = 0.20
	weightLocation   = 0.15
	weightCapability = 0.20
	weightRecency    = 0.10
	weightValue      = 0.10
)

// Vector similarity blend: final = 0.3*vector + 0.7*factors.
const (
	blendVectorWeight = 0.3
	blendFactorWeight = 0.7
)

// Keyword lists for the value heuristic. Matching is case-insensitive
// against title + synopsis; each distinct high-value hit adds 0.1, each
// low-value hit subtracts 0.05.
var (
	highValueKeywords = []string{
		"development", "consulting", "platform", "software", "integration",
		"modernization", "cloud", "cybersecurity", "analytics", "engineering",
	}
	lowValueKeywords = []string{
		"maintenance", "supply", "janitorial", "custodial", "landscaping", "repair",
	}
)

// Score computes relevance factors and a 0-100 score for one
// (opportunity, profile) pair. It is deterministic for a fixed now.
func Score(opp Opportunity, profile Profile, now time.Time) (Factors, float64) {
	factors := Factors{
		NAICSMatch:      naicsMatch(profile.NAICSCodes, opp.NAICSCode),
		SetAsideMatch:   containsAnyFold(opp.SetAside, profile.BusinessTypes),
		// Location is an exact state-code comparison; codes are normalized
		// upstream, so no case folding here.
		LocationMatch:   profile.State != "" && profile.State == opp.State,
		CapabilityMatch: capabilityMatch(opp, profile.Capabilities),
		RecencyScore:    recencyScore(opp.ResponseDeadline, now),
		ValueScore:      valueScore(opp),
		DeadlineUrgency: deadlineUrgency(opp.ResponseDeadline, now),
	}

	sum := factors.RecencyScore*weightRecency + factors.ValueScore*weightValue
	if factors.NAICSMatch {
		sum += weightNAICS
	}
	if factors.SetAsideMatch {
		sum += weightSetAside
	}
	if factors.LocationMatch {
		sum += weightLocation
	}
	if factors.CapabilityMatch {
		sum += weightCapability
	}

	return factors, math.Min(100, sum*100)
}

// BlendVectorScore combines an upstream vector-similarity score with the
// factor score, both on the 0-100 scale. This is the single canonical
// blend; every call site uses it.
func BlendVectorScore(vectorScore, factorScore float64) float64 {
	vectorScore = clamp(vectorScore, 0, 100)
	return math.Min(100, blendVectorWeight*vectorScore+blendFactorWeight*factorScore)
}

// naicsMatch is a bidirectional substring match: either code may be a
// family prefix of the other ("5415" matches "541511" and vice versa), so
// sources with differing code granularity still match.
func naicsMatch(profileCodes []string, oppCode string) bool {
	if oppCode == "" {
		return false
	}
	for _, code := range profileCodes {
		if code == "" {
			continue
		}
		if strings.Contains(oppCode, code) || strings.Contains(code, oppCode) {
			return true
		}
	}
	return false
}

// containsAnyFold reports whether haystack and any needle contain each
// other case-insensitively, in either direction.
func containsAnyFold(haystack string, needles []string) bool {
	if haystack == "" {
		return false
	}
	lower := strings.ToLower(haystack)
	for _, needle := range needles {
		if needle == "" {
			continue
		}
		n := strings.ToLower(needle)
		if strings.Contains(lower, n) || strings.Contains(n, lower) {
			return true
		}
	}
	return false
}

func capabilityMatch(opp Opportunity, capabilities []string) bool {
	text := strings.ToLower(opp.Title + " " + opp.Synopsis)
	for _, capability := range capabilities {
		if capability == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(capability)) {
			return true
		}
	}
	return false
}

// recencyScore is daysUntilDeadline/30 clamped to [0,1]; 0.5 when no
// deadline is present.
func recencyScore(deadline *time.Time, now time.Time) float64 {
	if deadline == nil {
		return 0.5
	}
	days := deadline.Sub(now).Hours() / 24
	return clamp(days/30, 0, 1)
}

func valueScore(opp Opportunity) float64 {
	text := strings.ToLower(opp.Title + " " + opp.Synopsis)
	score := 0.5
	for _, kw := range highValueKeywords {
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}
	for _, kw := range lowValueKeywords {
		if strings.Contains(text, kw) {
			score -= 0.05
		}
	}
	return clamp(score, 0, 1)
}

// deadlineUrgency buckets the time to deadline for alert classification.
func deadlineUrgency(deadline *time.Time, now time.Time) float64 {
	if deadline == nil {
		return 0
	}
	days := deadline.Sub(now).Hours() / 24
	switch {
	case days <= 0:
		return 1.0
	case days <= 7:
		return 0.9
	case days <= 14:
		return 0.7
	case days <= 30:
		return 0.5
	default:
		return 0.3
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
