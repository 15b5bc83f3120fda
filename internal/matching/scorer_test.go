package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoreNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func deadlineIn(days int) *time.Time {
	d := scoreNow.AddDate(0, 0, days)
	return &d
}

func TestScoreStrongMatch(t *testing.T) {
	opp := Opportunity{
		ID:               "opp-1",
		Title:            "AI Software Development",
		Synopsis:         "Development of machine learning systems",
		NAICSCode:        "541511",
		SetAside:         "Small Business",
		State:            "VA",
		ResponseDeadline: deadlineIn(10),
		Active:           true,
	}
	profile := Profile{
		ID:            "p1",
		NAICSCodes:    []string{"541511"},
		BusinessTypes: []string{"Small Business"},
		Capabilities:  []string{"AI Development"},
		State:         "VA",
	}

	factors, score := Score(opp, profile, scoreNow)

	assert.True(t, factors.NAICSMatch)
	assert.True(t, factors.SetAsideMatch)
	assert.True(t, factors.LocationMatch)
	assert.False(t, factors.CapabilityMatch) // "AI Development" is not a substring of the text
	assert.GreaterOrEqual(t, score, 65.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestScoreDeterministic(t *testing.T) {
	opp := Opportunity{
		ID:               "opp-1",
		Title:            "Cloud Platform Modernization",
		NAICSCode:        "541512",
		ResponseDeadline: deadlineIn(20),
	}
	profile := Profile{ID: "p1", NAICSCodes: []string{"5415"}}

	f1, s1 := Score(opp, profile, scoreNow)
	f2, s2 := Score(opp, profile, scoreNow)
	assert.Equal(t, f1, f2)
	assert.Equal(t, s1, s2)
}

func TestScoreNoSignals(t *testing.T) {
	opp := Opportunity{ID: "opp-1", Title: "Unrelated Notice"}
	profile := Profile{ID: "p1"}

	factors, score := Score(opp, profile, scoreNow)

	assert.False(t, factors.NAICSMatch)
	assert.False(t, factors.SetAsideMatch)
	assert.False(t, factors.LocationMatch)
	assert.False(t, factors.CapabilityMatch)
	// Recency (no deadline) and value still contribute their neutral floors.
	assert.Equal(t, 0.5, factors.RecencyScore)
	assert.Equal(t, 0.5, factors.ValueScore)
	assert.InDelta(t, 10.0, score, 0.0001)
}

func TestNAICSMatchBidirectional(t *testing.T) {
	tests := []struct {
		name         string
		profileCodes []string
		oppCode      string
		want         bool
	}{
		{name: "exact", profileCodes: []string{"541511"}, oppCode: "541511", want: true},
		{name: "profile prefix of opportunity", profileCodes: []string{"5415"}, oppCode: "541511", want: true},
		{name: "opportunity prefix of profile", profileCodes: []string{"541511"}, oppCode: "5415", want: true},
		{name: "no relation", profileCodes: []string{"236220"}, oppCode: "541511", want: false},
		{name: "empty opportunity code", profileCodes: []string{"541511"}, oppCode: "", want: false},
		{name: "empty profile code ignored", profileCodes: []string{""}, oppCode: "541511", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, naicsMatch(tt.profileCodes, tt.oppCode))
		})
	}
}

func TestLocationMatchExact(t *testing.T) {
	opp := Opportunity{State: "VA"}

	factors, _ := Score(opp, Profile{State: "VA"}, scoreNow)
	assert.True(t, factors.LocationMatch)

	// Exact comparison only: differing case or an empty profile state is
	// not a match.
	factors, _ = Score(opp, Profile{State: "va"}, scoreNow)
	assert.False(t, factors.LocationMatch)

	factors, _ = Score(opp, Profile{}, scoreNow)
	assert.False(t, factors.LocationMatch)
}

func TestSetAsideMatchCaseInsensitive(t *testing.T) {
	opp := Opportunity{SetAside: "SDVOSB Set-Aside"}
	profile := Profile{BusinessTypes: []string{"sdvosb"}}

	factors, _ := Score(opp, profile, scoreNow)
	assert.True(t, factors.SetAsideMatch)
}

func TestCapabilityMatchInSynopsis(t *testing.T) {
	opp := Opportunity{
		Title:    "IT Services",
		Synopsis: "Includes cybersecurity monitoring and response",
	}
	profile := Profile{Capabilities: []string{"Cybersecurity"}}

	factors, _ := Score(opp, profile, scoreNow)
	assert.True(t, factors.CapabilityMatch)
}

func TestRecencyScore(t *testing.T) {
	assert.Equal(t, 0.5, recencyScore(nil, scoreNow))
	assert.InDelta(t, 1.0, recencyScore(deadlineIn(45), scoreNow), 0.0001)
	assert.InDelta(t, 0.5, recencyScore(deadlineIn(15), scoreNow), 0.0001)
	assert.Equal(t, 0.0, recencyScore(deadlineIn(-5), scoreNow))
}

func TestValueScoreKeywords(t *testing.T) {
	high := Opportunity{Title: "Software Development", Synopsis: "cloud analytics platform"}
	low := Opportunity{Title: "Janitorial Services", Synopsis: "supply and maintenance"}
	neutral := Opportunity{Title: "General Notice"}

	assert.Greater(t, valueScore(high), valueScore(neutral))
	assert.Less(t, valueScore(low), valueScore(neutral))
	assert.Equal(t, 0.5, valueScore(neutral))
}

func TestDeadlineUrgencyBuckets(t *testing.T) {
	assert.Equal(t, 0.0, deadlineUrgency(nil, scoreNow))
	assert.Equal(t, 1.0, deadlineUrgency(deadlineIn(-1), scoreNow))
	assert.Equal(t, 0.9, deadlineUrgency(deadlineIn(3), scoreNow))
	assert.Equal(t, 0.7, deadlineUrgency(deadlineIn(10), scoreNow))
	assert.Equal(t, 0.5, deadlineUrgency(deadlineIn(21), scoreNow))
	assert.Equal(t, 0.3, deadlineUrgency(deadlineIn(60), scoreNow))
}

func TestBlendVectorScore(t *testing.T) {
	// 0.3*80 + 0.7*60 = 66
	assert.InDelta(t, 66.0, BlendVectorScore(80, 60), 0.0001)

	// Out-of-range vector scores are clamped before blending.
	assert.InDelta(t, 0.7*50, BlendVectorScore(-10, 50), 0.0001)
	assert.InDelta(t, 30+0.7*50, BlendVectorScore(500, 50), 0.0001)
}

func TestScoreBounds(t *testing.T) {
	// Everything matching, every keyword present: still capped at 100.
	opp := Opportunity{
		ID:        "opp-1",
		Title:     "Software Development Consulting Platform Integration",
		Synopsis:  "cloud cybersecurity analytics engineering modernization",
		NAICSCode: "541511",
		SetAside:  "Small Business",
		State:     "VA",
	}
	profile := Profile{
		ID:            "p1",
		NAICSCodes:    []string{"541511"},
		BusinessTypes: []string{"Small Business"},
		Capabilities:  []string{"software"},
		State:         "VA",
	}

	_, score := Score(opp, profile, scoreNow)
	require.LessOrEqual(t, score, 100.0)
	require.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, BlendVectorScore(100, score), 100.0)
}
