package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidscoutlabs/matchd/internal/vectorstore"
)

func TestOpportunityMetadataRoundTrip(t *testing.T) {
	deadline := time.Date(2026, 4, 15, 17, 0, 0, 0, time.UTC)
	opp := Opportunity{
		ID:               "opp-1",
		Title:            "Cybersecurity Assessment",
		Synopsis:         "Annual assessment of agency systems",
		NAICSCode:        "541512",
		State:            "MD",
		City:             "Baltimore",
		SetAside:         "8(a) Set-Aside",
		ResponseDeadline: &deadline,
		Active:           true,
		SourceLink:       "https://example.gov/opp-1",
	}

	decoded, err := OpportunityFromResult(vectorstore.QueryResult{
		ID:       opp.ID,
		Metadata: opp.Metadata(),
	})
	require.NoError(t, err)
	assert.Equal(t, opp, decoded)
}

func TestOpportunityFromResultErrors(t *testing.T) {
	_, err := OpportunityFromResult(vectorstore.QueryResult{})
	assert.Error(t, err)

	_, err = OpportunityFromResult(vectorstore.QueryResult{
		ID:       "opp-1",
		Metadata: map[string]any{"responseDeadline": "yesterday"},
	})
	assert.Error(t, err)
}

func TestOpportunityFromResultTolerantTypes(t *testing.T) {
	// String backends hand back re-typed metadata; decoding tolerates both.
	decoded, err := OpportunityFromResult(vectorstore.QueryResult{
		ID: "opp-1",
		Metadata: map[string]any{
			"title":     "Notice",
			"naicsCode": int64(541511),
			"active":    "true",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "541511", decoded.NAICSCode)
	assert.True(t, decoded.Active)
}

func TestOpportunitySearchText(t *testing.T) {
	opp := Opportunity{Title: "Title", Synopsis: "Body"}
	assert.Equal(t, "Title\nBody", opp.SearchText())

	assert.Equal(t, "Only Title", Opportunity{Title: "Only Title"}.SearchText())
	assert.Equal(t, "", Opportunity{}.SearchText())
}

func TestProfileVectorID(t *testing.T) {
	assert.Equal(t, "profile_p1", Profile{ID: "p1"}.VectorID())
}

func TestProfileSearchText(t *testing.T) {
	p := Profile{
		NAICSCodes:    []string{"541511", "541512"},
		BusinessTypes: []string{"Small Business"},
		Capabilities:  []string{"cloud", "devops"},
	}
	text := p.SearchText()
	assert.Contains(t, text, "NAICS: 541511, 541512")
	assert.Contains(t, text, "Business types: Small Business")
	assert.Contains(t, text, "Capabilities: cloud, devops")

	assert.Equal(t, "", Profile{}.SearchText())
}
