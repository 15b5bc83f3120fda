// Package matching implements the opportunity relevance scorer, the
// deduplicating alert store, and the per-profile matching loop.
package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/bidscoutlabs/matchd/internal/vectorstore"
)

// Opportunity is a contract opportunity as stored in the vector corpus.
type Opportunity struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Synopsis string `json:"synopsis"`

	// NAICSCode classifies the industry (hierarchical; prefix granularity
	// varies by source).
	NAICSCode string `json:"naicsCode"`

	// State and City locate the place of performance.
	State string `json:"state"`
	City  string `json:"city"`

	// SetAside describes any business-category restriction
	// ("Small Business", "SDVOSB Set-Aside", ...).
	SetAside string `json:"setAside"`

	// ResponseDeadline is nil when the listing has no deadline.
	ResponseDeadline *time.Time `json:"responseDeadline,omitempty"`

	Active     bool   `json:"active"`
	SourceLink string `json:"sourceLink"`
}

// SearchText is the text embedded for similarity search.
func (o Opportunity) SearchText() string {
	return strings.TrimSpace(o.Title + "\n" + o.Synopsis)
}

// Metadata flattens the opportunity for vector storage.
func (o Opportunity) Metadata() map[string]any {
	m := map[string]any{
		"title":      o.Title,
		"synopsis":   o.Synopsis,
		"naicsCode":  o.NAICSCode,
		"state":      o.State,
		"city":       o.City,
		"setAside":   o.SetAside,
		"active":     o.Active,
		"sourceLink": o.SourceLink,
	}
	if o.ResponseDeadline != nil {
		m["responseDeadline"] = o.ResponseDeadline.UTC().Format(time.RFC3339)
	}
	return m
}

// OpportunityFromResult decodes an opportunity from a vector query result.
func OpportunityFromResult(r vectorstore.QueryResult) (Opportunity, error) {
	if r.ID == "" {
		return Opportunity{}, fmt.Errorf("result has no ID")
	}
	m := r.Metadata

	opp := Opportunity{
		ID:         r.ID,
		Title:      metaString(m, "title"),
		Synopsis:   metaString(m, "synopsis"),
		NAICSCode:  metaString(m, "naicsCode"),
		State:      metaString(m, "state"),
		City:       metaString(m, "city"),
		SetAside:   metaString(m, "setAside"),
		SourceLink: metaString(m, "sourceLink"),
		Active:     metaBool(m, "active"),
	}

	if raw := metaString(m, "responseDeadline"); raw != "" {
		deadline, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Opportunity{}, fmt.Errorf("parsing responseDeadline %q: %w", raw, err)
		}
		opp.ResponseDeadline = &deadline
	}
	return opp, nil
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func metaBool(m map[string]any, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
		if s, ok := v.(string); ok {
			return s == "true"
		}
	}
	return false
}

// Profile is the requester profile opportunities are matched against.
type Profile struct {
	ID            string   `json:"id"`
	NAICSCodes    []string `json:"naicsCodes"`
	BusinessTypes []string `json:"businessTypes"`
	Capabilities  []string `json:"capabilities"`

	// State is the profile's contact state, matched exactly against the
	// opportunity's place of performance.
	State string `json:"state"`
}

// VectorID is the profile's key in the profile vector collection.
func (p Profile) VectorID() string {
	return "profile_" + p.ID
}

// SearchText is the text embedded to represent the profile in similarity
// search.
func (p Profile) SearchText() string {
	parts := make([]string, 0, 3)
	if len(p.NAICSCodes) > 0 {
		parts = append(parts, "NAICS: "+strings.Join(p.NAICSCodes, ", "))
	}
	if len(p.BusinessTypes) > 0 {
		parts = append(parts, "Business types: "+strings.Join(p.BusinessTypes, ", "))
	}
	if len(p.Capabilities) > 0 {
		parts = append(parts, "Capabilities: "+strings.Join(p.Capabilities, ", "))
	}
	return strings.Join(parts, "\n")
}
