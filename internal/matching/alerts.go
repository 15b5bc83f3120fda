package matching

import (
	"sync"
	"time"
)

// AlertType classifies why an alert fired.
type AlertType string

const (
	AlertHighMatch           AlertType = "high_match"
	AlertNewOpportunity      AlertType = "new_opportunity"
	AlertDeadlineApproaching AlertType = "deadline_approaching"
	AlertSetAsideMatch       AlertType = "set_aside_match"
)

// Priority ranks an alert for display.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Classify maps a blended score and its factors to an alert type and
// priority.
func Classify(score float64, factors Factors) (AlertType, Priority) {
	switch {
	case score >= 90:
		return AlertHighMatch, PriorityHigh
	case factors.SetAsideMatch:
		return AlertSetAsideMatch, PriorityHigh
	case factors.DeadlineUrgency >= 0.7:
		return AlertDeadlineApproaching, PriorityHigh
	default:
		return AlertNewOpportunity, PriorityMedium
	}
}

// Alert is one match notification for a profile. Created by the matching
// loop; afterwards only the Read and ActionTaken fields change.
type Alert struct {
	ID            string      `json:"id"`
	ProfileID     string      `json:"profileId"`
	OpportunityID string      `json:"opportunityId"`

	// Opportunity is a snapshot taken at alert time; the corpus entry may
	// change or disappear afterwards.
	Opportunity Opportunity `json:"opportunitySnapshot"`

	MatchScore float64   `json:"matchScore"`
	Factors    Factors   `json:"relevanceFactors"`
	Type       AlertType `json:"alertType"`
	Priority   Priority  `json:"priority"`
	CreatedAt  time.Time `json:"createdAt"`
	Read       bool      `json:"read"`
	ActionTaken string   `json:"actionTaken,omitempty"`
}

// AlertStore holds per-profile alerts, newest first, bounded at capacity
// per profile. While an alert for a (profile, opportunity) pair is
// retained, no second alert for that pair can be added; the invariants are
// enforced structurally here rather than checked by callers.
//
// The store is process-local. Durable retention across restarts is the
// caller's concern.
type AlertStore struct {
	capacity int

	mu        sync.Mutex
	byProfile map[string][]Alert
}

// NewAlertStore creates a store with the given per-profile capacity.
func NewAlertStore(capacity int) *AlertStore {
	if capacity <= 0 {
		capacity = 10
	}
	return &AlertStore{
		capacity:  capacity,
		byProfile: make(map[string][]Alert),
	}
}

// Add inserts an alert unless one for the same (profile, opportunity) pair
// is still retained. Insertion above capacity evicts the oldest alert.
// Returns false when the alert was suppressed as a duplicate.
func (s *AlertStore) Add(alert Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts := s.byProfile[alert.ProfileID]
	for _, existing := range alerts {
		if existing.OpportunityID == alert.OpportunityID {
			return false
		}
	}

	alerts = append([]Alert{alert}, alerts...)
	if len(alerts) > s.capacity {
		alerts = alerts[:s.capacity]
	}
	s.byProfile[alert.ProfileID] = alerts
	return true
}

// Has reports whether a live alert exists for the pair.
func (s *AlertStore) Has(profileID, opportunityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, alert := range s.byProfile[profileID] {
		if alert.OpportunityID == opportunityID {
			return true
		}
	}
	return false
}

// Alerts returns a copy of the profile's alerts, newest first.
func (s *AlertStore) Alerts(profileID string) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts := s.byProfile[profileID]
	out := make([]Alert, len(alerts))
	copy(out, alerts)
	return out
}

// UnreadCount returns the number of unread alerts for a profile.
func (s *AlertStore) UnreadCount(profileID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, alert := range s.byProfile[profileID] {
		if !alert.Read {
			count++
		}
	}
	return count
}

// MarkRead marks one alert read. Returns false if the alert is gone.
func (s *AlertStore) MarkRead(profileID, alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts := s.byProfile[profileID]
	for i := range alerts {
		if alerts[i].ID == alertID {
			alerts[i].Read = true
			return true
		}
	}
	return false
}

// RecordAction records the action taken on an alert ("saved",
// "dismissed", "applied", ...). Returns false if the alert is gone.
func (s *AlertStore) RecordAction(profileID, alertID, action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts := s.byProfile[profileID]
	for i := range alerts {
		if alerts[i].ID == alertID {
			alerts[i].ActionTaken = action
			return true
		}
	}
	return false
}

// Clear drops all alerts for a profile.
func (s *AlertStore) Clear(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byProfile, profileID)
}
