package domain

import "time"

// ============================================================
// Signals
// ============================================================

// RoleManager sees every signal; any other role only sees its own.
const RoleManager = "manager"

// Signal is a detected event associated with a deal or representative.
type Signal struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Summary         string     `json:"summary"`
	Type            SignalType `json:"type"`
	Urgency         Urgency    `json:"urgency"`
	ConfidenceScore int        `json:"confidenceScore"`
	TimeDecay       string     `json:"timeDecay"`
	NextBestAction  string     `json:"nextBestAction"`
	DealStage       string     `json:"dealStage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	RepID           string     `json:"repId,omitempty"`
	RepName         string     `json:"repName,omitempty"`
}

// VisibleTo reports whether a viewer with role/userID may see the signal.
func (s Signal) VisibleTo(role, userID string) bool {
	return role == RoleManager || s.RepID == userID
}

// FilterSignals keeps the signals visible to role/userID, preserving order.
func FilterSignals(signals []Signal, role, userID string) []Signal {
	out := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if s.VisibleTo(role, userID) {
			out = append(out, s)
		}
	}
	return out
}

// SignalSummary backs the counters on the signals page.
type SignalSummary struct {
	Total         int            `json:"total"`
	HighPriority  int            `json:"highPriority"`
	AvgConfidence int            `json:"avgConfidence"`
	ByType        map[string]int `json:"byType"`
}

// SummarizeSignals computes the signal counters from the current feed.
func SummarizeSignals(signals []Signal) SignalSummary {
	s := SignalSummary{Total: len(signals), ByType: make(map[string]int)}
	sum := 0
	for _, sig := range signals {
		if sig.Urgency == UrgencyHot {
			s.HighPriority++
		}
		sum += sig.ConfidenceScore
		s.ByType[string(sig.Type)]++
	}
	s.AvgConfidence = roundedMean(sum, len(signals))
	return s
}

// Viewer identifies who is looking at the dashboard.
type Viewer struct {
	Role   string `json:"role"`
	UserID string `json:"userId"`
}
