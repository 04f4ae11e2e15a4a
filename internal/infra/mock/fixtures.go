package mock

import (
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
)

func seedDeals() []domain.Deal {
	return []domain.Deal{
		{
			ID:        "1",
			Name:      "Enterprise SaaS Deal",
			Value:     150000,
			Stage:     domain.StageDiscovery,
			CloseDate: "2024-03-15",
			Momentum:  85,
			RepID:     "rep1",
			RepName:   "John Doe",
			Company:   "Acme Corp",
			Urgency:   domain.UrgencyHot,
			Signals: []domain.DealSignal{
				{Type: domain.SignalBuyingIntent, Summary: "Multiple stakeholders engaged"},
				{Type: domain.SignalMomentumShift, Summary: "Positive sentiment in last call"},
			},
			LastActivity: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:        "2",
			Name:      "Mid-Market Solution",
			Value:     75000,
			Stage:     domain.StageValidation,
			CloseDate: "2024-02-28",
			Momentum:  72,
			RepID:     "rep2",
			RepName:   "Jane Smith",
			Company:   "Beta Inc",
			Urgency:   domain.UrgencyWatch,
			Signals: []domain.DealSignal{
				{Type: domain.SignalEngagement, Summary: "Proposal viewed multiple times"},
			},
			LastActivity: time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC),
		},
	}
}

func seedSignals(now time.Time) []domain.Signal {
	return []domain.Signal{
		{
			ID:              "1",
			Name:            "Acme Corp",
			Summary:         "Client asked about pricing in last call",
			Type:            domain.SignalBuyingIntent,
			Urgency:         domain.UrgencyHot,
			ConfidenceScore: 92,
			TimeDecay:       "4h ago",
			NextBestAction:  "Send Follow-up",
			DealStage:       "Negotiation",
			CreatedAt:       now.Add(-2 * time.Hour),
			RepID:           "rep1",
			RepName:         "John Doe",
		},
		{
			ID:              "2",
			Name:            "Beta Inc",
			Summary:         "Proposal link opened three times",
			Type:            domain.SignalEngagement,
			Urgency:         domain.UrgencyWatch,
			ConfidenceScore: 85,
			TimeDecay:       "1h ago",
			NextBestAction:  "Start Call",
			DealStage:       "Proposal",
			CreatedAt:       now.Add(-50 * time.Hour),
			RepID:           "rep2",
			RepName:         "Jane Smith",
		},
		{
			ID:              "3",
			Name:            "Tech Solutions Ltd",
			Summary:         "No response to last 3 emails",
			Type:            domain.SignalRisk,
			Urgency:         domain.UrgencyCold,
			ConfidenceScore: 78,
			TimeDecay:       "2d ago",
			NextBestAction:  "Escalate",
			DealStage:       "Qualification",
			CreatedAt:       now.Add(-30 * time.Hour),
			RepID:           "rep1",
			RepName:         "John Doe",
		},
		{
			ID:              "4",
			Name:            "Global Industries",
			Summary:         "Positive sentiment in call transcript",
			Type:            domain.SignalMomentumShift,
			Urgency:         domain.UrgencyHot,
			ConfidenceScore: 95,
			TimeDecay:       "30m ago",
			NextBestAction:  "Schedule Demo",
			DealStage:       "Proposal",
			CreatedAt:       now.Add(-30 * time.Minute),
			RepID:           "rep3",
			RepName:         "Mike Johnson",
		},
	}
}

func seedMomentum() *domain.MomentumSnapshot {
	return &domain.MomentumSnapshot{
		Activity: &domain.ScoreData{
			Score:         85,
			Delta:         5,
			Trend:         []int{75, 78, 80, 82, 83, 84, 85},
			Factors:       []string{"Increased call volume", "More email responses", "Higher meeting attendance"},
			AISuggestions: []string{"Schedule follow-ups immediately after calls", "Use email templates for faster responses"},
		},
		Quality: &domain.ScoreData{
			Score:         92,
			Delta:         2,
			Trend:         []int{88, 89, 90, 90, 91, 91, 92},
			Factors:       []string{"Improved proposal quality", "Better meeting preparation", "Detailed follow-ups"},
			AISuggestions: []string{"Create a pre-meeting checklist", "Use case studies in proposals"},
		},
		Velocity: &domain.ScoreData{
			Score:         78,
			Delta:         -3,
			Trend:         []int{82, 81, 80, 79, 78, 78, 78},
			Factors:       []string{"Slower deal progression", "Extended negotiation periods", "Delayed responses"},
			AISuggestions: []string{"Set clear next steps in every interaction", "Use urgency triggers in communications"},
		},
		Consistency: &domain.ScoreData{
			Score:         88,
			Delta:         4,
			Trend:         []int{82, 83, 84, 85, 86, 87, 88},
			Factors:       []string{"Regular client check-ins", "Consistent follow-up schedule", "Daily pipeline reviews"},
			AISuggestions: []string{"Block time for daily prospecting", "Create a weekly outreach schedule"},
		},
		ConversionEfficiency: &domain.ScoreData{
			Score:         75,
			Delta:         8,
			Trend:         []int{65, 67, 69, 71, 73, 74, 75},
			Factors:       []string{"Improved qualification process", "Better target account selection", "Effective objection handling"},
			AISuggestions: []string{"Document successful objection responses", "Refine ideal customer profile"},
		},
		Focus: &domain.ScoreData{
			Score:         95,
			Delta:         0,
			Trend:         []int{95, 95, 95, 95, 95, 95, 95},
			Factors:       []string{"Prioritized high-value opportunities", "Time management improvement", "Strategic account planning"},
			AISuggestions: []string{"Use time blocking for key activities", "Prioritize accounts by potential value"},
		},
		OverallMomentum: &domain.ScoreData{
			Score:         86,
			Delta:         3,
			Trend:         []int{81, 82, 83, 84, 85, 85, 86},
			Factors:       []string{"Consistent improvement across metrics", "Strong activity levels", "Quality engagement"},
			AISuggestions: []string{"Focus on maintaining high-performing areas", "Address velocity challenges"},
		},
	}
}
