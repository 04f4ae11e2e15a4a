package domain

import (
	"fmt"
	"math"
	"sort"
)

// ============================================================
// Stage Transition Policy
// ============================================================

// TransitionPolicy decides which stage moves a deal may make.
type TransitionPolicy string

const (
	// TransitionOpen allows any stage to be reached from any stage, including
	// reopening Won/Lost deals for manual correction.
	TransitionOpen TransitionPolicy = "open"
	// TransitionLockTerminal refuses moves out of Won or Lost.
	TransitionLockTerminal TransitionPolicy = "lock-terminal"
)

// ParseTransitionPolicy falls back to TransitionOpen for unknown values.
func ParseTransitionPolicy(v string) TransitionPolicy {
	if TransitionPolicy(v) == TransitionLockTerminal {
		return TransitionLockTerminal
	}
	return TransitionOpen
}

// Allow returns an error when the move from -> to is not permitted.
func (p TransitionPolicy) Allow(from, to Stage) error {
	if p == TransitionLockTerminal && from.Terminal() && from != to {
		return &ErrTransitionNotAllowed{From: from, To: to}
	}
	return nil
}

// ============================================================
// Derived Aggregates
// ============================================================

// StageSummary aggregates the deals of one stage.
type StageSummary struct {
	Stage       Stage   `json:"stage"`
	Count       int     `json:"count"`
	TotalValue  float64 `json:"totalValue"`
	AvgMomentum int     `json:"avgMomentum"`
}

// PipelineSummary is the dashboard view of a deal collection.
// It is always computed from the collection and never stored.
type PipelineSummary struct {
	TotalDeals       int            `json:"totalDeals"`
	TotalValue       float64        `json:"totalValue"`
	ActiveDeals      int            `json:"activeDeals"`
	WonDeals         int            `json:"wonDeals"`
	ClosedDeals      int            `json:"closedDeals"`
	WinRate          int            `json:"winRate"` // percent
	WeightedForecast float64        `json:"weightedForecast"`
	Stages           []StageSummary `json:"stages"`
	RecentActivity   []Deal         `json:"recentActivity"`
}

// RecentActivityLimit caps PipelineSummary.RecentActivity.
const RecentActivityLimit = 5

// Summarize computes every pipeline aggregate in one pass over deals.
func Summarize(deals []Deal) PipelineSummary {
	s := PipelineSummary{TotalDeals: len(deals)}

	byStage := make(map[Stage]*StageSummary, len(Stages))
	momentumSum := make(map[Stage]int, len(Stages))
	for _, st := range Stages {
		byStage[st] = &StageSummary{Stage: st}
	}

	weighted := 0.0
	for _, d := range deals {
		s.TotalValue += d.Value
		weighted += d.Value * float64(d.Momentum) / 100
		switch {
		case d.Stage == StageWon:
			s.WonDeals++
			s.ClosedDeals++
		case d.Stage.Terminal():
			s.ClosedDeals++
		default:
			s.ActiveDeals++
		}
		if ss, ok := byStage[d.Stage]; ok {
			ss.Count++
			ss.TotalValue += d.Value
			momentumSum[d.Stage] += d.Momentum
		}
	}

	s.WeightedForecast = math.Round(weighted)
	s.WinRate = WinRate(s.WonDeals, s.ClosedDeals)

	s.Stages = make([]StageSummary, 0, len(Stages))
	for _, st := range Stages {
		ss := byStage[st]
		ss.AvgMomentum = AverageMomentum(momentumSum[st], ss.Count)
		s.Stages = append(s.Stages, *ss)
	}

	s.RecentActivity = RecentActivity(deals, RecentActivityLimit)
	return s
}

// WinRate returns the rounded percentage of closed deals that were won, 0 when none closed.
func WinRate(won, closed int) int {
	if closed == 0 {
		return 0
	}
	return int(math.Round(float64(won) / float64(closed) * 100))
}

// AverageMomentum rounds sum/count, treating an empty column as 0.
func AverageMomentum(sum, count int) int {
	return roundedMean(sum, count)
}

func roundedMean(sum, count int) int {
	if count == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(count)))
}

// RecentActivity returns up to limit deals, most recent activity first.
func RecentActivity(deals []Deal, limit int) []Deal {
	out := CloneDeals(deals)
	if out == nil {
		out = []Deal{}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// String renders a compact description used in log lines.
func (s PipelineSummary) String() string {
	return fmt.Sprintf("deals=%d value=%.0f forecast=%.0f win_rate=%d%%", s.TotalDeals, s.TotalValue, s.WeightedForecast, s.WinRate)
}
