package domain

import (
	"strings"
	"time"
)

// ============================================================
// Deals & Pipeline Stages
// ============================================================

// Stage is the pipeline phase a deal occupies.
type Stage string

const (
	StageFirstContact Stage = "First Contact"
	StageDiscovery    Stage = "Discovery"
	StageValidation   Stage = "Validation"
	StageCommitment   Stage = "Commitment"
	StageConversion   Stage = "Conversion"
	StageWon          Stage = "Won"
	StageLost         Stage = "Lost"
)

// Stages lists every pipeline stage in board order.
var Stages = []Stage{
	StageFirstContact,
	StageDiscovery,
	StageValidation,
	StageCommitment,
	StageConversion,
	StageWon,
	StageLost,
}

// Terminal reports whether the stage closes the deal (Won or Lost).
func (s Stage) Terminal() bool {
	return s == StageWon || s == StageLost
}

// Valid reports whether s is one of the known pipeline stages.
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}

// ParseStage converts a column identifier into a Stage.
func ParseStage(v string) (Stage, error) {
	s := Stage(strings.TrimSpace(v))
	if !s.Valid() {
		return "", &ErrValidation{Field: "stage", Message: "unknown stage " + v}
	}
	return s, nil
}

// Urgency classifies how pressing a deal or signal is.
type Urgency string

const (
	UrgencyHot     Urgency = "Hot"
	UrgencyWatch   Urgency = "Watch"
	UrgencyCold    Urgency = "Cold"
	UrgencyStalled Urgency = "Stalled"
)

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyHot, UrgencyWatch, UrgencyCold, UrgencyStalled:
		return true
	}
	return false
}

// SignalType is the kind of event a signal describes.
type SignalType string

const (
	SignalEngagement    SignalType = "Engagement"
	SignalRisk          SignalType = "Risk"
	SignalMomentumShift SignalType = "Momentum Shift"
	SignalBuyingIntent  SignalType = "Buying Intent"
	SignalInactivity    SignalType = "Inactivity"
)

// DealSignal is a signal summary attached to a deal.
type DealSignal struct {
	Type    SignalType `json:"type"`
	Summary string     `json:"summary"`
}

// Deal is a tracked sales opportunity.
type Deal struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Company      string       `json:"company"`
	Value        float64      `json:"value"`
	Stage        Stage        `json:"stage"`
	CloseDate    string       `json:"closeDate"` // YYYY-MM-DD
	Momentum     int          `json:"momentum"`
	RepID        string       `json:"repId"`
	RepName      string       `json:"repName"`
	Urgency      Urgency      `json:"urgency"`
	Signals      []DealSignal `json:"signals"`
	LastActivity time.Time    `json:"lastActivity"`
}

// Clone returns a deep copy so callers never share the signals slice.
func (d Deal) Clone() Deal {
	if d.Signals != nil {
		d.Signals = append([]DealSignal(nil), d.Signals...)
	}
	return d
}

// CloneDeals deep-copies a deal slice.
func CloneDeals(deals []Deal) []Deal {
	if deals == nil {
		return nil
	}
	out := make([]Deal, len(deals))
	for i, d := range deals {
		out[i] = d.Clone()
	}
	return out
}

// CloseDateLayout is the calendar date format used by Deal.CloseDate.
const CloseDateLayout = "2006-01-02"

// ============================================================
// Filters & Sorting
// ============================================================

// FilterDimension names one of the board filter selectors.
type FilterDimension string

const (
	FilterRep        FilterDimension = "rep"
	FilterUrgency    FilterDimension = "urgency"
	FilterSignalType FilterDimension = "signalType"
)

// Filters holds the current filter selection. A nil field means "no filter".
type Filters struct {
	Rep        *string `json:"rep"`
	Urgency    *string `json:"urgency"`
	SignalType *string `json:"signalType"`
}

// Set returns a copy of f with dim set to value. An empty value or "all" clears it.
func (f Filters) Set(dim FilterDimension, value *string) (Filters, error) {
	if value != nil {
		v := strings.TrimSpace(*value)
		if v == "" || strings.EqualFold(v, "all") {
			value = nil
		} else {
			value = &v
		}
	}
	switch dim {
	case FilterRep:
		f.Rep = value
	case FilterUrgency:
		f.Urgency = value
	case FilterSignalType:
		f.SignalType = value
	default:
		return f, &ErrValidation{Field: "dimension", Message: "unknown filter " + string(dim)}
	}
	return f, nil
}

// Clone copies the pointed-to values.
func (f Filters) Clone() Filters {
	return Filters{Rep: copyStr(f.Rep), Urgency: copyStr(f.Urgency), SignalType: copyStr(f.SignalType)}
}

// Match reports whether the deal passes every active filter.
// Values compare case-insensitively and "_" matches a space, so "momentum_shift" selects Momentum Shift.
func (f Filters) Match(d Deal) bool {
	if f.Rep != nil && d.RepID != *f.Rep {
		return false
	}
	if f.Urgency != nil && normalizeLabel(string(d.Urgency)) != normalizeLabel(*f.Urgency) {
		return false
	}
	if f.SignalType != nil {
		want := normalizeLabel(*f.SignalType)
		found := false
		for _, s := range d.Signals {
			if normalizeLabel(string(s.Type)) == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func normalizeLabel(v string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(v), "_", " "))
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// SortKey selects the ordering of deals inside a stage column.
type SortKey string

const (
	SortByMomentum  SortKey = "momentum"
	SortByCloseDate SortKey = "closeDate"
	SortByValue     SortKey = "value"
)

// ParseSortKey validates a sort key.
func ParseSortKey(v string) (SortKey, error) {
	switch k := SortKey(strings.TrimSpace(v)); k {
	case SortByMomentum, SortByCloseDate, SortByValue:
		return k, nil
	}
	return "", &ErrValidation{Field: "sortBy", Message: "unknown sort key " + v}
}

// SortPreferences maps every stage to its column ordering.
type SortPreferences map[Stage]SortKey

// DefaultSortPreferences orders every column by momentum.
func DefaultSortPreferences() SortPreferences {
	p := make(SortPreferences, len(Stages))
	for _, s := range Stages {
		p[s] = SortByMomentum
	}
	return p
}

// Clone copies the map.
func (p SortPreferences) Clone() SortPreferences {
	out := make(SortPreferences, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
