package domain

// ============================================================
// Momentum Scorecards
// ============================================================

// ScoreData is one named dimension of sales momentum.
type ScoreData struct {
	Score         int      `json:"score"`
	Delta         int      `json:"delta"`
	Trend         []int    `json:"trend"`
	Factors       []string `json:"factors"`
	AISuggestions []string `json:"aiSuggestions"`
}

// Clone deep-copies the slices.
func (s *ScoreData) Clone() *ScoreData {
	if s == nil {
		return nil
	}
	c := *s
	c.Trend = append([]int(nil), s.Trend...)
	c.Factors = append([]string(nil), s.Factors...)
	c.AISuggestions = append([]string(nil), s.AISuggestions...)
	return &c
}

// MomentumSnapshot holds the seven scorecards of a single fetch.
type MomentumSnapshot struct {
	Activity             *ScoreData `json:"activity"`
	Quality              *ScoreData `json:"quality"`
	Velocity             *ScoreData `json:"velocity"`
	Consistency          *ScoreData `json:"consistency"`
	ConversionEfficiency *ScoreData `json:"conversionEfficiency"`
	Focus                *ScoreData `json:"focus"`
	OverallMomentum      *ScoreData `json:"overallMomentum"`
}

// Clone deep-copies every scorecard.
func (m *MomentumSnapshot) Clone() *MomentumSnapshot {
	if m == nil {
		return nil
	}
	return &MomentumSnapshot{
		Activity:             m.Activity.Clone(),
		Quality:              m.Quality.Clone(),
		Velocity:             m.Velocity.Clone(),
		Consistency:          m.Consistency.Clone(),
		ConversionEfficiency: m.ConversionEfficiency.Clone(),
		Focus:                m.Focus.Clone(),
		OverallMomentum:      m.OverallMomentum.Clone(),
	}
}

// Complete reports whether all seven scorecards are present.
func (m *MomentumSnapshot) Complete() bool {
	return m != nil && m.Activity != nil && m.Quality != nil && m.Velocity != nil &&
		m.Consistency != nil && m.ConversionEfficiency != nil && m.Focus != nil && m.OverallMomentum != nil
}
