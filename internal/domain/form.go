package domain

import (
	"strings"
	"time"
)

// ============================================================
// Deal Form (create / edit)
// ============================================================

// Defaults applied to a new deal form.
const (
	DefaultFormMomentum = 50
	DefaultRepID        = "rep1"
)

// DealForm is the editable field set submitted by the presentation layer.
type DealForm struct {
	Name      string       `json:"name"`
	Company   string       `json:"company"`
	Value     float64      `json:"value"`
	Stage     Stage        `json:"stage"`
	CloseDate string       `json:"closeDate"`
	Momentum  *int         `json:"momentum,omitempty"`
	RepName   string       `json:"repName"`
	Urgency   Urgency      `json:"urgency"`
	Signals   []DealSignal `json:"signals"`
}

// NewDealForm returns the defaults of an empty create form.
func NewDealForm() DealForm {
	m := DefaultFormMomentum
	return DealForm{
		Stage:    StageFirstContact,
		Urgency:  UrgencyWatch,
		Momentum: &m,
		Signals:  []DealSignal{},
	}
}

// FormFromDeal pre-populates a form with the deal's current values.
func FormFromDeal(d Deal) DealForm {
	m := d.Momentum
	return DealForm{
		Name:      d.Name,
		Company:   d.Company,
		Value:     d.Value,
		Stage:     d.Stage,
		CloseDate: d.CloseDate,
		Momentum:  &m,
		RepName:   d.RepName,
		Urgency:   d.Urgency,
		Signals:   append([]DealSignal{}, d.Signals...),
	}
}

// Validate returns *ErrFormInvalid listing every field problem, or nil.
func (f DealForm) Validate() error {
	errs := make(map[string]string)

	if strings.TrimSpace(f.Name) == "" {
		errs["name"] = "Client name is required"
	}
	if strings.TrimSpace(f.Company) == "" {
		errs["company"] = "Company name is required"
	}
	if f.Value <= 0 {
		errs["value"] = "Deal value must be greater than 0"
	}
	if strings.TrimSpace(f.CloseDate) == "" {
		errs["closeDate"] = "Close date is required"
	} else if _, err := time.Parse(CloseDateLayout, f.CloseDate); err != nil {
		errs["closeDate"] = "Close date must be YYYY-MM-DD"
	}
	if strings.TrimSpace(f.RepName) == "" {
		errs["repName"] = "Representative name is required"
	}
	if f.Stage != "" && !f.Stage.Valid() {
		errs["stage"] = "Unknown stage"
	}
	if f.Urgency != "" && !f.Urgency.Valid() {
		errs["urgency"] = "Unknown urgency"
	}
	if f.Momentum != nil && (*f.Momentum < 0 || *f.Momentum > 100) {
		errs["momentum"] = "Momentum must be between 0 and 100"
	}

	if len(errs) > 0 {
		return &ErrFormInvalid{Fields: errs}
	}
	return nil
}

// Build turns a validated form into a Deal. base carries the identity
// (id, rep id) of the record being edited, or the fresh id of a new one.
func (f DealForm) Build(base Deal, now time.Time) Deal {
	d := base.Clone()
	d.Name = strings.TrimSpace(f.Name)
	d.Company = strings.TrimSpace(f.Company)
	d.Value = f.Value
	d.Stage = f.Stage
	if d.Stage == "" {
		d.Stage = StageFirstContact
	}
	d.CloseDate = f.CloseDate
	d.Momentum = DefaultFormMomentum
	if f.Momentum != nil {
		d.Momentum = *f.Momentum
	}
	d.RepName = strings.TrimSpace(f.RepName)
	if d.RepID == "" {
		d.RepID = DefaultRepID
	}
	d.Urgency = f.Urgency
	if d.Urgency == "" {
		d.Urgency = UrgencyWatch
	}
	d.Signals = append([]DealSignal{}, f.Signals...)
	d.LastActivity = now
	return d
}
