package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSubmitting is returned for mutations while a submission is in flight.
	ErrSubmitting = errors.New("booking: submission in progress")
	// ErrCompleted is returned for mutations after a successful submission.
	ErrCompleted = errors.New("booking: booking already submitted")
	// ErrLastStep is returned by Advance on the confirm step.
	ErrLastStep = errors.New("booking: already at the last step")
	// ErrNotSubmitting is returned when a submission outcome arrives for a
	// wizard that is not submitting.
	ErrNotSubmitting = errors.New("booking: no submission in progress")
	// ErrNotAtConfirm is returned by BeginSubmit before the confirm step.
	ErrNotAtConfirm = errors.New("booking: submission is only possible from the confirm step")
)

// Wizard is the booking state machine. It owns the draft and the step
// position; every transition is synchronous and pure. A Wizard is not safe
// for concurrent use.
type Wizard struct {
	Step         Step          `json:"step"`
	Status       Status        `json:"status"`
	Data         FormData      `json:"data"`
	LastError    string        `json:"lastError,omitempty"`
	Confirmation *Confirmation `json:"confirmation,omitempty"`

	cal Calendar
}

// NewWizard starts an empty wizard on the service step.
func NewWizard(cal Calendar) *Wizard {
	return &Wizard{Step: StepService, Status: StatusEditing, cal: cal}
}

// NewWizardForService starts a wizard with svc preselected, on the personal
// step. This is the only way to skip a step.
func NewWizardForService(cal Calendar, svc ServiceType) (*Wizard, error) {
	w := NewWizard(cal)
	if !svc.Valid() {
		return nil, &ValidationError{Step: StepService, Issues: []Issue{
			{Field: "serviceType", Code: CodeInvalid, Message: "unsupported value " + quote(string(svc))},
		}}
	}
	w.Data.ServiceType = svc
	w.Step = StepPersonal
	return w, nil
}

// SetCalendar replaces the calendar, e.g. after the wizard was loaded from
// a session store.
func (w *Wizard) SetCalendar(cal Calendar) { w.cal = cal }

// Calendar returns the calendar used for date checks.
func (w *Wizard) Calendar() Calendar { return w.cal }

// Clone returns a deep copy.
func (w *Wizard) Clone() *Wizard {
	c := *w
	c.Data = w.Data.Clone()
	if w.Confirmation != nil {
		conf := *w.Confirmation
		c.Confirmation = &conf
	}
	return &c
}

// blocked rejects edits during or after a submission.
func (w *Wizard) blocked() error {
	switch w.Status {
	case StatusSubmitting:
		return ErrSubmitting
	case StatusDone:
		return ErrCompleted
	}
	return nil
}

// resume drops a failed submission back to editing once the draft changes.
func (w *Wizard) resume() {
	if w.Status == StatusFailed {
		w.Status = StatusEditing
		w.LastError = ""
	}
}

// IsStepValid reports whether step is complete for the current draft.
func (w *Wizard) IsStepValid(step Step) bool {
	return IsStepValid(w.cal, step, w.Data)
}

// ValidateStep lists the problems with step for the current draft.
func (w *Wizard) ValidateStep(step Step) []Issue {
	return ValidateStep(w.cal, step, w.Data)
}

// SelectService sets the service. Switching to a different service clears
// the fields of every other service; reselecting keeps them.
func (w *Wizard) SelectService(svc ServiceType) error {
	if err := w.blocked(); err != nil {
		return err
	}
	if !svc.Valid() {
		return &ValidationError{Step: w.Step, Issues: []Issue{
			{Field: "serviceType", Code: CodeInvalid, Message: "unsupported value " + quote(string(svc))},
		}}
	}
	w.resume()
	if svc != w.Data.ServiceType {
		w.Data.clearInactive(svc)
		w.Data.ServiceType = svc
	}
	return nil
}

// Advance moves one step forward if the current step is valid. On failure
// the wizard is unchanged.
func (w *Wizard) Advance() error {
	if err := w.blocked(); err != nil {
		return err
	}
	if w.Step >= StepConfirm {
		return ErrLastStep
	}
	if issues := w.ValidateStep(w.Step); len(issues) > 0 {
		return &ValidationError{Step: w.Step, Issues: issues}
	}
	w.resume()
	w.Step++
	return nil
}

// Retreat moves one step back. It is a no-op on the first step.
func (w *Wizard) Retreat() error {
	if err := w.blocked(); err != nil {
		return err
	}
	w.resume()
	if w.Step > StepService {
		w.Step--
	}
	return nil
}

// Update merges p into the draft, last write wins. Invalid patches are
// rejected as a whole.
func (w *Wizard) Update(p Patch) error {
	if err := w.blocked(); err != nil {
		return err
	}
	if issues := p.validate(w.Data.ServiceType, w.cal); len(issues) > 0 {
		return &ValidationError{Step: w.Step, Issues: issues}
	}
	w.resume()
	p.apply(&w.Data)
	return nil
}

// Toggle adds value to a multi-select field, or removes it if present.
// Toggling the same value twice restores the original contents.
func (w *Wizard) Toggle(field MultiField, value string) error {
	if err := w.blocked(); err != nil {
		return err
	}
	if issues := w.checkToggle(field, value); len(issues) > 0 {
		return &ValidationError{Step: w.Step, Issues: issues}
	}
	w.resume()
	switch field {
	case FieldMusicPreferences:
		w.Data.MusicPreferences = toggle(w.Data.MusicPreferences, value)
	case FieldFocusArea:
		w.Data.FocusArea = toggle(w.Data.FocusArea, value)
	case FieldPreferredDates:
		w.Data.PreferredDates = toggle(w.Data.PreferredDates, value)
		sortDates(w.Data.PreferredDates)
	}
	return nil
}

func (w *Wizard) checkToggle(field MultiField, value string) []Issue {
	owner := field.owner()
	if owner == ServiceNone {
		return []Issue{{Field: string(field), Code: CodeInvalid, Message: "field does not support toggling"}}
	}
	if owner != w.Data.ServiceType {
		return []Issue{{
			Field:   "serviceType",
			Code:    CodeInactiveGroup,
			Message: "fields for " + string(owner) + " cannot be set while " + describeService(w.Data.ServiceType) + " is selected",
		}}
	}
	switch field {
	case FieldMusicPreferences:
		if !containsString(MusicPreferenceOptions, value) {
			return []Issue{{Field: string(field), Code: CodeInvalid, Message: "unsupported value " + quote(value)}}
		}
	case FieldFocusArea:
		if !containsString(FocusAreaOptions, value) {
			return []Issue{{Field: string(field), Code: CodeInvalid, Message: "unsupported value " + quote(value)}}
		}
	case FieldPreferredDates:
		if containsString(w.Data.PreferredDates, value) {
			// removal is always allowed, even for a day that has since passed
			return nil
		}
		if value == "" {
			return []Issue{{Field: string(field), Code: CodeInvalid, Message: "empty date"}}
		}
		if issues := w.cal.checkDate(string(field), ServiceWorkshop, value); len(issues) > 0 {
			return issues
		}
		if len(w.Data.PreferredDates) >= MaxPreferredDates {
			return []Issue{{Field: string(field), Code: CodeInvalid, Message: fmt.Sprintf("at most %d dates can be selected", MaxPreferredDates)}}
		}
	}
	return nil
}

// BeginSubmit checks every step and moves the wizard into the submitting
// state. Incomplete drafts get their itemized issues; a complete draft must
// still have reached the confirm step. The returned payload is what the
// submitter receives.
func (w *Wizard) BeginSubmit(now time.Time) (Payload, error) {
	if err := w.blocked(); err != nil {
		return Payload{}, err
	}
	var (
		issues []Issue
		first  = StepConfirm
	)
	for i := len(Steps) - 1; i >= 0; i-- {
		if found := w.ValidateStep(Steps[i]); len(found) > 0 {
			issues = append(found, issues...)
			first = Steps[i]
		}
	}
	if len(issues) > 0 {
		return Payload{}, &ValidationError{Step: first, Issues: issues}
	}
	if w.Step != StepConfirm {
		return Payload{}, ErrNotAtConfirm
	}
	w.Status = StatusSubmitting
	w.LastError = ""
	return BuildPayload(w.Data, now), nil
}

// CompleteSubmit records the backend's confirmation and discards the draft.
func (w *Wizard) CompleteSubmit(conf Confirmation) error {
	if w.Status != StatusSubmitting {
		return ErrNotSubmitting
	}
	w.Status = StatusDone
	w.Confirmation = &conf
	w.Data = FormData{}
	w.Step = StepConfirm
	w.LastError = ""
	return nil
}

// HonorConfirmation records a confirmation that arrived after the
// submission was aborted or failed. The booking exists on the backend, so it
// wins over whatever the draft went back to.
func (w *Wizard) HonorConfirmation(conf Confirmation) error {
	if w.Status == StatusDone {
		return ErrCompleted
	}
	w.Status = StatusSubmitting
	return w.CompleteSubmit(conf)
}

// FailSubmit records a failed submission. The draft is kept for a retry.
func (w *Wizard) FailSubmit(err error) error {
	if w.Status != StatusSubmitting {
		return ErrNotSubmitting
	}
	w.Status = StatusFailed
	if err != nil {
		w.LastError = err.Error()
	}
	return nil
}

// AbortSubmit returns a cancelled submission to editing on the confirm step.
func (w *Wizard) AbortSubmit() error {
	if w.Status != StatusSubmitting {
		return ErrNotSubmitting
	}
	w.Status = StatusEditing
	w.Step = StepConfirm
	return nil
}

// Reset starts over with an empty draft.
func (w *Wizard) Reset() {
	cal := w.cal
	*w = *NewWizard(cal)
}
