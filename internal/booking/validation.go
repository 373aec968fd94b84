package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Issue codes.
const (
	CodeRequired        = "required"
	CodeInvalid         = "invalid"
	CodeInactiveGroup   = "inactive_group"
	CodeDateUnavailable = "date_unavailable"
	CodeConsentMissing  = "consent_missing"
)

// Issue is one itemized validation problem.
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError blocks a transition. It never changes wizard state.
type ValidationError struct {
	Step   Step
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("booking: step %s is invalid", e.Step)
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Field+": "+is.Message)
	}
	return fmt.Sprintf("booking: step %s is invalid: %s", e.Step, strings.Join(parts, "; "))
}

// Fields returns the distinct field names that have issues.
func (e *ValidationError) Fields() []string {
	var out []string
	for _, is := range e.Issues {
		out = append(out, is.Field)
	}
	return dedupe(out)
}

// IsValidationError unwraps err into a *ValidationError.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

var validate = validator.New()

// ValidateStep lists what is missing or wrong for step given data. It is a
// pure function of its inputs and the calendar's clock.
func ValidateStep(cal Calendar, step Step, data FormData) []Issue {
	switch step {
	case StepService:
		if !data.ServiceType.Valid() {
			return []Issue{{Field: "serviceType", Code: CodeRequired, Message: "select a service"}}
		}
		return nil
	case StepPersonal:
		return validatePersonal(data)
	case StepDetails:
		return validateDetails(cal, data)
	case StepConfirm:
		var issues []Issue
		for _, c := range missingConsents(data) {
			issues = append(issues, Issue{Field: c.field, Code: CodeConsentMissing, Message: c.document + " must be accepted"})
		}
		return issues
	}
	return []Issue{{Field: "step", Code: CodeInvalid, Message: "unknown step"}}
}

// IsStepValid reports whether ValidateStep finds nothing.
func IsStepValid(cal Calendar, step Step, data FormData) bool {
	return len(ValidateStep(cal, step, data)) == 0
}

func validatePersonal(data FormData) []Issue {
	var issues []Issue
	required := func(field, value string) bool {
		if strings.TrimSpace(value) == "" {
			issues = append(issues, Issue{Field: field, Code: CodeRequired, Message: field + " is required"})
			return false
		}
		return true
	}
	required("name", data.Name)
	if required("email", data.Email) {
		if err := validate.Var(strings.TrimSpace(data.Email), "email"); err != nil {
			issues = append(issues, Issue{Field: "email", Code: CodeInvalid, Message: "email address is not valid"})
		}
	}
	required("phone", data.Phone)
	return issues
}

func validateDetails(cal Calendar, data FormData) []Issue {
	var issues []Issue
	required := func(field string, set bool) {
		if !set {
			issues = append(issues, Issue{Field: field, Code: CodeRequired, Message: field + " is required"})
		}
	}
	invalid := func(field string, value string, ok bool) {
		if value != "" && !ok {
			issues = append(issues, Issue{Field: field, Code: CodeInvalid, Message: "unsupported value " + quote(value)})
		}
	}

	svc := data.ServiceType
	switch svc {
	case ServiceLiveSinging:
		required("eventType", data.EventType != "")
		invalid("eventType", string(data.EventType), oneOf(data.EventType, EventTypes))
		required("eventDate", data.EventDate != "")
		issues = append(issues, cal.checkDate("eventDate", svc, data.EventDate)...)
		invalid("guestCount", string(data.GuestCount), oneOf(data.GuestCount, GuestCounts))
		invalid("performanceType", string(data.PerformanceType), oneOf(data.PerformanceType, PerformanceTypes))
	case ServiceVocalCoaching:
		required("sessionType", data.SessionType != "")
		invalid("sessionType", string(data.SessionType), oneOf(data.SessionType, SessionTypes))
		required("skillLevel", data.SkillLevel != "")
		invalid("skillLevel", string(data.SkillLevel), oneOf(data.SkillLevel, SkillLevels))
		issues = append(issues, cal.checkDate("preferredDate", svc, data.PreferredDate)...)
		if data.PreferredTime != "" && !validTimeOfDay(data.PreferredTime) {
			issues = append(issues, Issue{Field: "preferredTime", Code: CodeInvalid, Message: "expected HH:MM"})
		}
	case ServiceWorkshop:
		required("workshopTheme", data.WorkshopTheme != "")
		invalid("workshopTheme", string(data.WorkshopTheme), oneOf(data.WorkshopTheme, WorkshopThemes))
		required("groupSize", data.GroupSize != "")
		invalid("groupSize", string(data.GroupSize), oneOf(data.GroupSize, GroupSizes))
		invalid("workshopDuration", string(data.WorkshopDuration), oneOf(data.WorkshopDuration, WorkshopDurations))
		for _, d := range data.PreferredDates {
			issues = append(issues, cal.checkDate("preferredDates", svc, d)...)
		}
	default:
		issues = append(issues, Issue{Field: "serviceType", Code: CodeRequired, Message: "select a service"})
	}
	return issues
}

type consent struct {
	field    string
	document string
}

func missingConsents(data FormData) []consent {
	var out []consent
	if !data.TermsAccepted {
		out = append(out, consent{field: "termsAccepted", document: "AGB"})
	}
	if !data.PrivacyAccepted {
		out = append(out, consent{field: "privacyAccepted", document: "Datenschutzerklärung"})
	}
	return out
}

func describeService(s ServiceType) string {
	if s == ServiceNone {
		return "no service"
	}
	return string(s)
}
