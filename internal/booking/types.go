// Package booking implements the booking wizard: the step state machine,
// per-service field sets, validation, the confirmation summary and the
// payload handed to the booking backend. It performs no I/O.
package booking

import (
	"fmt"
	"slices"
)

// ServiceType selects which field set and validation rules apply.
type ServiceType string

const (
	ServiceNone          ServiceType = ""
	ServiceLiveSinging   ServiceType = "live-singing"
	ServiceVocalCoaching ServiceType = "vocal-coaching"
	ServiceWorkshop      ServiceType = "workshop"
)

// ServiceTypes lists the bookable services in display order.
var ServiceTypes = []ServiceType{ServiceLiveSinging, ServiceVocalCoaching, ServiceWorkshop}

// Valid reports whether s is one of the bookable services.
func (s ServiceType) Valid() bool {
	return slices.Contains(ServiceTypes, s)
}

// ParseServiceType accepts the canonical value plus a few aliases used by
// older deep links.
func ParseServiceType(raw string) (ServiceType, bool) {
	switch raw {
	case "live-singing", "live", "liveSinging", "LiveSinging":
		return ServiceLiveSinging, true
	case "vocal-coaching", "coaching", "vocalCoaching", "VocalCoaching":
		return ServiceVocalCoaching, true
	case "workshop", "workshops", "Workshop":
		return ServiceWorkshop, true
	}
	return ServiceNone, false
}

// Step is a wizard page. Steps are ordered and traversed one at a time.
type Step int

const (
	StepService Step = iota
	StepPersonal
	StepDetails
	StepConfirm
)

// Steps lists every step in traversal order.
var Steps = []Step{StepService, StepPersonal, StepDetails, StepConfirm}

func (s Step) String() string {
	switch s {
	case StepService:
		return "service"
	case StepPersonal:
		return "personal"
	case StepDetails:
		return "details"
	case StepConfirm:
		return "confirm"
	}
	return "unknown"
}

// ParseStep is the inverse of Step.String.
func ParseStep(raw string) (Step, bool) {
	for _, s := range Steps {
		if s.String() == raw {
			return s, true
		}
	}
	return StepService, false
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	step, ok := ParseStep(string(text))
	if !ok {
		return fmt.Errorf("booking: unknown step %q", text)
	}
	*s = step
	return nil
}

// Status tracks the submission lifecycle on top of the step position.
type Status string

const (
	StatusEditing    Status = "editing"
	StatusSubmitting Status = "submitting"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

type EventType string

const (
	EventWedding   EventType = "wedding"
	EventCorporate EventType = "corporate"
	EventPrivate   EventType = "private"
	EventOther     EventType = "other"
)

var EventTypes = []EventType{EventWedding, EventCorporate, EventPrivate, EventOther}

type GuestCount string

var GuestCounts = []GuestCount{"1-50", "51-100", "101-200", "200+"}

type PerformanceType string

const (
	PerformanceSolo PerformanceType = "solo"
	PerformanceBand PerformanceType = "band"
)

var PerformanceTypes = []PerformanceType{PerformanceSolo, PerformanceBand}

type SessionType string

const (
	SessionOneOnOne SessionType = "1:1"
	SessionGroup    SessionType = "group"
	SessionOnline   SessionType = "online"
)

var SessionTypes = []SessionType{SessionOneOnOne, SessionGroup, SessionOnline}

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
)

var SkillLevels = []SkillLevel{SkillBeginner, SkillIntermediate, SkillAdvanced}

type WorkshopTheme string

const (
	ThemeJazzImprov  WorkshopTheme = "jazz-improv"
	ThemeVocalHealth WorkshopTheme = "vocal-health"
	ThemePerformance WorkshopTheme = "performance"
)

var WorkshopThemes = []WorkshopTheme{ThemeJazzImprov, ThemeVocalHealth, ThemePerformance}

type GroupSize string

var GroupSizes = []GroupSize{"2-5", "6-10", "11-20", "20+"}

type WorkshopDuration string

const (
	DurationTwoHours  WorkshopDuration = "2h"
	DurationFourHours WorkshopDuration = "4h"
	DurationFullDay   WorkshopDuration = "full-day"
	DurationMultiDay  WorkshopDuration = "multi-day"
)

var WorkshopDurations = []WorkshopDuration{DurationTwoHours, DurationFourHours, DurationFullDay, DurationMultiDay}

// MusicPreferenceOptions and FocusAreaOptions are the multi-select choices.
var (
	MusicPreferenceOptions = []string{"jazz", "swing", "soul", "pop", "bossa-nova", "blues", "latin"}
	FocusAreaOptions       = []string{"breathing", "technique", "improvisation", "repertoire", "stage-presence", "vocal-health"}
)

// MaxPreferredDates caps the workshop date selection.
const MaxPreferredDates = 5

// MultiField names a set-valued field that supports Toggle.
type MultiField string

const (
	FieldMusicPreferences MultiField = "musicPreferences"
	FieldFocusArea        MultiField = "focusArea"
	FieldPreferredDates   MultiField = "preferredDates"
)

// owner returns the service group a multi-select field belongs to.
func (f MultiField) owner() ServiceType {
	switch f {
	case FieldMusicPreferences:
		return ServiceLiveSinging
	case FieldFocusArea:
		return ServiceVocalCoaching
	case FieldPreferredDates:
		return ServiceWorkshop
	}
	return ServiceNone
}

func oneOf[T ~string](v T, set []T) bool {
	return slices.Contains(set, v)
}
