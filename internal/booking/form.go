package booking

import (
	"slices"
	"strings"
)

// FormData is the single record collected by the wizard. Only the field
// group that matches ServiceType is considered by validation, the summary
// and the payload.
type FormData struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`

	ServiceType ServiceType `json:"serviceType,omitempty"`

	// Live singing
	EventType        EventType       `json:"eventType,omitempty"`
	EventDate        string          `json:"eventDate,omitempty"`
	GuestCount       GuestCount      `json:"guestCount,omitempty"`
	MusicPreferences []string        `json:"musicPreferences,omitempty"`
	JazzStandards    string          `json:"jazzStandards,omitempty"`
	PerformanceType  PerformanceType `json:"performanceType,omitempty"`

	// Vocal coaching
	SessionType   SessionType `json:"sessionType,omitempty"`
	SkillLevel    SkillLevel  `json:"skillLevel,omitempty"`
	FocusArea     []string    `json:"focusArea,omitempty"`
	PreferredDate string      `json:"preferredDate,omitempty"`
	PreferredTime string      `json:"preferredTime,omitempty"`

	// Workshop
	WorkshopTheme    WorkshopTheme    `json:"workshopTheme,omitempty"`
	GroupSize        GroupSize        `json:"groupSize,omitempty"`
	PreferredDates   []string         `json:"preferredDates,omitempty"`
	WorkshopDuration WorkshopDuration `json:"workshopDuration,omitempty"`

	TermsAccepted   bool `json:"termsAccepted"`
	PrivacyAccepted bool `json:"privacyAccepted"`
}

// Clone returns a deep copy.
func (d FormData) Clone() FormData {
	d.MusicPreferences = slices.Clone(d.MusicPreferences)
	d.FocusArea = slices.Clone(d.FocusArea)
	d.PreferredDates = slices.Clone(d.PreferredDates)
	return d
}

func (d *FormData) clearLiveSinging() {
	d.EventType = ""
	d.EventDate = ""
	d.GuestCount = ""
	d.MusicPreferences = nil
	d.JazzStandards = ""
	d.PerformanceType = ""
}

func (d *FormData) clearVocalCoaching() {
	d.SessionType = ""
	d.SkillLevel = ""
	d.FocusArea = nil
	d.PreferredDate = ""
	d.PreferredTime = ""
}

func (d *FormData) clearWorkshop() {
	d.WorkshopTheme = ""
	d.GroupSize = ""
	d.PreferredDates = nil
	d.WorkshopDuration = ""
}

// clearInactive drops every service group except the one for keep.
func (d *FormData) clearInactive(keep ServiceType) {
	if keep != ServiceLiveSinging {
		d.clearLiveSinging()
	}
	if keep != ServiceVocalCoaching {
		d.clearVocalCoaching()
	}
	if keep != ServiceWorkshop {
		d.clearWorkshop()
	}
}

// Patch is a partial FormData. Nil fields are left untouched when merged.
// Slices replace the stored value wholesale.
type Patch struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Message *string `json:"message,omitempty"`

	EventType        *EventType       `json:"eventType,omitempty"`
	EventDate        *string          `json:"eventDate,omitempty"`
	GuestCount       *GuestCount      `json:"guestCount,omitempty"`
	MusicPreferences []string         `json:"musicPreferences,omitempty"`
	JazzStandards    *string          `json:"jazzStandards,omitempty"`
	PerformanceType  *PerformanceType `json:"performanceType,omitempty"`

	SessionType   *SessionType `json:"sessionType,omitempty"`
	SkillLevel    *SkillLevel  `json:"skillLevel,omitempty"`
	FocusArea     []string     `json:"focusArea,omitempty"`
	PreferredDate *string      `json:"preferredDate,omitempty"`
	PreferredTime *string      `json:"preferredTime,omitempty"`

	WorkshopTheme    *WorkshopTheme    `json:"workshopTheme,omitempty"`
	GroupSize        *GroupSize        `json:"groupSize,omitempty"`
	PreferredDates   []string          `json:"preferredDates,omitempty"`
	WorkshopDuration *WorkshopDuration `json:"workshopDuration,omitempty"`

	TermsAccepted   *bool `json:"termsAccepted,omitempty"`
	PrivacyAccepted *bool `json:"privacyAccepted,omitempty"`
}

func (p Patch) touchesLiveSinging() bool {
	return p.EventType != nil || p.EventDate != nil || p.GuestCount != nil ||
		p.MusicPreferences != nil || p.JazzStandards != nil || p.PerformanceType != nil
}

func (p Patch) touchesVocalCoaching() bool {
	return p.SessionType != nil || p.SkillLevel != nil || p.FocusArea != nil ||
		p.PreferredDate != nil || p.PreferredTime != nil
}

func (p Patch) touchesWorkshop() bool {
	return p.WorkshopTheme != nil || p.GroupSize != nil || p.PreferredDates != nil ||
		p.WorkshopDuration != nil
}

// validate checks the patch against the active service and the value sets.
// Empty strings are allowed for every optional or enum field and mean
// "cleared".
func (p Patch) validate(active ServiceType, cal Calendar) []Issue {
	var issues []Issue
	foreign := func(group ServiceType, touched bool) {
		if touched && group != active {
			issues = append(issues, Issue{
				Field:   "serviceType",
				Code:    CodeInactiveGroup,
				Message: "fields for " + string(group) + " cannot be set while " + describeService(active) + " is selected",
			})
		}
	}
	foreign(ServiceLiveSinging, p.touchesLiveSinging())
	foreign(ServiceVocalCoaching, p.touchesVocalCoaching())
	foreign(ServiceWorkshop, p.touchesWorkshop())
	if len(issues) > 0 {
		return issues
	}

	enum := func(field string, value string, ok bool) {
		if value != "" && !ok {
			issues = append(issues, Issue{Field: field, Code: CodeInvalid, Message: "unsupported value " + quote(value)})
		}
	}
	if p.EventType != nil {
		enum("eventType", string(*p.EventType), oneOf(*p.EventType, EventTypes))
	}
	if p.GuestCount != nil {
		enum("guestCount", string(*p.GuestCount), oneOf(*p.GuestCount, GuestCounts))
	}
	if p.PerformanceType != nil {
		enum("performanceType", string(*p.PerformanceType), oneOf(*p.PerformanceType, PerformanceTypes))
	}
	if p.SessionType != nil {
		enum("sessionType", string(*p.SessionType), oneOf(*p.SessionType, SessionTypes))
	}
	if p.SkillLevel != nil {
		enum("skillLevel", string(*p.SkillLevel), oneOf(*p.SkillLevel, SkillLevels))
	}
	if p.WorkshopTheme != nil {
		enum("workshopTheme", string(*p.WorkshopTheme), oneOf(*p.WorkshopTheme, WorkshopThemes))
	}
	if p.GroupSize != nil {
		enum("groupSize", string(*p.GroupSize), oneOf(*p.GroupSize, GroupSizes))
	}
	if p.WorkshopDuration != nil {
		enum("workshopDuration", string(*p.WorkshopDuration), oneOf(*p.WorkshopDuration, WorkshopDurations))
	}
	for _, v := range p.MusicPreferences {
		enum("musicPreferences", v, slices.Contains(MusicPreferenceOptions, v))
	}
	for _, v := range p.FocusArea {
		enum("focusArea", v, slices.Contains(FocusAreaOptions, v))
	}

	if p.EventDate != nil {
		issues = append(issues, cal.checkDate("eventDate", active, *p.EventDate)...)
	}
	if p.PreferredDate != nil {
		issues = append(issues, cal.checkDate("preferredDate", active, *p.PreferredDate)...)
	}
	if p.PreferredDates != nil {
		if len(dedupe(p.PreferredDates)) > MaxPreferredDates {
			issues = append(issues, Issue{Field: "preferredDates", Code: CodeInvalid, Message: "too many dates selected"})
		}
		for _, d := range p.PreferredDates {
			if d == "" {
				issues = append(issues, Issue{Field: "preferredDates", Code: CodeInvalid, Message: "empty date"})
				continue
			}
			issues = append(issues, cal.checkDate("preferredDates", active, d)...)
		}
	}
	if p.PreferredTime != nil && *p.PreferredTime != "" && !validTimeOfDay(*p.PreferredTime) {
		issues = append(issues, Issue{Field: "preferredTime", Code: CodeInvalid, Message: "expected HH:MM"})
	}
	return issues
}

// apply merges p into d. Callers validate first.
func (p Patch) apply(d *FormData) {
	setString(&d.Name, p.Name, true)
	setString(&d.Email, p.Email, true)
	setString(&d.Phone, p.Phone, true)
	setString(&d.Message, p.Message, false)

	if p.EventType != nil {
		d.EventType = *p.EventType
	}
	setString(&d.EventDate, p.EventDate, true)
	if p.GuestCount != nil {
		d.GuestCount = *p.GuestCount
	}
	if p.MusicPreferences != nil {
		d.MusicPreferences = dedupe(p.MusicPreferences)
	}
	setString(&d.JazzStandards, p.JazzStandards, false)
	if p.PerformanceType != nil {
		d.PerformanceType = *p.PerformanceType
	}

	if p.SessionType != nil {
		d.SessionType = *p.SessionType
	}
	if p.SkillLevel != nil {
		d.SkillLevel = *p.SkillLevel
	}
	if p.FocusArea != nil {
		d.FocusArea = dedupe(p.FocusArea)
	}
	setString(&d.PreferredDate, p.PreferredDate, true)
	setString(&d.PreferredTime, p.PreferredTime, true)

	if p.WorkshopTheme != nil {
		d.WorkshopTheme = *p.WorkshopTheme
	}
	if p.GroupSize != nil {
		d.GroupSize = *p.GroupSize
	}
	if p.PreferredDates != nil {
		d.PreferredDates = dedupe(p.PreferredDates)
		sortDates(d.PreferredDates)
	}
	if p.WorkshopDuration != nil {
		d.WorkshopDuration = *p.WorkshopDuration
	}

	if p.TermsAccepted != nil {
		d.TermsAccepted = *p.TermsAccepted
	}
	if p.PrivacyAccepted != nil {
		d.PrivacyAccepted = *p.PrivacyAccepted
	}
}

func setString(dst *string, src *string, trim bool) {
	if src == nil {
		return
	}
	if trim {
		*dst = strings.TrimSpace(*src)
		return
	}
	*dst = *src
}

// toggle flips membership of value in set: removes it if present, appends
// it otherwise.
func toggle(set []string, value string) []string {
	if slices.Contains(set, value) {
		return slices.DeleteFunc(slices.Clone(set), func(v string) bool { return v == value })
	}
	return append(slices.Clone(set), value)
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func quote(s string) string {
	return "\"" + s + "\""
}

func containsString(set []string, v string) bool {
	return slices.Contains(set, v)
}

// sortDates orders ISO dates chronologically; lexical order is enough.
func sortDates(dates []string) {
	slices.Sort(dates)
}
