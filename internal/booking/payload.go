package booking

import (
	"time"
)

// Contact groups the common personal fields in the payload.
type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Payload is the transport object handed to the booking backend. Fields of
// the active service are flattened at the root; every other service's
// fields are left empty and omitted from JSON.
type Payload struct {
	ServiceType ServiceType `json:"service_type"`
	Contact     Contact     `json:"contact"`

	EventType        EventType       `json:"event_type,omitempty"`
	EventDate        string          `json:"event_date,omitempty"`
	GuestCount       GuestCount      `json:"guest_count,omitempty"`
	MusicPreferences []string        `json:"music_preferences,omitempty"`
	JazzStandards    string          `json:"jazz_standards,omitempty"`
	PerformanceType  PerformanceType `json:"performance_type,omitempty"`

	SessionType   SessionType `json:"session_type,omitempty"`
	SkillLevel    SkillLevel  `json:"skill_level,omitempty"`
	FocusArea     []string    `json:"focus_area,omitempty"`
	PreferredDate string      `json:"preferred_date,omitempty"`
	PreferredTime string      `json:"preferred_time,omitempty"`

	WorkshopTheme    WorkshopTheme    `json:"workshop_theme,omitempty"`
	GroupSize        GroupSize        `json:"group_size,omitempty"`
	PreferredDates   []string         `json:"preferred_dates,omitempty"`
	WorkshopDuration WorkshopDuration `json:"workshop_duration,omitempty"`

	TermsAccepted   bool      `json:"terms_accepted"`
	PrivacyAccepted bool      `json:"privacy_accepted"`
	Timestamp       time.Time `json:"timestamp"`
}

// BuildPayload assembles the transport object from data. It does not
// validate; BeginSubmit does that first.
func BuildPayload(data FormData, now time.Time) Payload {
	data = data.Clone()
	data.clearInactive(data.ServiceType)
	return Payload{
		ServiceType: data.ServiceType,
		Contact: Contact{
			Name:    data.Name,
			Email:   data.Email,
			Phone:   data.Phone,
			Message: data.Message,
		},
		EventType:        data.EventType,
		EventDate:        data.EventDate,
		GuestCount:       data.GuestCount,
		MusicPreferences: data.MusicPreferences,
		JazzStandards:    data.JazzStandards,
		PerformanceType:  data.PerformanceType,
		SessionType:      data.SessionType,
		SkillLevel:       data.SkillLevel,
		FocusArea:        data.FocusArea,
		PreferredDate:    data.PreferredDate,
		PreferredTime:    data.PreferredTime,
		WorkshopTheme:    data.WorkshopTheme,
		GroupSize:        data.GroupSize,
		PreferredDates:   data.PreferredDates,
		WorkshopDuration: data.WorkshopDuration,
		TermsAccepted:    data.TermsAccepted,
		PrivacyAccepted:  data.PrivacyAccepted,
		Timestamp:        now.UTC(),
	}
}

// FormData converts the payload back into the draft record it came from.
func (p Payload) FormData() FormData {
	return FormData{
		Name:             p.Contact.Name,
		Email:            p.Contact.Email,
		Phone:            p.Contact.Phone,
		Message:          p.Contact.Message,
		ServiceType:      p.ServiceType,
		EventType:        p.EventType,
		EventDate:        p.EventDate,
		GuestCount:       p.GuestCount,
		MusicPreferences: p.MusicPreferences,
		JazzStandards:    p.JazzStandards,
		PerformanceType:  p.PerformanceType,
		SessionType:      p.SessionType,
		SkillLevel:       p.SkillLevel,
		FocusArea:        p.FocusArea,
		PreferredDate:    p.PreferredDate,
		PreferredTime:    p.PreferredTime,
		WorkshopTheme:    p.WorkshopTheme,
		GroupSize:        p.GroupSize,
		PreferredDates:   p.PreferredDates,
		WorkshopDuration: p.WorkshopDuration,
		TermsAccepted:    p.TermsAccepted,
		PrivacyAccepted:  p.PrivacyAccepted,
	}
}

// Dates returns every calendar day the booking asks for, in order.
func (p Payload) Dates() []string {
	switch p.ServiceType {
	case ServiceLiveSinging:
		if p.EventDate != "" {
			return []string{p.EventDate}
		}
	case ServiceVocalCoaching:
		if p.PreferredDate != "" {
			return []string{p.PreferredDate}
		}
	case ServiceWorkshop:
		return append([]string(nil), p.PreferredDates...)
	}
	return nil
}
