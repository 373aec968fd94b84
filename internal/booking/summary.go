package booking

import (
	"strings"
)

// Lang selects the label language. German is the default.
type Lang string

const (
	LangDE Lang = "de"
	LangEN Lang = "en"
)

// ParseLang maps a query or header value to a supported language.
func ParseLang(raw string) Lang {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return LangEN
	}
	return LangDE
}

type label struct{ de, en string }

func (l label) in(lang Lang) string {
	if lang == LangEN {
		return l.en
	}
	return l.de
}

var valueLabels = map[string]label{
	// services
	string(ServiceLiveSinging):   {"Live-Gesang", "Live Singing"},
	string(ServiceVocalCoaching): {"Gesangscoaching", "Vocal Coaching"},
	string(ServiceWorkshop):      {"Workshop", "Workshop"},

	// event types
	"wedding":   {"Hochzeit", "Wedding"},
	"corporate": {"Firmenveranstaltung", "Corporate Event"},
	"private":   {"Private Feier", "Private Party"},
	"other":     {"Sonstiges", "Other"},

	// performance
	"solo": {"Solo", "Solo"},
	"band": {"Mit Band", "With Band"},

	// session types
	"1:1":    {"Einzelunterricht", "One-on-One"},
	"group":  {"Gruppenunterricht", "Group Session"},
	"online": {"Online", "Online"},

	// skill levels
	"beginner":     {"Anfänger", "Beginner"},
	"intermediate": {"Fortgeschritten", "Intermediate"},
	"advanced":     {"Profi", "Advanced"},

	// workshop themes
	"jazz-improv": {"Jazz-Improvisation", "Jazz Improvisation"},
	"performance": {"Bühnenpräsenz & Performance", "Stage Presence & Performance"},

	// durations
	"2h":        {"2 Stunden", "2 hours"},
	"4h":        {"4 Stunden", "4 hours"},
	"full-day":  {"Ganztägig", "Full day"},
	"multi-day": {"Mehrtägig", "Multiple days"},

	// music preferences
	"jazz":       {"Jazz", "Jazz"},
	"swing":      {"Swing", "Swing"},
	"soul":       {"Soul", "Soul"},
	"pop":        {"Pop", "Pop"},
	"bossa-nova": {"Bossa Nova", "Bossa Nova"},
	"blues":      {"Blues", "Blues"},
	"latin":      {"Latin", "Latin"},

	// focus areas; vocal-health doubles as a workshop theme
	"breathing":      {"Atemtechnik", "Breathing"},
	"technique":      {"Gesangstechnik", "Technique"},
	"improvisation":  {"Improvisation", "Improvisation"},
	"repertoire":     {"Repertoire", "Repertoire"},
	"stage-presence": {"Bühnenpräsenz", "Stage Presence"},
	"vocal-health":   {"Stimmgesundheit", "Vocal Health"},
}

var fieldLabels = map[string]label{
	"name":             {"Name", "Name"},
	"email":            {"E-Mail", "Email"},
	"phone":            {"Telefon", "Phone"},
	"message":          {"Nachricht", "Message"},
	"serviceType":      {"Leistung", "Service"},
	"eventType":        {"Art der Veranstaltung", "Event type"},
	"eventDate":        {"Datum der Veranstaltung", "Event date"},
	"guestCount":       {"Anzahl der Gäste", "Number of guests"},
	"musicPreferences": {"Musikrichtungen", "Music preferences"},
	"jazzStandards":    {"Wunschtitel", "Requested standards"},
	"performanceType":  {"Besetzung", "Performance type"},
	"sessionType":      {"Unterrichtsform", "Session type"},
	"skillLevel":       {"Erfahrung", "Skill level"},
	"focusArea":        {"Schwerpunkte", "Focus areas"},
	"preferredDate":    {"Wunschtermin", "Preferred date"},
	"preferredTime":    {"Uhrzeit", "Preferred time"},
	"workshopTheme":    {"Workshop-Thema", "Workshop theme"},
	"groupSize":        {"Gruppengröße", "Group size"},
	"preferredDates":   {"Wunschtermine", "Preferred dates"},
	"workshopDuration": {"Dauer", "Duration"},
}

var consentLabels = map[string]label{
	"termsAccepted":   {"AGB", "Terms and Conditions (AGB)"},
	"privacyAccepted": {"Datenschutzerklärung", "Privacy Policy (Datenschutzerklärung)"},
}

// ValueLabel returns the human label of an enum or option value, or the raw
// value when none is known.
func ValueLabel(value string, lang Lang) string {
	if l, ok := valueLabels[value]; ok {
		return l.in(lang)
	}
	return value
}

// FieldLabel returns the human label of a form field.
func FieldLabel(field string, lang Lang) string {
	if l, ok := fieldLabels[field]; ok {
		return l.in(lang)
	}
	return field
}

// SummaryItem is one labelled row of the confirmation view.
type SummaryItem struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Summary is the read-only confirmation view of a draft.
type Summary struct {
	ServiceType     ServiceType   `json:"serviceType"`
	Service         string        `json:"service"`
	Contact         []SummaryItem `json:"contact"`
	Details         []SummaryItem `json:"details"`
	MissingConsents []string      `json:"missingConsents"`
}

// Summarize derives the confirmation view from data. Only the active
// service group is shown and empty optional fields are omitted.
func Summarize(data FormData, lang Lang) Summary {
	s := Summary{
		ServiceType:     data.ServiceType,
		MissingConsents: MissingConsents(data, lang),
	}
	if data.ServiceType != ServiceNone {
		s.Service = ValueLabel(string(data.ServiceType), lang)
	}

	add := func(dst *[]SummaryItem, field, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		*dst = append(*dst, SummaryItem{Field: field, Label: FieldLabel(field, lang), Value: value})
	}
	enum := func(field, value string) {
		add(&s.Details, field, ValueLabel(value, lang))
	}
	list := func(field string, values []string, labelled bool) {
		out := make([]string, 0, len(values))
		for _, v := range values {
			if labelled {
				v = ValueLabel(v, lang)
			}
			out = append(out, v)
		}
		add(&s.Details, field, strings.Join(out, ", "))
	}

	add(&s.Contact, "name", data.Name)
	add(&s.Contact, "email", data.Email)
	add(&s.Contact, "phone", data.Phone)
	add(&s.Contact, "message", data.Message)

	switch data.ServiceType {
	case ServiceLiveSinging:
		enum("eventType", string(data.EventType))
		add(&s.Details, "eventDate", data.EventDate)
		add(&s.Details, "guestCount", string(data.GuestCount))
		list("musicPreferences", data.MusicPreferences, true)
		add(&s.Details, "jazzStandards", data.JazzStandards)
		enum("performanceType", string(data.PerformanceType))
	case ServiceVocalCoaching:
		enum("sessionType", string(data.SessionType))
		enum("skillLevel", string(data.SkillLevel))
		list("focusArea", data.FocusArea, true)
		add(&s.Details, "preferredDate", data.PreferredDate)
		add(&s.Details, "preferredTime", data.PreferredTime)
	case ServiceWorkshop:
		enum("workshopTheme", string(data.WorkshopTheme))
		add(&s.Details, "groupSize", string(data.GroupSize))
		list("preferredDates", data.PreferredDates, false)
		enum("workshopDuration", string(data.WorkshopDuration))
	}
	return s
}

// MissingConsents names each legal document whose consent flag is unset.
func MissingConsents(data FormData, lang Lang) []string {
	var out []string
	for _, c := range missingConsents(data) {
		out = append(out, consentLabels[c.field].in(lang))
	}
	return out
}
