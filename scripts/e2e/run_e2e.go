// Command run_e2e walks the booking wizard against a running API and reports
// pass/fail per scenario.
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run ./scripts/e2e               # runs all
//	API_BASE_URL=http://localhost:8080 go run ./scripts/e2e coaching      # runs one
//	ADMIN_JWT_SECRET=... enables the admin inbox lookup after each booking.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/wolfman30/vocal-booking/internal/booking"
	httpmiddleware "github.com/wolfman30/vocal-booking/internal/http/middleware"
)

const pollInterval = 500 * time.Millisecond

var (
	apiBase    string
	adminToken string
	client     = &http.Client{Timeout: 30 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T collects check results for one scenario.
type T struct {
	name   string
	passed int
	failed int
}

func (t *T) check(name string, ok bool) bool {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
	return ok
}

type view struct {
	ID           string                `json:"id"`
	Step         string                `json:"step"`
	Status       string                `json:"status"`
	CanSubmit    bool                  `json:"canSubmit"`
	LastError    string                `json:"lastError"`
	Confirmation *booking.Confirmation `json:"confirmation"`
}

func call(method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.HasPrefix(path, "/admin/") && adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func callView(t *T, method, path string, body any, wantStatus int) *view {
	status, data, err := call(method, path, body)
	if !t.check(fmt.Sprintf("%s %s -> %d", method, path, wantStatus), err == nil && status == wantStatus) {
		fmt.Printf("      got %d: %s (err=%v)\n", status, strings.TrimSpace(string(data)), err)
		return nil
	}
	var v view
	if err := json.Unmarshal(data, &v); err != nil {
		t.check("decode session view", false)
		return nil
	}
	return &v
}

// nextWeekday returns a date at least a week out that is not a weekend.
func nextWeekday() string {
	d := time.Now().AddDate(0, 0, 7)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format(booking.DateLayout)
}

func personal(name string) map[string]any {
	return map[string]any{
		"name":  name,
		"email": strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		"phone": "+49 170 1234567",
	}
}

func bookFlow(t *T, service string, details map[string]any) {
	v := callView(t, http.MethodPost, "/booking/sessions", map[string]any{"service": service}, http.StatusCreated)
	if v == nil {
		return
	}
	base := "/booking/sessions/" + v.ID
	t.check("deep link skips service step", v.Step == booking.StepPersonal.String())

	if callView(t, http.MethodPatch, base+"/data", personal("Erika Muster"), http.StatusOK) == nil {
		return
	}
	if callView(t, http.MethodPost, base+"/advance", nil, http.StatusOK) == nil {
		return
	}
	if callView(t, http.MethodPatch, base+"/data", details, http.StatusOK) == nil {
		return
	}
	if callView(t, http.MethodPost, base+"/advance", nil, http.StatusOK) == nil {
		return
	}
	v = callView(t, http.MethodPatch, base+"/data", map[string]any{"termsAccepted": true, "privacyAccepted": true}, http.StatusOK)
	if v == nil || !t.check("confirm step can submit", v.CanSubmit) {
		return
	}

	status, summary, err := call(http.MethodGet, base+"/summary?lang=de", nil)
	t.check("summary renders", err == nil && status == http.StatusOK && len(summary) > 0)

	v = callView(t, http.MethodPost, base+"/submit", nil, http.StatusOK)
	deadline := time.Now().Add(30 * time.Second)
	for v != nil && v.Status == string(booking.StatusSubmitting) && time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		v = callView(t, http.MethodGet, base, nil, http.StatusOK)
	}
	if v == nil || !t.check("booking accepted", v.Status == string(booking.StatusDone) && v.Confirmation != nil) {
		if v != nil {
			fmt.Printf("      status=%s lastError=%q\n", v.Status, v.LastError)
		}
		return
	}
	t.check("reference issued", strings.HasPrefix(v.Confirmation.Reference, "VB-"))

	if adminToken != "" {
		status, _, err := call(http.MethodGet, "/admin/bookings/"+v.Confirmation.Reference, nil)
		t.check("booking visible in admin inbox", err == nil && status == http.StatusOK)
	}
}

var scenarios = []scenario{
	{"live-singing", func(t *T) {
		bookFlow(t, "live-singing", map[string]any{
			"eventType":        booking.EventWedding,
			"eventDate":        nextWeekday(),
			"guestCount":       booking.GuestCounts[1],
			"musicPreferences": []string{"jazz", "pop"},
			"performanceType":  booking.PerformanceBand,
		})
	}},
	{"coaching", func(t *T) {
		bookFlow(t, "coaching", map[string]any{
			"sessionType":   booking.SessionOneOnOne,
			"skillLevel":    booking.SkillBeginner,
			"preferredDate": nextWeekday(),
			"preferredTime": "18:00",
		})
	}},
	{"workshop", func(t *T) {
		bookFlow(t, "workshop", map[string]any{
			"workshopTheme":    booking.ThemeJazzImprov,
			"groupSize":        booking.GroupSizes[0],
			"preferredDates":   []string{nextWeekday()},
			"workshopDuration": booking.DurationFourHours,
		})
	}},
	{"validation", func(t *T) {
		v := callView(t, http.MethodPost, "/booking/sessions", nil, http.StatusCreated)
		if v == nil {
			return
		}
		status, _, err := call(http.MethodPost, "/booking/sessions/"+v.ID+"/advance", nil)
		t.check("advance without service is rejected", err == nil && status == http.StatusUnprocessableEntity)
		status, _, err = call(http.MethodDelete, "/booking/sessions/"+v.ID, nil)
		t.check("dismiss session", err == nil && status < 300)
	}},
	{"legal", func(t *T) {
		for _, doc := range []string{"agb", "datenschutz"} {
			status, body, err := call(http.MethodGet, "/legal/"+doc+"?format=fragment", nil)
			t.check("legal document "+doc, err == nil && status == http.StatusOK && bytes.Contains(body, []byte("<h1")))
		}
	}},
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		apiBase = "http://localhost:8080"
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		token, err := httpmiddleware.IssueAdminToken(secret, "e2e", "admin", time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue admin token: %v\n", err)
			os.Exit(2)
		}
		adminToken = token
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	var passed, failed int
	for _, sc := range scenarios {
		if filter != "" && sc.Name != filter {
			continue
		}
		fmt.Printf("=== %s\n", sc.Name)
		t := &T{name: sc.Name}
		sc.Fn(t)
		passed += t.passed
		failed += t.failed
	}
	fmt.Printf("\n%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
