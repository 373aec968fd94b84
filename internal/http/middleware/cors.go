package middleware

import (
	"net/http"
	"strings"
)

// originPolicy matches request origins against CORS_ALLOWED_ORIGINS. Entries
// are exact origins, "*" or a subdomain wildcard such as
// "https://*.gesangsstudio.de".
type originPolicy struct {
	any      bool
	exact    map[string]bool
	suffixes []string // "https://" + ".gesangsstudio.de"
	schemes  []string
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: map[string]bool{}}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			p.any = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*")
			p.schemes = append(p.schemes, scheme+"://")
			p.suffixes = append(p.suffixes, host)
		default:
			p.exact[origin] = true
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any || p.exact[origin] {
		return true
	}
	for i, suffix := range p.suffixes {
		if strings.HasPrefix(origin, p.schemes[i]) && strings.HasSuffix(origin, suffix) &&
			len(origin) > len(p.schemes[i])+len(suffix) {
			return true
		}
	}
	return false
}

// CORS lets the booking widget embedded on the studio's sites call the API.
// Request ids and Retry-After are exposed so the widget can show them.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	const (
		allowHeaders  = "Authorization, Content-Type, Accept-Language, X-Request-ID"
		allowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
		exposeHeaders = "X-Request-ID, Retry-After"
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			w.Header().Add("Vary", "Origin")
			if !policy.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Expose-Headers", exposeHeaders)
			if preflight {
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Allow-Methods", allowMethods)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
