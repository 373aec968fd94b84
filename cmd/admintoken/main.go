// Command admintoken prints a bearer token for the /admin booking inbox.
//
// Usage: admintoken <subject> [role] [ttl]
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/wolfman30/vocal-booking/internal/config"
	httpmiddleware "github.com/wolfman30/vocal-booking/internal/http/middleware"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	token, err := issue(cfg.AdminJWTSecret, os.Args[1:])
	if err != nil {
		logger.Error("cannot issue admin token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func issue(secret string, args []string) (string, error) {
	if secret == "" {
		return "", errors.New("ADMIN_JWT_SECRET is required")
	}
	if len(args) < 1 {
		return "", errors.New("usage: admintoken <subject> [role] [ttl]")
	}
	role := "studio"
	if len(args) > 1 {
		role = args[1]
	}
	ttl := 12 * time.Hour
	if len(args) > 2 {
		d, err := time.ParseDuration(args[2])
		if err != nil {
			return "", fmt.Errorf("invalid ttl: %w", err)
		}
		ttl = d
	}
	return httpmiddleware.IssueAdminToken(secret, args[0], role, ttl)
}
