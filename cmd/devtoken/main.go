// Command devtoken mints an access/refresh pair for a user id, for local testing against
// AUTH_MODE=jwt without going through /auth/login.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/wingz-dispatch/ride-records-api/internal/platform/auth/tokens"
	platformclock "github.com/wingz-dispatch/ride-records-api/internal/platform/clock"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/config"
)

func main() {
	subject := flag.String("subject", "", "user id to put in the sub claim")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "devtoken: -subject is required")
		os.Exit(2)
	}
	cfg, err := config.LoadAuthConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	issuer := tokens.NewIssuer(tokens.Config{
		Secret:     cfg.Secret,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		ClockSkew:  cfg.ClockSkew,
	}, platformclock.NewSystemClock())

	pair, err := issuer.IssuePair(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]string{"access": pair.Access, "refresh": pair.Refresh})
}
