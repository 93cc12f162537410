// Command promote-admin gives an existing user the admin role.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/storage"
	"github.com/wingz-dispatch/ride-records-api/internal/app/users"
	platformclock "github.com/wingz-dispatch/ride-records-api/internal/platform/clock"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/config"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/logging"
)

func main() {
	username := flag.String("username", "admin", "username of the user to promote")
	flag.Parse()

	if err := run(*username); err != nil {
		fmt.Fprintf(os.Stderr, "promote-admin: %v\n", err)
		os.Exit(1)
	}
}

func run(username string) error {
	cfg, err := config.LoadServerConfigFromEnv()
	if err != nil {
		return err
	}
	if cfg.StorageBackend == config.BackendMemory {
		return errors.New("STORAGE_BACKEND=memory is not persistent; use postgres or sqlite")
	}
	log := logging.New(os.Stderr, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	svc := users.NewService(stores.Users, platformclock.NewSystemClock())
	u, err := svc.PromoteToAdmin(ctx, username)
	if err != nil {
		if ae := (*users.Error)(nil); errors.As(err, &ae) && ae.Code == "USER_NOT_FOUND" {
			return fmt.Errorf("user %q does not exist", username)
		}
		return err
	}
	fmt.Printf("Successfully promoted user %s to admin\n", u.Username)
	return nil
}
