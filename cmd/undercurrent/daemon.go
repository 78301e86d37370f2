package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ameliahart/undercurrent"
	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run insight generation on a timer for all users",
		Long: `Periodically attempts an insight run for every registered user. The
weekly gate inside the engine keeps the effective cadence at once per
week per user, so a short interval just means the run happens soon
after each user's week rolls over.
Handles SIGINT/SIGTERM for graceful shutdown (finishes the current cycle).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			engine, err := openEngine(false)
			if err != nil {
				return err
			}
			defer engine.Close()

			log.Printf("undercurrent daemon: starting with interval %s", interval)

			cycle := 1
			for {
				start := time.Now()
				log.Printf("undercurrent daemon: cycle %d starting", cycle)

				runAllUsers(ctx, engine)

				log.Printf("undercurrent daemon: cycle %d completed in %s",
					cycle, time.Since(start).Round(time.Millisecond))
				cycle++

				// Wait for the next tick or a shutdown signal.
				timer := time.NewTimer(interval)
				select {
				case <-sig:
					timer.Stop()
					log.Println("undercurrent daemon: received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Hour, "duration between insight cycles (e.g. 1h, 30m)")
	return cmd
}

// runAllUsers attempts one insight run per user. Gate refusals are
// normal and logged quietly; real failures are logged loudly.
func runAllUsers(ctx context.Context, engine *undercurrent.Engine) {
	users, err := engine.ListUsers()
	if err != nil {
		log.Printf("undercurrent daemon: list users: %v", err)
		return
	}

	for _, user := range users {
		report, err := engine.GenerateInsights(ctx, user.ID, false)
		switch {
		case err == nil:
			log.Printf("undercurrent daemon: %s: %d updated, %d created, %d skipped",
				user.Name, report.Updated, report.Created, report.Skipped)
		case errors.Is(err, undercurrent.ErrAlreadyRanThisWeek),
			errors.Is(err, undercurrent.ErrInsufficientData),
			errors.Is(err, undercurrent.ErrRunInProgress):
			log.Printf("undercurrent daemon: %s: skipped (%v)", user.Name, err)
		default:
			log.Printf("undercurrent daemon: %s: insight run failed: %v", user.Name, err)
		}
	}
}
