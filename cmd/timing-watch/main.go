package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-order-timing/internal/display"
	"github.com/ariefcatur/go-order-timing/internal/httpx"
	"github.com/ariefcatur/go-order-timing/internal/logger"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		apiURL   string
		interval time.Duration
		once     bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "timing-watch",
		Short: "Live board of active orders and their remaining preparation time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			p := &display.Poller{
				Source:   httpx.NewClient(apiURL),
				Interval: interval,
				Log:      logger.New("timing-watch", logLevel, cmd.ErrOrStderr()),
				OnUpdate: func(s display.Snapshot) {
					fmt.Fprint(out, "\033[H\033[2J")
					fmt.Fprint(out, display.Render(s))
				},
			}
			if once {
				p.OnUpdate = nil
				s := p.Poll(ctx)
				fmt.Fprint(out, display.Render(s))
				return s.Err
			}
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", envOr("TIMING_API_URL", "http://localhost:8081"), "timing API base URL")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "poll interval")
	cmd.Flags().BoolVar(&once, "once", false, "print the board once and exit")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	return cmd
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
