package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"github.com/amarnathcjd/hybridgram/app"
	"github.com/amarnathcjd/hybridgram/telegram"
)

func newPollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll [botId]",
		Short: "Poll updates with getUpdates (default: every polling bot)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logUpdates, _ := cmd.Flags().GetBool("log-updates")
			full, _ := cmd.Flags().GetBool("full")

			var opts app.Options
			if logUpdates || full {
				opts.OnUpdate = updatePrinter(cmd.OutOrStdout(), full)
			}
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd)
			defer stop()
			return ignoreCanceled(a.RunPolling(ctx, args...))
		},
	}
	cmd.Flags().Bool("log-updates", false, "Print a one-line summary for every received update.")
	cmd.Flags().Bool("full", false, "Print every update in full (implies --log-updates).")
	return cmd
}

// updatePrinter serializes output of concurrent pollers.
func updatePrinter(w io.Writer, full bool) func(botID string, u *telegram.Update) {
	var mu sync.Mutex
	return func(botID string, u *telegram.Update) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[%s] #%d %s%s\n", botID, u.UpdateID, telegram.Classify(u), summary(u))
		if full {
			pp.Fprintln(w, u)
		}
	}
}

func summary(u *telegram.Update) string {
	s := ""
	if c := u.EffectiveChat(); c != nil {
		s += fmt.Sprintf(" chat=%d", c.ID)
	}
	if usr := u.EffectiveUser(); usr != nil {
		s += fmt.Sprintf(" from=%d", usr.ID)
	}
	if m := u.EffectiveMessage(); m != nil {
		if text := m.Content(); text != "" {
			if len(text) > 60 {
				text = text[:60] + "..."
			}
			s += fmt.Sprintf(" %q", text)
		}
	}
	return s
}
