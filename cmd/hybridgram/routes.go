package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/amarnathcjd/hybridgram/app"
	"github.com/amarnathcjd/hybridgram/config"
	"github.com/amarnathcjd/hybridgram/telegram"
)

// registerRoutes installs the routes served by the command line runner.
func registerRoutes(r *telegram.Router, log telegram.Logger) error {
	r.Use(telegram.Recover(log), telegram.Logging(log))

	for name, action := range map[string]any{"ping": ping, "start": start} {
		if err := r.RegisterAction(name, action); err != nil {
			return err
		}
	}
	if _, err := r.Route().SendAction(telegram.ActionTyping).OnCommand("start", "start"); err != nil {
		return err
	}
	_, err := r.Route().OnCommand("ping", "ping")
	return err
}

func start(ctx context.Context, d *telegram.MatchedData) error {
	name := "there"
	if u := d.User(); u != nil && u.FirstName != "" {
		name = u.FirstName
	}
	_, err := d.Bot.SendMessage(ctx, d.Chat().ID, fmt.Sprintf("Hi %s! Send /ping to check the bot.", name), nil)
	return err
}

func ping(ctx context.Context, d *telegram.MatchedData) error {
	_, err := d.Bot.SendMessage(ctx, d.Chat().ID, "pong", map[string]any{
		"reply_parameters": map[string]any{"message_id": d.Message().MessageID},
	})
	return err
}

func newRoutesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the registered routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := telegram.NewRouter(telegram.RouterConfig{Logger: telegram.NopLogger()})
			if err := registerRoutes(r, telegram.NopLogger()); err != nil {
				return err
			}
			infos := telegram.DescribeRoutes(r.Routes())
			if len(infos) == 0 {
				return errors.New("no routes registered")
			}
			if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
				return writeYAML(cmd.OutOrStdout(), infos)
			}
			return printRoutes(cmd.OutOrStdout(), infos)
		},
	}
	cmd.Flags().Bool("yaml", false, "Print routes as YAML.")
	return cmd
}

func printRoutes(w io.Writer, infos []telegram.RouteInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOT\tTYPE\tPATTERN\tACTION\tCHATS\tSTATES")
	for _, in := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			in.BotID, in.Type, orDash(in.Pattern), in.Action,
			orDash(strings.Join(in.ChatTypes, ",")), orDash(describeStates(in)))
	}
	return tw.Flush()
}

func describeStates(in telegram.RouteInfo) string {
	var parts []string
	add := func(label string, names []string) {
		if len(names) > 0 {
			parts = append(parts, label+"="+strings.Join(names, "|"))
		}
	}
	add("chat", in.FromChatState)
	add("user", in.FromUserState)
	add("!chat", in.ExceptChatState)
	add("!user", in.ExceptUserState)
	if in.ToState != "" {
		parts = append(parts, "-> "+in.ToState)
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me [botId]",
		Short: "Call getMe for one bot (default: every bot)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ids := a.BotIDs()
			if len(args) == 1 {
				ids = args
			}
			for _, id := range ids {
				b, ok := a.Bot(id)
				if !ok {
					return errors.Errorf("unknown bot %q", id)
				}
				me, err := b.GetMe(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t@%s\t%d\n", id, me.Username, me.ID)
			}
			return nil
		},
	}
}

func newKeyringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage secrets referenced as keyring:<account>",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <account>",
		Short: "Store a secret read from stdin in the OS keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			secret := strings.TrimSpace(string(data))
			if secret == "" {
				return errors.New("empty secret")
			}
			if err := config.StoreSecret(args[0], secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored; reference it as keyring:%s\n", args[0])
			return nil
		},
	})
	return cmd
}
