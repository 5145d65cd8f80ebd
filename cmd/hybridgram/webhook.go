package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/amarnathcjd/hybridgram/app"
	"github.com/amarnathcjd/hybridgram/config"
	"github.com/amarnathcjd/hybridgram/internal/utils"
	"github.com/amarnathcjd/hybridgram/telegram"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Serve and manage webhooks",
	}
	cmd.AddCommand(newWebhookServeCmd())
	cmd.AddCommand(newWebhookSetCmd())
	cmd.AddCommand(newWebhookDeleteCmd())
	cmd.AddCommand(newWebhookInfoCmd())
	return cmd
}

func newWebhookServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive updates for every webhook bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd)
			defer stop()
			if setup, _ := cmd.Flags().GetBool("set"); setup {
				if err := a.SetupWebhooks(ctx); err != nil {
					return err
				}
			}
			return ignoreCanceled(a.RunWebhooks(ctx))
		},
	}
	cmd.Flags().Bool("set", false, "Call setWebhook for every webhook bot before serving.")
	return cmd
}

// botArg resolves the optional botId argument, defaulting to the only bot
// or to "main".
func botArg(a *app.App, args []string) (*telegram.Bot, *config.Bot, error) {
	id := "main"
	if len(args) == 1 {
		id = args[0]
	} else if ids := a.BotIDs(); len(ids) == 1 {
		id = ids[0]
	}
	b, ok := a.Bot(id)
	if !ok {
		return nil, nil, errors.Errorf("unknown bot %q", id)
	}
	bc, _ := a.Config().Bot(id)
	return b, bc, nil
}

func newWebhookSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [botId]",
		Short: "Register the webhook url of a bot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			b, bc, err := botArg(a, args)
			if err != nil {
				return err
			}

			p := telegram.WebhookParams{
				URL:                bc.WebhookURL,
				SecretToken:        bc.SecretToken,
				AllowedUpdates:     bc.AllowedUpdates,
				DropPendingUpdates: bc.WebhookDropPending,
			}
			if url, _ := cmd.Flags().GetString("url"); url != "" {
				p.URL = url
			}
			if cmd.Flags().Changed("drop-pending") {
				p.DropPendingUpdates, _ = cmd.Flags().GetBool("drop-pending")
			}
			if p.URL == "" {
				return errors.Errorf("bot %q has no webhook url; set webhook_url or pass --url", b.ID())
			}
			if err := b.SetWebhook(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook of %s set to %s\n", b.ID(), p.URL)
			return nil
		},
	}
	cmd.Flags().String("url", "", "Webhook url (default: the bot's webhook_url).")
	cmd.Flags().Bool("drop-pending", false, "Drop pending updates.")
	return cmd
}

func newWebhookDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [botId]",
		Short: "Remove the webhook of a bot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			b, _, err := botArg(a, args)
			if err != nil {
				return err
			}
			drop, _ := cmd.Flags().GetBool("drop-pending")
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				question := fmt.Sprintf("Delete the webhook of %s?", b.ID())
				if !utils.AskForConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), question, false) {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			if err := b.DeleteWebhook(cmd.Context(), drop); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook of %s deleted\n", b.ID())
			return nil
		},
	}
	cmd.Flags().Bool("drop-pending", false, "Drop pending updates.")
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation.")
	return cmd
}

func newWebhookInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [botId]",
		Short: "Print getWebhookInfo",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			b, _, err := botArg(a, args)
			if err != nil {
				return err
			}
			info, err := b.GetWebhookInfo(cmd.Context())
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), info)
		},
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
