package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/supsol/poreview/internal/guard"
)

func notifyCmd(connect Connect) *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send pending WhatsApp notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, connect, func(ctx context.Context, b *Backend) error {
				summary, err := b.Notifier.SendPending(ctx, env)
				if err != nil {
					return err
				}
				printNotificationSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&env, "env", "test", "test or prod")
	return cmd
}

func cleanupCmd(connect Connect) *cobra.Command {
	var (
		wpq       string
		olderThan time.Duration
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clear stuck guard entries",
		Long: `Remove guard entries left behind by interrupted runs.

Without --wpq every entry is cleared. With --older-than only entries
acquired before that age are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return errors.New("--older-than must not be negative")
			}
			return withBackend(cmd, connect, func(ctx context.Context, b *Backend) error {
				n, err := b.Reviewer.Cleanup(ctx, wpq, olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s cleared %d guard entries\n", okMark, n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wpq, "wpq", "", "Clear only this WPQ number")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only clear entries older than this")
	return cmd
}

func statusCmd(connect Connect) *cobra.Command {
	var wpq string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show escalation state and the next action for a PO",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, connect, func(ctx context.Context, b *Backend) error {
				st, err := b.Reviewer.Status(ctx, wpq)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wpq, "wpq", "", "WPQ number")
	_ = cmd.MarkFlagRequired("wpq")
	return cmd
}

func respondCmd(connect Connect) *cobra.Command {
	var (
		wpq     string
		english string
	)
	cmd := &cobra.Command{
		Use:   "respond <text>",
		Short: "Log a vendor reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("reply text is empty")
			}
			return withBackend(cmd, connect, func(ctx context.Context, b *Backend) error {
				out, err := b.Reviewer.LogVendorResponse(ctx, wpq, text, english, "")
				if errors.Is(err, guard.ErrHeld) {
					return fmt.Errorf("%s is being reviewed, retry later: %w", wpq, err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s recorded reply for %s (event %d)\n", okMark, out.WPQNumber, out.EventID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wpq, "wpq", "", "WPQ number")
	cmd.Flags().StringVar(&english, "english", "", "English translation of the reply")
	_ = cmd.MarkFlagRequired("wpq")
	return cmd
}
