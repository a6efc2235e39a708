package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/supsol/poreview/internal/service"
)

func runCmd(connect Connect) *cobra.Command {
	var (
		wpq       string
		cleanup   bool
		textLimit int
		loop      bool
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Review open POs and dispatch due follow-ups",
		Long: `Review every open PO, or a single one with --wpq, and send whatever
follow-up is due.

With --loop the review repeats every --interval until interrupted.

Examples:
  poreview run
  poreview run --wpq WPQ-1042 --cleanup
  poreview run --loop --interval 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if loop && interval <= 0 {
				return errors.New("--interval must be positive with --loop")
			}
			return withBackend(cmd, connect, func(ctx context.Context, b *Backend) error {
				for {
					summary, err := b.Reviewer.Run(ctx, service.RunOptions{
						WPQ:       wpq,
						Cleanup:   cleanup,
						TextLimit: textLimit,
						RequestID: uuid.NewString(),
					})
					if err != nil {
						if !loop {
							return err
						}
						fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", failMark, err)
					} else {
						printRunSummary(cmd.OutOrStdout(), summary)
					}
					if !loop {
						return nil
					}
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(interval):
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&wpq, "wpq", "", "Review only this WPQ number")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Clear guard entries older than two hours first")
	cmd.Flags().IntVar(&textLimit, "text-limit", 0, "Maximum message length (default from TEXT_LIMIT)")
	cmd.Flags().BoolVar(&loop, "loop", false, "Repeat until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Minute, "Delay between runs with --loop")
	return cmd
}
