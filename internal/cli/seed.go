package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/supsol/poreview/internal/seed"
)

func seedCmd(connect Connect) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load purchase orders from a YAML fixture",
		Long: `Upsert purchase orders, their line items and pending notification
audits from a YAML fixture. Existing POs with the same WPQ are replaced.

Example:
  poreview seed --file testdata/pos.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			return withBackend(cmd, connect, func(ctx context.Context, b *Backend) error {
				sum := seed.Apply(ctx, b.Seeds, fx, time.Now().UTC())
				mark := okMark
				if len(sum.Errors) > 0 {
					mark = failMark
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d POs, %d items, %d notifications\n", mark, sum.POs, sum.Items, sum.Notifications)
				for _, e := range sum.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", e)
				}
				if len(sum.Errors) > 0 {
					return fmt.Errorf("seed finished with %d errors", len(sum.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Fixture path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
