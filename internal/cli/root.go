package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/supsol/poreview/internal/dispatch"
	"github.com/supsol/poreview/internal/seed"
	"github.com/supsol/poreview/internal/service"
)

type Reviewer interface {
	Run(ctx context.Context, opts service.RunOptions) (service.RunSummary, error)
	Status(ctx context.Context, wpq string) (service.POStatus, error)
	Cleanup(ctx context.Context, wpq string, olderThan time.Duration) (int, error)
	LogVendorResponse(ctx context.Context, wpq, text, englishText, requestID string) (dispatch.Outcome, error)
}

type Notifier interface {
	SendPending(ctx context.Context, env string) (service.NotificationSummary, error)
}

// Backend is what a command needs; Close releases connections.
type Backend struct {
	Reviewer Reviewer
	Notifier Notifier
	Seeds    seed.Store
	Close    func()
}

// Connect opens a Backend. Commands call it only once their flags parsed.
type Connect func(ctx context.Context) (*Backend, error)

func NewRootCmd(connect Connect) *cobra.Command {
	root := &cobra.Command{
		Use:           "poreview",
		Short:         "Escalating vendor follow-up for open purchase orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(connect))
	root.AddCommand(notifyCmd(connect))
	root.AddCommand(cleanupCmd(connect))
	root.AddCommand(statusCmd(connect))
	root.AddCommand(respondCmd(connect))
	root.AddCommand(seedCmd(connect))
	return root
}

func withBackend(cmd *cobra.Command, connect Connect, fn func(ctx context.Context, b *Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := connect(ctx)
	if err != nil {
		return err
	}
	if b.Close != nil {
		defer b.Close()
	}
	return fn(ctx, b)
}
