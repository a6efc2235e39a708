package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/supsol/poreview/internal/policy"
	"github.com/supsol/poreview/internal/service"
)

var (
	okMark   = color.New(color.FgHiGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
)

func resultColor(result string) *color.Color {
	switch result {
	case service.ResultDispatched:
		return color.New(color.FgHiGreen)
	case service.ResultNotDue:
		return color.New(color.FgHiBlack)
	case service.ResultInProgress:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func printRunSummary(w io.Writer, s service.RunSummary) {
	fmt.Fprintf(w, "run %s: %v POs reviewed\n", s.RunID, s.Counts["pos_reviewed"])
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range s.Results {
		detail := r.Reason
		switch {
		case r.Error != "":
			detail = r.Error
		case r.Wait != "":
			detail = r.Reason + ", next in " + r.Wait
		}
		code := ""
		if r.AuditTypeID != 0 {
			code = fmt.Sprintf("%d %s", r.AuditTypeID, policy.ActionTitle(r.AuditTypeID))
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", r.WPQNumber, resultColor(r.Result).Sprint(r.Result), code, detail)
	}
	_ = tw.Flush()
	for _, k := range []string{
		service.ResultDispatched, service.ResultNotDue, service.ResultInProgress,
		service.ResultComposeFailed, service.ResultDispatchFailed, service.ResultError,
	} {
		if n, ok := s.Counts[k].(int); ok && n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", resultColor(k).Sprint(k), n)
		}
	}
}

func printNotificationSummary(w io.Writer, s service.NotificationSummary) {
	if s.Skipped {
		fmt.Fprintf(w, "%s another notification batch is running\n", color.New(color.FgYellow).Sprint("!"))
		return
	}
	fmt.Fprintf(w, "%s env: %d pending, %d sent, %d failed\n", s.Env, s.Pending, s.Sent, s.Failed)
	for _, r := range s.Results {
		if r.InProgress {
			fmt.Fprintf(w, "  %s %s under review, left pending\n", color.New(color.FgYellow).Sprint("!"), r.WPQNumber)
			continue
		}
		mark := okMark
		if len(r.Errors) > 0 {
			mark = failMark
		}
		fmt.Fprintf(w, "  %s %s -> %d recipients, %d audits marked\n", mark, r.WPQNumber, len(r.Recipients), r.Marked)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "      %s\n", e)
		}
	}
}

func printStatus(w io.Writer, st service.POStatus) {
	bold := color.New(color.Bold)
	fmt.Fprintf(w, "%s  PO %s  %s\n", bold.Sprint(st.PO.WPQNumber), st.PO.PONumber, st.PO.VendorName)
	fmt.Fprintf(w, "level:    %s\n", st.State.Level)
	if st.State.LastAttemptAt != nil {
		fmt.Fprintf(w, "last:     %s via %s (%s ago)\n",
			st.State.LastAttemptAt.Format(time.RFC3339), st.State.LastChannel, st.State.Elapsed.Round(time.Minute))
	}
	if st.State.ResponseReceived {
		fmt.Fprintf(w, "response: %s\n", st.State.LastResponse)
	}
	next := fmt.Sprintf("%d %s", st.Decision.AuditTypeID, policy.ActionTitle(st.Decision.AuditTypeID))
	if st.Decision.Due {
		next = color.New(color.FgHiGreen).Sprint(next + " (due)")
	} else {
		next += fmt.Sprintf(" in %s", st.Decision.Wait.Round(time.Minute))
	}
	fmt.Fprintf(w, "next:     %s [%s]\n", next, st.Decision.Reason)
	if st.Holder != nil {
		fmt.Fprintf(w, "%s held by %s since %s\n", color.New(color.FgYellow).Sprint("guard:"),
			st.Holder.Owner, st.Holder.AcquiredAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "history:  %d events\n", len(st.History))
}
