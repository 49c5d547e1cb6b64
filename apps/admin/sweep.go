package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/jamii/core/subscription"
)

// sweep runs the subscription expiry sweep at subscription.NowFunc().
// With dryRun, it only lists what a sweep would do.
func (cli *commandLine) sweep(dryRun bool) error {
	ctx := context.Background()
	now := subscription.NowFunc()

	if dryRun {
		due, err := cli.subSvc.DueActions(ctx, now)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ACTION\tSUBSCRIPTION\tUSER\tEND DATE\n")
		for _, sub := range due.ToWarn {
			fmt.Fprintf(w, "warn\t%s\t%s\t%s\n", sub.ID, sub.UserID, formatEnd(sub))
		}
		for _, sub := range due.ToDowngrade {
			fmt.Fprintf(w, "downgrade\t%s\t%s\t%s\n", sub.ID, sub.UserID, formatEnd(sub))
		}
		for _, skipped := range due.Skipped {
			fmt.Fprintf(w, "skip\t%s\t%s\t%v\n", skipped.Subscription.ID, skipped.Subscription.UserID, skipped.Err)
		}
		return w.Flush()
	}

	report, err := cli.subSvc.Sweep(ctx, now)
	// the notices of written changes must go out before the process exits
	cli.mailSvc.Wait()
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "sweep ran at %s\n", report.RanAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(cli.out, "  warned:     %d\n", len(report.Warned))
	fmt.Fprintf(cli.out, "  downgraded: %d\n", len(report.Downgraded))
	fmt.Fprintf(cli.out, "  skipped:    %d\n", len(report.Skipped))
	fmt.Fprintf(cli.out, "  failed:     %d\n", len(report.Failed))
	for _, item := range append(report.Skipped, report.Failed...) {
		fmt.Fprintf(cli.out, "  %s %s: %s\n", item.Action, item.SubscriptionID, item.Error)
	}
	return nil
}

func formatEnd(sub subscription.Subscription) string {
	if sub.EndDate == nil {
		return "-"
	}
	return sub.EndDate.Format("2006-01-02")
}
