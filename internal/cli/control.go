package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sumanthpn07/lazyApply/internal/orchestrator"
	"github.com/sumanthpn07/lazyApply/internal/server"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

func buildControlCommands(opts *rootOptions) []*cobra.Command {
	return []*cobra.Command{
		buildEnqueueCommand(opts),
		{
			Use:   "pause",
			Short: "Pause the queue after the current submission",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withClient(cmd.Context(), func(ctx context.Context, c *server.Client) error {
					if _, err := c.Pause(ctx); err != nil {
						return err
					}
					printLine(cmd.OutOrStdout(), pterm.Success.Sprint("Queue paused"))
					return nil
				})
			},
		},
		{
			Use:   "resume",
			Short: "Resume a paused queue",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withClient(cmd.Context(), func(ctx context.Context, c *server.Client) error {
					started, err := c.Resume(ctx)
					if err != nil {
						return err
					}
					if started {
						printLine(cmd.OutOrStdout(), pterm.Success.Sprint("Queue resumed"))
					} else {
						printLine(cmd.OutOrStdout(), pterm.Info.Sprint("Queue unpaused, nothing started (empty, running or waiting for sign-in)"))
					}
					return nil
				})
			},
		},
		{
			Use:   "clear",
			Short: "Drop every queued item",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withClient(cmd.Context(), func(ctx context.Context, c *server.Client) error {
					n, err := c.Clear(ctx)
					if err != nil {
						return err
					}
					printLine(cmd.OutOrStdout(), pterm.Success.Sprintf("Cleared %d queued item(s)", n))
					return nil
				})
			},
		},
		{
			Use:   "cancel",
			Short: "Abort the current submission, clear the queue and close the browser",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withClient(cmd.Context(), func(ctx context.Context, c *server.Client) error {
					if _, err := c.Cancel(ctx); err != nil {
						return err
					}
					printLine(cmd.OutOrStdout(), pterm.Success.Sprint("Queue cancelled"))
					return nil
				})
			},
		},
		{
			Use:   "auth-done",
			Short: "Continue after signing in to the target in the browser",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withClient(cmd.Context(), func(ctx context.Context, c *server.Client) error {
					res, err := c.ResumeAfterAuth(ctx)
					if err != nil {
						return err
					}
					if res.FreshAttempt {
						printLine(cmd.OutOrStdout(), pterm.Info.Sprintf("Page was not kept, %s starts over", res.Ref))
					} else {
						printLine(cmd.OutOrStdout(), pterm.Success.Sprintf("Continuing %s on the signed-in page", res.Ref))
					}
					return nil
				})
			},
		},
		{
			Use:   "status",
			Short: "Show queue status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withClient(cmd.Context(), func(ctx context.Context, c *server.Client) error {
					st, err := c.Status(ctx)
					if err != nil {
						return err
					}
					return renderStatus(cmd.OutOrStdout(), st)
				})
			},
		},
	}
}

func buildEnqueueCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue REF...",
		Short: "Queue job refs on the running daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := make([]types.JobRef, 0, len(args))
			for _, a := range args {
				refs = append(refs, types.JobRef(a))
			}
			return opts.withClient(cmd.Context(), func(ctx context.Context, c *server.Client) error {
				return enqueueRemote(ctx, cmd.OutOrStdout(), c, refs)
			})
		},
	}
}

func enqueueRemote(ctx context.Context, w io.Writer, c *server.Client, refs []types.JobRef) error {
	res, err := c.Enqueue(ctx, refs...)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Queued %d of %d job(s)", res.Added, len(refs))
	if res.Started {
		msg += ", queue started"
	}
	printLine(w, pterm.Success.Sprint(msg))
	return nil
}

func renderStatus(w io.Writer, st orchestrator.Status) error {
	current := "-"
	if st.CurrentJobRef != "" {
		current = string(st.CurrentJobRef)
	}
	summary, err := pterm.DefaultTable.WithHasHeader().WithData([][]string{
		{"State", "Queued", "Current"},
		{stateLabel(st), strconv.Itoa(st.QueueLength), current},
	}).Srender()
	if err != nil {
		return err
	}
	printLine(w, summary)

	if st.Interrupt.Active {
		printLine(w, pterm.Warning.Sprintf("Sign-in required on %s for %s: %s", st.Interrupt.Target, st.Interrupt.Ref, st.Interrupt.Message))
		printLine(w, "  "+st.Interrupt.AuthURL)
		printLine(w, "  Sign in in the browser window, then run 'lazyapply auth-done'.")
	}

	if len(st.Items) == 0 {
		return nil
	}
	rows := [][]string{{"#", "Job", "Retries"}}
	for i, it := range st.Items {
		rows = append(rows, []string{strconv.Itoa(i + 1), string(it.Ref), strconv.Itoa(it.RetryCount)})
	}
	items, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	printLine(w, items)
	return nil
}

func stateLabel(st orchestrator.Status) string {
	switch {
	case st.FrozenForAuth:
		return "waiting for sign-in"
	case st.Paused:
		return "paused"
	case st.Running:
		return "running"
	default:
		return "idle"
	}
}

func printLine(w io.Writer, s string) {
	fmt.Fprintln(w, s)
}
