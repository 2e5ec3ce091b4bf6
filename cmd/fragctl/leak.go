package main

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"

	"github.com/joshuapare/fragkit/frag"
)

var (
	leakCount    int
	leakSize     string
	leakDetailed bool
)

func init() {
	cmd := newLeakCmd()
	cmd.Flags().IntVar(&leakCount, "count", 3, "Number of blocks to leak")
	cmd.Flags().StringVar(&leakSize, "size", "256", "Size of each leaked block")
	cmd.Flags().BoolVar(&leakDetailed, "detailed", true, "Include per-block call sites in the reports")
	rootCmd.AddCommand(cmd)
}

func newLeakCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leak",
		Short: "Leak blocks through a group and print the resulting reports",
		Long: `The leak command allocates blocks through a group over the system
allocator and never frees them. Destroying the group reports the leak
against the group; shutting the library down reports the same blocks
again against the system allocator, which still holds them.

Example:
  fragctl leak
  fragctl leak --count 10 --size 4k --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeak(cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	return cmd
}

func runLeak(out, errOut io.Writer) error {
	size, err := parseSize(leakSize)
	if err != nil {
		return errors.Wrap(err, "--size")
	}
	if leakCount < 0 {
		return errors.Newf("--count must not be negative, got %d", leakCount)
	}

	var reports []frag.LeakReport
	cfg := frag.DefaultConfig()
	cfg.Logger = newLogger(errOut)
	cfg.EnableDetailedLeakReports = leakDetailed
	cfg.ReportLeakHandler = func(a *frag.Allocator, report frag.LeakReport) {
		reports = append(reports, report)
	}

	lib := frag.New(cfg)
	sys := lib.System()
	g, err := lib.NewGroup(sys, "leaky", false, sys)
	if err != nil {
		lib.Shutdown()
		return errors.Wrap(err, "create group")
	}
	for i := range leakCount {
		if _, err := g.Alloc(size, 0); err != nil {
			lib.Destroy(sys, g)
			lib.Shutdown()
			return errors.Wrapf(err, "alloc %d", i)
		}
	}
	lib.Destroy(sys, g)
	lib.Shutdown()

	if jsonOut {
		w := jwriter.NewWriter()
		arr := w.Array()
		for _, r := range reports {
			r.WriteJSON(&w)
		}
		arr.End()
		if err := w.Error(); err != nil {
			return errors.Wrap(err, "encode reports")
		}
		_, err := fmt.Fprintln(out, string(w.Bytes()))
		return err
	}

	if len(reports) == 0 {
		printInfo(out, "No leaks detected\n")
		return nil
	}
	for _, r := range reports {
		printInfo(out, "%s\n", r)
	}
	return nil
}
