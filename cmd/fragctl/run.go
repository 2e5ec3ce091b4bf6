package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"

	"github.com/joshuapare/fragkit/frag"
)

var (
	runStackSize string
	runGroup     bool
	runDetailed  bool
	runAlignment int
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().StringVar(&runStackSize, "stack-size", "64k", "Size of the fixed stack's buffer (suffixes k, m, g)")
	cmd.Flags().BoolVar(&runGroup, "group", false, "Route the stack's buffer and control block through a group allocator")
	cmd.Flags().BoolVar(&runDetailed, "detailed", false, "Record call sites for leak reports")
	cmd.Flags().IntVar(&runAlignment, "alignment", 0, "Alignment for each allocation (0 selects the default)")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <size>...",
		Short: "Allocate a sequence of blocks from a fixed stack",
		Long: `The run command builds a hierarchy of allocators, allocates each
requested size from a fixed stack and prints the accounting of every
allocator while the blocks are live. Blocks are then freed in reverse
order and the hierarchy is torn down.

The stack's buffer and control block come from the system allocator, or
from a group over it when --group is set.

Example:
  fragctl run 128 4k 1k
  fragctl run --stack-size 1m --group 64k 64k
  fragctl run --alignment 64 --json 100 200`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
		},
	}
	return cmd
}

// allocatorRow is one allocator's accounting captured mid-workload.
type allocatorRow struct {
	Name     string
	Owner    string
	Stats    frag.Stats
	Used     int
	Capacity int
	IsStack  bool
}

type failedAlloc struct {
	Allocator string
	Size      int
	Alignment int
}

type workloadResult struct {
	Requested []int
	Allocated int
	Rows      []allocatorRow
	Failed    []failedAlloc
	Asserts   int
}

func runWorkload(out, errOut io.Writer, args []string) error {
	sizes := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := parseSize(arg)
		if err != nil {
			return err
		}
		sizes = append(sizes, n)
	}
	stackSize, err := parseSize(runStackSize)
	if err != nil {
		return errors.Wrap(err, "--stack-size")
	}

	res := workloadResult{Requested: sizes}
	cfg := frag.DefaultConfig()
	cfg.Logger = newLogger(errOut)
	cfg.EnableDetailedLeakReports = runDetailed
	cfg.ReportOutOfMemoryHandler = func(a *frag.Allocator, size, alignment int, site frag.Site) {
		res.Failed = append(res.Failed, failedAlloc{Allocator: a.Name(), Size: size, Alignment: alignment})
	}
	cfg.AssertHandler = func(failure *frag.AssertionError) {
		res.Asserts++
		fmt.Fprintln(errOut, failure)
	}
	cfg.ReportLeakHandler = func(a *frag.Allocator, report frag.LeakReport) {
		fmt.Fprintln(errOut, report)
	}

	lib := frag.New(cfg)
	defer lib.Shutdown()
	sys := lib.System()

	chain := []*frag.Allocator{sys}
	backing := sys
	if runGroup {
		g, err := lib.NewGroup(sys, "workload", false, sys)
		if err != nil {
			return errors.Wrap(err, "create group")
		}
		defer lib.Destroy(sys, g)
		backing = g
		chain = append(chain, g)
	}

	buffer, err := backing.Alloc(stackSize, 64)
	if err != nil {
		return errors.Wrap(err, "allocate stack buffer")
	}
	defer backing.Free(buffer)
	printVerbose(errOut, "stack buffer: %d bytes from %s\n", len(buffer), backing.Name())

	stack, err := lib.NewFixedStack(backing, "stack", false, buffer)
	if err != nil {
		return errors.Wrap(err, "create fixed stack")
	}
	defer lib.Destroy(backing, stack)
	chain = append(chain, stack)

	blocks := make([][]byte, 0, len(sizes))
	for _, size := range sizes {
		b, err := stack.Alloc(size, runAlignment)
		if err != nil {
			printVerbose(errOut, "alloc %d: %v\n", size, err)
			continue
		}
		blocks = append(blocks, b)
	}
	res.Allocated = len(blocks)
	res.Rows = snapshot(chain)

	for i := len(blocks) - 1; i >= 0; i-- {
		stack.Free(blocks[i])
	}

	if jsonOut {
		if err := writeWorkloadJSON(out, res); err != nil {
			return err
		}
	} else if !quiet {
		writeWorkloadText(out, res)
	}

	if res.Asserts > 0 {
		return errors.Newf("%d assertion failures", res.Asserts)
	}
	if len(res.Failed) > 0 {
		return errors.Newf("%d of %d allocations failed", len(res.Failed), len(sizes))
	}
	return nil
}

func snapshot(chain []*frag.Allocator) []allocatorRow {
	rows := make([]allocatorRow, 0, len(chain))
	for _, a := range chain {
		row := allocatorRow{Name: a.Name(), Stats: a.Stats()}
		if owner := a.Owner(); owner != nil {
			row.Owner = owner.Name()
		}
		row.Used, row.Capacity, row.IsStack = frag.StackUsage(a)
		rows = append(rows, row)
	}
	return rows
}

func writeWorkloadText(out io.Writer, res workloadResult) {
	fmt.Fprintf(out, "Allocated %d of %d blocks\n\n", res.Allocated, len(res.Requested))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ALLOCATOR\tOWNER\tBYTES\tCOUNT\tPEAK BYTES\tPEAK COUNT\tUSAGE")
	for _, r := range res.Rows {
		owner := r.Owner
		if owner == "" {
			owner = "-"
		}
		usage := "-"
		if r.IsStack {
			usage = fmt.Sprintf("%d/%d", r.Used, r.Capacity)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", r.Name, owner,
			r.Stats.Bytes, r.Stats.Count, r.Stats.BytesPeak, r.Stats.CountPeak, usage)
	}
	tw.Flush()

	if len(res.Failed) > 0 {
		fmt.Fprintln(out, "\nOut of memory:")
		for _, f := range res.Failed {
			fmt.Fprintf(out, "  %s: size=%d alignment=%d\n", f.Allocator, f.Size, f.Alignment)
		}
	}
}

func writeWorkloadJSON(out io.Writer, res workloadResult) error {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("requested").Int(len(res.Requested))
	obj.Name("allocated").Int(res.Allocated)

	rows := obj.Name("allocators").Array()
	for _, r := range res.Rows {
		ro := w.Object()
		ro.Name("name").String(r.Name)
		ro.Name("owner").String(r.Owner)
		r.Stats.WriteJSON(ro.Name("stats"))
		if r.IsStack {
			ro.Name("used").Int(r.Used)
			ro.Name("capacity").Int(r.Capacity)
		}
		ro.End()
	}
	rows.End()

	failed := obj.Name("failed").Array()
	for _, f := range res.Failed {
		fo := w.Object()
		fo.Name("allocator").String(f.Allocator)
		fo.Name("size").Int(f.Size)
		fo.Name("alignment").Int(f.Alignment)
		fo.End()
	}
	failed.End()
	obj.End()

	if err := w.Error(); err != nil {
		return errors.Wrap(err, "encode result")
	}
	_, err := fmt.Fprintln(out, string(w.Bytes()))
	return err
}

// parseSize parses a byte count with an optional k, m or g suffix
// (powers of 1024).
func parseSize(s string) (int, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	shift := 0
	switch {
	case strings.HasSuffix(t, "k"):
		shift = 10
	case strings.HasSuffix(t, "m"):
		shift = 20
	case strings.HasSuffix(t, "g"):
		shift = 30
	}
	if shift != 0 {
		t = t[:len(t)-1]
	}
	n, err := strconv.ParseUint(t, 10, strconv.IntSize-1-shift)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}
	return int(n << shift), nil
}
