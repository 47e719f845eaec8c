package main

import (
	"sort"

	"github.com/spf13/cobra"
	"github.com/tracealloc/tracealloc/trac/tracelog"
)

func init() {
	rootCmd.AddCommand(newSummaryCmd())
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <log>...",
		Short: "Summarize allocation activity in trace logs",
		Long: `The summary command replays one or more per-handler trace logs and
reports event counts, live and peak bytes, and the allocation size
distribution.

Example:
  tracstat summary /tmp/trac/alloc_0_4711.log
  tracstat summary /tmp/trac/alloc_*.log`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(args)
		},
	}
}

// sizeBuckets are the upper bounds of the allocation size histogram.
var sizeBuckets = []uint64{
	256, 4 << 10, 64 << 10, 1 << 20, 1 << 30,
}

func bucketLabel(idx int) string {
	labels := []string{"<256B", "<4KB", "<64KB", "<1MB", "<1GB", ">=1GB"}
	return labels[idx]
}

func runSummary(paths []string) error {
	var (
		allocs, frees int
		allocBytes    uint64
		live          uint64
		peak          uint64
		histogram     = make([]int, len(sizeBuckets)+1)
	)

	// Replay all logs merged by timestamp so live/peak accounting follows
	// the real interleaving across handlers.
	var events []tracelog.Event
	for _, path := range paths {
		evs, err := tracelog.ReadFile(path)
		if err != nil {
			return err
		}
		events = append(events, evs...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Sec != events[j].Sec {
			return events[i].Sec < events[j].Sec
		}
		return events[i].Nsec < events[j].Nsec
	})

	for _, ev := range events {
		if ev.Alloc {
			allocs++
			allocBytes += ev.Size
			live += ev.Size
			if live > peak {
				peak = live
			}
			histogram[bucketFor(ev.Size)]++
		} else {
			frees++
			if ev.Size > live {
				live = 0
			} else {
				live -= ev.Size
			}
		}
	}

	printInfo("events:      %d (%d allocs, %d frees)\n", allocs+frees, allocs, frees)
	printInfo("allocated:   %d bytes\n", allocBytes)
	printInfo("peak live:   %d bytes\n", peak)
	printInfo("end live:    %d bytes\n", live)
	printInfo("size distribution:\n")
	for idx, count := range histogram {
		if count == 0 {
			continue
		}
		printInfo("  %-7s %d\n", bucketLabel(idx), count)
	}
	return nil
}

func bucketFor(size uint64) int {
	for idx, bound := range sizeBuckets {
		if size < bound {
			return idx
		}
	}
	return len(sizeBuckets)
}
