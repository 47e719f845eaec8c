package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tracealloc/tracealloc/trac/tracelog"
)

var modulesMapsPath string

func init() {
	cmd := newModulesCmd()
	cmd.Flags().StringVar(&modulesMapsPath, "maps", "", "Module map log (maps.log)")
	rootCmd.AddCommand(cmd)
}

func newModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules <log>...",
		Short: "Attribute allocations to modules via recorded stacks",
		Long: `The modules command groups allocation events by the module of their
topmost recorded stack frame. Logs written with stack capture disabled
attribute everything to "(no stack)".

Example:
  tracstat modules --maps /tmp/trac/maps.log /tmp/trac/alloc_*.log`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModules(args)
		},
	}
}

type moduleStat struct {
	name   string
	allocs int
	bytes  uint64
}

func runModules(paths []string) error {
	names := make(map[uint64]string)
	if modulesMapsPath != "" {
		f, err := os.Open(modulesMapsPath)
		if err != nil {
			return err
		}
		parsed, err := tracelog.ParseMaps(f)
		f.Close()
		if err != nil {
			return err
		}
		names = parsed
	}

	stats := make(map[string]*moduleStat)
	for _, path := range paths {
		events, err := tracelog.ReadFile(path)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if !ev.Alloc {
				continue
			}
			name := attributeEvent(ev, names)
			st, ok := stats[name]
			if !ok {
				st = &moduleStat{name: name}
				stats[name] = st
			}
			st.allocs++
			st.bytes += ev.Size
		}
	}

	ordered := make([]*moduleStat, 0, len(stats))
	for _, st := range stats {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].bytes > ordered[j].bytes
	})
	for _, st := range ordered {
		printInfo("%-48s %d allocs, %d bytes\n", st.name, st.allocs, st.bytes)
	}
	return nil
}

// attributeEvent names the module of the topmost stack frame.
func attributeEvent(ev tracelog.Event, names map[uint64]string) string {
	if len(ev.Stack) == 0 {
		return "(no stack)"
	}
	top := ev.Stack[0]
	if top.Module == 0 {
		return "(unmapped)"
	}
	if name, ok := names[top.Module]; ok {
		return name
	}
	return fmt.Sprintf("module %d", top.Module)
}
