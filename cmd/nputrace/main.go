package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nputrace/internal/format"
	"nputrace/internal/model"
	"nputrace/internal/parser"
	"nputrace/internal/trace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nputrace: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		profilingPath     string
		commandStreamPath string
		outputPath        string
		addTimelineBars   bool
	)

	cmd := &cobra.Command{
		Use:   "nputrace",
		Short: "Convert NPU profiling dumps into a trace viewer file",
		Long: `nputrace correlates a command stream XML dump against the profiling
entries recorded at runtime and writes a single trace file for a generic
timeline viewer.

Timestamps are passed through unconverted: the profiling dump is in
nanoseconds while the viewer assumes microseconds, so displayed durations
are 1000x too long. Converting would round away precision, so this is left
as-is on purpose.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addTimelineBars {
				return errors.New("--add-timeline-bars is not implemented")
			}

			log := newLogger(cmd.ErrOrStderr())

			cs, err := parser.ReadCommandStream(commandStreamPath)
			if err != nil {
				return err
			}
			entries, err := parser.ReadProfilingEntries(profilingPath)
			if err != nil {
				return err
			}

			events, err := trace.Convert(cs, entries, log)
			if err != nil {
				return err
			}

			if err := writeTraceFile(outputPath, events); err != nil {
				return err
			}

			log.Info().Int("events", len(events)).Str("output", outputPath).Msg("saved trace")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&profilingPath, "profiling-entries", defaultPath("profiling.json"), "profiling entries JSON dumped by the driver library")
	flags.StringVar(&commandStreamPath, "command-stream", defaultPath("CommandStream_.xml"), "command stream XML dumped by the driver library")
	flags.StringVar(&outputPath, "output", defaultPath("trace.json"), "output trace JSON path")
	flags.BoolVar(&addTimelineBars, "add-timeline-bars", false, "add ruler bars at the top of the trace (reserved, not implemented)")

	return cmd
}

func writeTraceFile(path string, events []model.TraceEvent) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	buf := bufio.NewWriter(out)
	if err := format.WriteTrace(buf, events); err != nil {
		out.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	if err := buf.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	return out.Close()
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
}

// defaultPath resolves a relative default under NPUTRACE_DIR when set, so
// runs against a dump directory don't need all three flags spelled out.
func defaultPath(name string) string {
	if dir := os.Getenv("NPUTRACE_DIR"); dir != "" {
		return filepath.Join(dir, name)
	}
	return name
}
