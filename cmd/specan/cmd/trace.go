package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiabin827/gospecan/trace"
)

var (
	traceSession string
	traceErrors  bool
	tracePrefix  string
	traceOp      string
	traceSince   time.Duration
)

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Print the exchanges recorded in a trace file",
	Example: `  specan trace specan.trace --errors
  specan trace specan.trace --prefix FETC --op query --since 1h`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().StringVar(&traceSession, "session", "", "only events of this session ID")
	traceCmd.Flags().BoolVar(&traceErrors, "errors", false, "only failed exchanges")
	traceCmd.Flags().StringVar(&tracePrefix, "prefix", "", "only commands starting with this header")
	traceCmd.Flags().StringVar(&traceOp, "op", "", "only this operation (write|query)")
	traceCmd.Flags().DurationVar(&traceSince, "since", 0, "only events newer than this")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	filter, err := traceFilter()
	if err != nil {
		return err
	}
	events, err := trace.ReadFile(args[0], filter)
	if err != nil {
		printError("trace", err)
		return err
	}
	printEvents(os.Stdout, events)
	return nil
}

func traceFilter() (trace.Filter, error) {
	f := trace.Filter{
		SessionID:  traceSession,
		Prefix:     tracePrefix,
		OnlyErrors: traceErrors,
	}
	switch strings.ToLower(traceOp) {
	case "":
	case "write":
		op := trace.OpWrite
		f.Op = &op
	case "query":
		op := trace.OpQuery
		f.Op = &op
	default:
		return f, fmt.Errorf("unknown op %q (want write or query)", traceOp)
	}
	if traceSince > 0 {
		since := time.Now().Add(-traceSince)
		f.Since = &since
	}
	return f, nil
}

func printEvents(w io.Writer, events []trace.Event) {
	for _, e := range events {
		fmt.Fprintf(w, "%s %-5s %8s %s",
			e.Timestamp.Format("15:04:05.000"), e.Op, e.Duration.Round(time.Microsecond), e.Command)
		if e.Reply != "" {
			fmt.Fprintf(w, " -> %s", abbreviate(e.Reply, 60))
		}
		if e.Failed() {
			fmt.Fprintf(w, " !! %s", e.Error)
		}
		fmt.Fprintln(w)
	}
	if verbose {
		fmt.Fprintf(w, "%d events\n", len(events))
	}
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("... (%d bytes)", len(s))
}
