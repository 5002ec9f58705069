package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiabin827/gospecan"
)

var (
	fetchArgs     []string
	fetchCapacity int
	fetchTimeout  time.Duration
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <kind>",
	Short: "Run a catalog measurement query and print the decoded records",
	Example: `  specan fetch gsm-modulation-spectrum --addr fsw
  specan fetch wimax-burst-summary -a zone=3 -a burst=5
  specan fetch ofdm-evm -a window=2 -a resultType=1 --capacity 64`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringArrayVarP(&fetchArgs, "arg", "a", nil, "selector argument name=value (repeatable)")
	fetchCmd.Flags().IntVar(&fetchCapacity, "capacity", 0, "maximum records to decode (default from config)")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "query-timeout", 0, "timeout for this fetch (default: measurement timeout)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	params, err := parseArgs(fetchArgs)
	if err != nil {
		return err
	}
	return withSession(cmd, func(s *session) error {
		capacity := fetchCapacity
		if capacity <= 0 {
			capacity = s.cfg.Driver.FetchCapacity
		}
		buf, err := s.driver.FetchBuffer(args[0], params, capacity, fetchTimeout)
		if buf != nil && buf.Count() > 0 {
			printBuffer(os.Stdout, buf)
		}
		return err
	})
}

// parseArgs converts name=value pairs into selector arguments.
func parseArgs(pairs []string) (gospecan.Args, error) {
	args := make(gospecan.Args, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q: want name=value", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		args[name] = v
	}
	return args, nil
}

// printBuffer writes the decoded records as an aligned table.
func printBuffer(w io.Writer, buf *gospecan.ResultBuffer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	names := make([]string, 0, buf.Schema().Width())
	for _, f := range buf.Schema().Fields {
		names = append(names, f.Name)
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for i := 0; i < buf.Len(); i++ {
		fmt.Fprintln(tw, strings.Join(buf.Row(i), "\t"))
	}
	tw.Flush()
	if buf.Count() > buf.Len() {
		fmt.Fprintf(w, "(%d of %d records shown, raise --capacity for more)\n", buf.Len(), buf.Count())
	}
}
