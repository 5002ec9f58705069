package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var queryTimeout time.Duration

var queryCmd = &cobra.Command{
	Use:   "query <scpi>",
	Short: "Send a query and print the reply",
	Example: `  specan query --addr 192.168.1.20 "*IDN?"
  specan query --addr fsw "TRAC:DATA? TRACE1" --float`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var writeCmd = &cobra.Command{
	Use:     "write <scpi>",
	Short:   "Send a command and check the instrument error queue",
	Example: `  specan write --addr fsw "SENS:FREQ:CENT 1GHz"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runWrite,
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Drain and print the instrument error queue",
	RunE:  runErrors,
}

var asFloats bool

func init() {
	queryCmd.Flags().BoolVar(&asFloats, "float", false, "decode the reply as a comma separated float list")
	queryCmd.Flags().DurationVar(&queryTimeout, "query-timeout", 0, "timeout for this query only")
	rootCmd.AddCommand(queryCmd, writeCmd, errorsCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	line := strings.Join(args, " ")
	return withSession(cmd, func(s *session) error {
		if asFloats {
			values, err := s.driver.QueryFloatArray(line, queryTimeout)
			for i, v := range values {
				fmt.Printf("%6d  %g\n", i, v)
			}
			return err
		}
		reply, err := s.driver.RawQuery(line, queryTimeout)
		if reply != "" {
			fmt.Println(reply)
		}
		return err
	})
}

func runWrite(cmd *cobra.Command, args []string) error {
	line := strings.Join(args, " ")
	return withSession(cmd, func(s *session) error {
		if err := s.driver.RawWrite(line); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	})
}

func runErrors(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		errs, err := s.driver.ErrorQueue(s.cfg.Driver.ErrorQueueLimit)
		if len(errs) == 0 && err == nil {
			fmt.Println(`0,"No error"`)
		}
		for _, e := range errs {
			fmt.Printf("%d,%q\n", e.Code, e.Message)
		}
		return err
	})
}
