package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive SCPI console",
	Long: `Opens an interactive console on the instrument. Lines ending in '?'
are sent as queries, anything else as a command. Lines starting with ':'
are console commands, type 'help' for the list.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "specan> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		sh := &shell{s: s, out: rl.Stdout()}
		info := s.client.Info()
		fmt.Fprintf(sh.out, "Connected to %s (session %d, HiSLIP %d.%d)\n",
			s.cfg.Instrument.Address, info.SessionID, info.VersionMajor, info.VersionMinor)
		sh.printHelp()

		for {
			line, err := rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt {
					continue
				}
				fmt.Fprintln(sh.out, "Exiting...")
				return nil
			}
			if sh.exec(cmd.Context(), strings.TrimSpace(line)) {
				return nil
			}
		}
	})
}

// shell executes console lines against an open session.
type shell struct {
	s   *session
	out io.Writer
}

// exec runs one line and reports whether the console should exit.
func (sh *shell) exec(ctx context.Context, input string) bool {
	if input == "" {
		return false
	}
	if !strings.HasPrefix(input, ":") {
		switch strings.ToLower(input) {
		case "help":
			sh.printHelp()
			return false
		case "quit", "exit", "q":
			fmt.Fprintln(sh.out, "Exiting...")
			return true
		}
		sh.scpi(input)
		return false
	}

	parts := strings.Fields(input[1:])
	if len(parts) == 0 {
		return false
	}
	switch strings.ToLower(parts[0]) {
	case "errors", "e":
		sh.cmdErrors()
	case "fetch", "f":
		sh.cmdFetch(parts[1:])
	case "status", "stb":
		sh.cmdStatus(ctx)
	case "clear", "cls":
		sh.report(sh.s.driver.ClearStatus())
	case "dcl":
		sh.report(sh.s.client.DeviceClear(ctx))
	case "trigger", "trg":
		sh.report(sh.s.client.Trigger())
	case "catalog", "cat":
		printCatalog(sh.out, sh.s.driver.Catalog())
	case "quit", "q":
		fmt.Fprintln(sh.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n", parts[0])
	}
	return false
}

func (sh *shell) scpi(line string) {
	if strings.HasSuffix(line, "?") || strings.Contains(line, "? ") {
		reply, err := sh.s.driver.RawQuery(line, 0)
		if reply != "" {
			fmt.Fprintln(sh.out, reply)
		}
		sh.report(err)
		return
	}
	sh.report(sh.s.driver.RawWrite(line))
}

func (sh *shell) cmdErrors() {
	errs, err := sh.s.driver.ErrorQueue(sh.s.cfg.Driver.ErrorQueueLimit)
	if len(errs) == 0 && err == nil {
		fmt.Fprintln(sh.out, `0,"No error"`)
	}
	for _, e := range errs {
		fmt.Fprintf(sh.out, "%d,%q\n", e.Code, e.Message)
	}
	sh.report(err)
}

func (sh *shell) cmdFetch(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(sh.out, "Usage: :fetch <kind> [name=value ...]")
		return
	}
	params, err := parseArgs(args[1:])
	if err != nil {
		sh.report(err)
		return
	}
	buf, err := sh.s.driver.FetchBuffer(args[0], params, sh.s.cfg.Driver.FetchCapacity, 0)
	if buf != nil && buf.Count() > 0 {
		printBuffer(sh.out, buf)
	}
	sh.report(err)
}

func (sh *shell) cmdStatus(ctx context.Context) {
	stb, err := sh.s.client.Status(ctx)
	if err != nil {
		sh.report(err)
		return
	}
	fmt.Fprintf(sh.out, "STB 0x%02X", stb)
	if stb&0x04 != 0 {
		fmt.Fprint(sh.out, " (error queue not empty)")
	}
	fmt.Fprintln(sh.out)
}

func (sh *shell) report(err error) {
	if err == nil {
		return
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			fmt.Fprintf(sh.out, "Error: %v\n", e)
		}
		return
	}
	fmt.Fprintf(sh.out, "Error: %v\n", err)
}

func (sh *shell) printHelp() {
	fmt.Fprint(sh.out, `
Commands:
  <scpi>?               Send a query and print the reply
  <scpi>                Send a command
  :errors               Drain the instrument error queue
  :fetch <kind> [a=v]   Run a catalog measurement
  :catalog              List the measurement catalog
  :status               Read the status byte
  :clear                Send *CLS
  :dcl                  Device clear
  :trigger              Send a trigger message
  help                  Show this help
  quit                  Exit the console

`)
}
