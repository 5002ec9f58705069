package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiabin827/gospecan/hislip"
)

var (
	discoverIface string
	discoverWait  time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Browse the local network for HiSLIP instruments (mDNS)",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverIface, "iface", "", "network interface to browse on (default: all)")
	discoverCmd.Flags().DurationVar(&discoverWait, "wait", 3*time.Second, "how long to collect answers")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), discoverWait)
	defer cancel()

	found, err := hislip.Discover(ctx, discoverIface)
	if err != nil {
		printError("discover", err)
		return err
	}
	if len(found) == 0 {
		fmt.Println("No instruments found")
		return nil
	}
	for _, inst := range found {
		fmt.Println(inst)
		if verbose {
			for k, v := range inst.Text {
				fmt.Printf("    %s=%s\n", k, v)
			}
		}
	}
	return nil
}
