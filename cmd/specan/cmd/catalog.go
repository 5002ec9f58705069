package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xiabin827/gospecan"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [kind]",
	Short: "List lookup tables, attributes and measurements of the catalog",
	Long: `Without arguments, lists the whole catalog. With a measurement kind,
shows its query template, selector parameters and record fields.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	c, err := loadCatalog(cfg)
	if err != nil {
		printError("catalog", err)
		return err
	}
	if len(args) == 1 {
		m, err := c.Measurement(args[0])
		if err != nil {
			return err
		}
		printMeasurement(os.Stdout, m)
		return nil
	}
	printCatalog(os.Stdout, c)
	return nil
}

func printCatalog(w io.Writer, c *gospecan.Catalog) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "TABLES")
	for _, name := range c.Tables.Names() {
		fmt.Fprintf(tw, "  %s\t%s\n", name, strings.Join(c.Tables.Resolve(name).Keywords(), ", "))
	}

	fmt.Fprintln(tw, "\nATTRIBUTES")
	for _, a := range c.AttributeList() {
		kind := string(a.Kind)
		if a.Kind == gospecan.AttrEnum {
			kind += "(" + a.Table + ")"
		}
		access := "rw"
		if a.ReadOnly {
			access = "ro"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", a.ID, a.Name, kind, access, a.Command)
	}

	fmt.Fprintln(tw, "\nMEASUREMENTS")
	for _, kind := range c.Kinds() {
		m, _ := c.Measurement(kind)
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", kind, m.Query, strings.Join(m.Params(), ","))
	}
	tw.Flush()
}

func printMeasurement(w io.Writer, m *gospecan.Measurement) {
	fmt.Fprintf(w, "%s\n", m.Kind)
	if m.Description != "" {
		fmt.Fprintf(w, "  %s\n", m.Description)
	}
	fmt.Fprintf(w, "  query:   %s\n", m.Query)
	if m.Timeout > 0 {
		fmt.Fprintf(w, "  timeout: %v\n", m.Timeout)
	}
	for _, d := range m.Selector {
		switch {
		case d.Param == "":
			fmt.Fprintf(w, "  suffix:  %s", d.Name)
		case d.Table != "":
			fmt.Fprintf(w, "  arg:     %s -> %s (table %s)", d.Param, d.Name, d.Table)
		default:
			fmt.Fprintf(w, "  arg:     %s -> %s [%d..%d]", d.Param, d.Name, d.Min, d.Max)
		}
		if d.When != nil {
			fmt.Fprintf(w, " when %s in %v", d.When.Param, d.When.In)
		}
		fmt.Fprintln(w)
	}
	for i, f := range m.Schema.Fields {
		kind := string(f.Kind)
		if f.Kind == gospecan.FieldEnum {
			kind += "(" + f.Table + ")"
		}
		fmt.Fprintf(w, "  field %d: %s %s\n", i+1, f.Name, kind)
	}
}
