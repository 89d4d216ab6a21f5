package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/klogger/internal/device"
	"github.com/zjrosen/klogger/internal/ingest"
)

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats [file|-]",
	Short: "Show ring bookkeeping after buffering a file",
	Long: `Buffer the lines of a file (or stdin with "-") and print the ring
statistics: capacity, entries, head/tail slots and stream size.

Examples:
  klogger stats /var/log/syslog
  seq 5000 | klogger stats - --format yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsFormat, "format", "text", "output format: text or yaml")
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsFormat != "text" && statsFormat != "yaml" {
		return fmt.Errorf("unknown format %q (want text or yaml)", statsFormat)
	}

	e, err := setup(cmd, setupOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	if len(args) == 1 {
		if err := ingestSource(cmd, e, args[0]); err != nil {
			return err
		}
	}

	st := e.dev.Stats()
	if statsFormat == "yaml" {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return fmt.Errorf("encoding stats: %w", err)
		}
		return enc.Close()
	}
	printStats(cmd, e.dev.Name(), st)
	return nil
}

func ingestSource(cmd *cobra.Command, e *env, source string) error {
	h, err := e.dev.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	if source == "-" {
		_, err = ingest.CopyLines(cmd.InOrStdin(), h)
		return err
	}
	f, err := os.Open(source)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = ingest.CopyLines(f, h)
	return err
}

func printStats(cmd *cobra.Command, name string, st device.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "device:       %s\n", name)
	fmt.Fprintf(out, "slots:        %d x %d bytes\n", st.Capacity, st.SlotSize)
	fmt.Fprintf(out, "entries:      %d\n", st.Entries)
	fmt.Fprintf(out, "head/tail:    %d/%d (last written %d)\n", st.Head, st.Tail, st.LastWritten)
	fmt.Fprintf(out, "stream bytes: %d\n", st.Bytes)
	fmt.Fprintf(out, "wrapped:      %t\n", st.Wrapped)
}
