package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/klogger/internal/ingest"
	"github.com/zjrosen/klogger/internal/log"
)

var writeQuiet bool

var writeCmd = &cobra.Command{
	Use:   "write [message...]",
	Short: "Write messages and print the buffered stream",
	Long: `Write each argument as one message, or each stdin line when no arguments
are given, then print the buffered stream oldest first.

Messages longer than slot-size-1 bytes keep only their trailing bytes.

Examples:
  klogger write msg1 msg2 msg3
  seq 2000 | klogger write --slot-size 16 --total-size 256`,
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().BoolVarP(&writeQuiet, "quiet", "q", false, "do not print the stream afterwards")
}

func runWrite(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd, setupOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	h, err := e.dev.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	written := 0
	if len(args) > 0 {
		for _, arg := range args {
			if _, err := h.Write([]byte(arg)); err != nil {
				return fmt.Errorf("writing message: %w", err)
			}
			written++
		}
	} else {
		written, err = ingest.CopyLines(cmd.InOrStdin(), h)
		if err != nil {
			return err
		}
	}
	log.Debug(log.CatCLI, "messages written", "count", written)

	if writeQuiet {
		return nil
	}
	return printStream(cmd, e)
}

// printStream drains the device to the command's output.
func printStream(cmd *cobra.Command, e *env) error {
	return drainTo(cmd.Context(), e.dev, cmd.OutOrStdout())
}
