package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/klogger/internal/ingest"
	"github.com/zjrosen/klogger/internal/log"
	"github.com/zjrosen/klogger/internal/ring"
)

var (
	catChunk  int
	catChunks bool
)

var catCmd = &cobra.Command{
	Use:   "cat",
	Short: "Buffer stdin lines, then read them back in fixed-size reads",
	Long: `Write every stdin line as one message, then drain the stream through a
fresh session using reads of at most --chunk bytes. Reads never split a
message, so each chunk ends on a newline.

Examples:
  dmesg | klogger cat
  dmesg | klogger cat --chunk 512 --chunks`,
	RunE: runCat,
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().IntVar(&catChunk, "chunk", 4096, "maximum bytes per read")
	catCmd.Flags().BoolVar(&catChunks, "chunks", false, "report each read on stderr")
}

func runCat(cmd *cobra.Command, _ []string) error {
	if catChunk <= 0 {
		return fmt.Errorf("--chunk must be positive, got %d", catChunk)
	}

	e, err := setup(cmd, setupOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	w, err := e.dev.Open(cmd.Context())
	if err != nil {
		return err
	}
	n, err := ingest.CopyLines(cmd.InOrStdin(), w)
	_ = w.Close()
	if err != nil {
		return err
	}
	log.Debug(log.CatCLI, "stdin buffered", "lines", n)

	r, err := e.dev.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	buf := make([]byte, catChunk)
	reads := 0
	for {
		n, err := r.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ring.ErrShortBuffer) {
			return fmt.Errorf("--chunk %d is smaller than a buffered message (slot size %d): %w",
				catChunk, e.dev.Ring().SlotSize(), err)
		}
		if err != nil {
			return err
		}
		reads++
		if catChunks {
			fmt.Fprintf(cmd.ErrOrStderr(), "read %d: %d bytes (cursor %d)\n", reads, n, r.Cursor())
		}
		if _, err := cmd.OutOrStdout().Write(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}
