package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/klogger/internal/device"
	"github.com/zjrosen/klogger/internal/log"
)

var (
	stressWriters  int
	stressMessages int
	stressReaders  int
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Hammer the device with concurrent writers and readers",
	Long: `Run --writers goroutines that each write --messages messages while
--readers goroutines drain the stream over and over. Afterwards the
buffered stream is checked: it must hold min(total, capacity) messages,
every line must be intact and no message may appear twice.`,
	Args: cobra.NoArgs,
	RunE: runStress,
}

func init() {
	rootCmd.AddCommand(stressCmd)
	stressCmd.Flags().IntVar(&stressWriters, "writers", 8, "concurrent writers")
	stressCmd.Flags().IntVar(&stressMessages, "messages", 1000, "messages per writer")
	stressCmd.Flags().IntVar(&stressReaders, "readers", 2, "concurrent readers")
}

// stressReport summarizes one stress run.
type stressReport struct {
	Written  int
	Drains   int64
	Entries  int
	Expected int
	Elapsed  time.Duration
}

func runStress(cmd *cobra.Command, _ []string) error {
	if stressWriters <= 0 || stressMessages <= 0 || stressReaders < 0 {
		return fmt.Errorf("--writers and --messages must be positive and --readers non-negative")
	}

	e, err := setup(cmd, setupOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := stress(cmd.Context(), e.dev, stressWriters, stressMessages, stressReaders)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "wrote %d messages with %d writers in %s\n", report.Written, stressWriters, report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "readers drained the stream %d times\n", report.Drains)
	fmt.Fprintf(out, "buffered %d/%d entries, all intact\n", report.Entries, report.Expected)
	return nil
}

func stressLine(writer, seq int) string {
	return fmt.Sprintf("w%03d-%08d", writer, seq)
}

// stress runs the workload and verifies the final stream.
func stress(ctx context.Context, dev *device.Device, writers, messages, readers int) (stressReport, error) {
	if n := len(stressLine(writers, messages)); n > dev.Ring().MaxMessage() {
		return stressReport{}, fmt.Errorf("stress messages need %d bytes but slots hold %d", n, dev.Ring().MaxMessage())
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		rwg     sync.WaitGroup
		drains  atomic.Int64
		errOnce sync.Once
		runErr  error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			runErr = err
			cancel()
		})
	}

	for r := 0; r < readers; r++ {
		rwg.Add(1)
		go func() {
			defer rwg.Done()
			for ctx.Err() == nil {
				if err := drainCheck(ctx, dev); err != nil {
					fail(err)
					return
				}
				drains.Add(1)
			}
		}()
	}

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := dev.Open(ctx)
			if err != nil {
				fail(err)
				return
			}
			defer func() { _ = h.Close() }()
			for i := 0; i < messages; i++ {
				if ctx.Err() != nil {
					return
				}
				if _, err := h.Write([]byte(stressLine(w, i))); err != nil {
					fail(err)
					return
				}
			}
		}()
	}

	wg.Wait()
	cancel()
	rwg.Wait()
	if runErr != nil {
		return stressReport{}, runErr
	}

	total := writers * messages
	expected := min(total, dev.Ring().Capacity())
	lines, err := readLines(context.Background(), dev)
	if err != nil {
		return stressReport{}, err
	}
	if len(lines) != expected {
		return stressReport{}, fmt.Errorf("expected %d buffered messages, found %d", expected, len(lines))
	}

	seen := make(map[string]bool, len(lines))
	last := make(map[int]int, writers)
	for _, line := range lines {
		var w, seq int
		if _, err := fmt.Sscanf(line, "w%d-%d", &w, &seq); err != nil || stressLine(w, seq) != line {
			return stressReport{}, fmt.Errorf("malformed message %q", line)
		}
		if seen[line] {
			return stressReport{}, fmt.Errorf("duplicate message %q", line)
		}
		seen[line] = true
		if prev, ok := last[w]; ok && seq <= prev {
			return stressReport{}, fmt.Errorf("writer %d out of order: %d after %d", w, seq, prev)
		}
		last[w] = seq
	}

	report := stressReport{
		Written:  total,
		Drains:   drains.Load(),
		Entries:  len(lines),
		Expected: expected,
		Elapsed:  time.Since(start),
	}
	log.Info(log.CatCLI, "stress finished", "written", report.Written, "entries", report.Entries, "drains", report.Drains)
	return report, nil
}

// drainCheck reads the stream once and fails on any line that is not a
// complete stress message.
func drainCheck(ctx context.Context, dev *device.Device) error {
	lines, err := readLines(ctx, dev)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	for _, line := range lines {
		var w, seq int
		if _, err := fmt.Sscanf(line, "w%d-%d", &w, &seq); err != nil || stressLine(w, seq) != line {
			return fmt.Errorf("reader saw torn message %q", line)
		}
	}
	return nil
}

// readLines drains a fresh session with slot-sized reads.
func readLines(ctx context.Context, dev *device.Device) ([]string, error) {
	h, err := dev.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = h.Close() }()

	var lines []string
	buf := make([]byte, dev.Ring().SlotSize())
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := h.Read(buf)
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		sc := bufio.NewScanner(bytes.NewReader(buf[:n]))
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
	}
}
