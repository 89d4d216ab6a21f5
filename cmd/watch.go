package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zjrosen/klogger/internal/ingest"
	"github.com/zjrosen/klogger/internal/log"
	"github.com/zjrosen/klogger/internal/ui/logview"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [file]",
	Short: "Live view of the buffered stream",
	Long: `Open a terminal viewer over the device. With a file argument, lines
appended to that file are buffered while the viewer runs.

Keys: j/k scroll, g/G top/bottom, f follow newest, r refresh, l toggle the
debug log pane (c clears it), q quit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", logview.DefaultInterval, "refresh interval")
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd, setupOptions{teaLog: true})
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	followErr := make(chan error, 1)
	if len(args) == 1 {
		h, err := e.dev.Open(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()

		f := ingest.NewFollower(args[0], h, ingest.FromStart())
		go func() { followErr <- f.Run(ctx) }()
	}

	p := tea.NewProgram(
		logview.New(e.dev, watchInterval),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running viewer: %w", err)
	}

	cancel()
	if len(args) == 1 {
		if err := <-followErr; err != nil {
			log.ErrorErr(log.CatIngest, "follower stopped", err)
			return err
		}
	}
	return nil
}
