package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/klogger/internal/ingest"
	"github.com/zjrosen/klogger/internal/log"
)

var followFromStart bool

var followCmd = &cobra.Command{
	Use:   "follow <file>",
	Short: "Buffer lines appended to a file until interrupted",
	Long: `Follow a file like tail -f, writing each appended line as one message.
On Ctrl-C (or when the file is removed) the buffered stream is printed.

Examples:
  klogger follow /var/log/app.log
  klogger follow --from-start --slot-size 128 app.log`,
	Args: cobra.ExactArgs(1),
	RunE: runFollow,
}

func init() {
	rootCmd.AddCommand(followCmd)
	followCmd.Flags().BoolVar(&followFromStart, "from-start", false, "ingest the existing file content first")
}

// notifyContext is overridable in tests.
var notifyContext = func(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runFollow(cmd *cobra.Command, args []string) error {
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

	var opts []ingest.FollowerOption
	if followFromStart {
		opts = append(opts, ingest.FromStart())
	}
	f := ingest.NewFollower(args[0], h, opts...)

	ctx, stop := notifyContext(cmd.Context())
	defer stop()
	if err := f.Run(ctx); err != nil {
		return err
	}
	log.Info(log.CatCLI, "follow finished", "path", args[0], "lines", f.Lines())

	return printStream(cmd, e)
}
