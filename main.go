package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsv-blockchain/chainlite/daemon"
	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/ordishs/gocore"
	"github.com/urfave/cli/v2"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "chainlite"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	tSettings := settings.NewSettings()

	logger := ulogger.New(progname,
		ulogger.WithLevel(tSettings.LogLevel),
		ulogger.WithLoggerType(tSettings.Logger),
		ulogger.WithPretty(tSettings.PrettyLogs),
	)

	app := newApp(tSettings, logger)

	if err := app.Run(os.Args); err != nil {
		logger.Errorf("%s", errorText(err))
		os.Exit(1)
	}
}

// errorText appends the first error data found along the chain of err as JSON.
func errorText(err error) string {
	var tErr *errors.Error

	for cause := err; errors.As(cause, &tErr); cause = tErr.WrappedErr() {
		if tErr.Data() != nil {
			return fmt.Sprintf("%v %s", err, tErr.Data().EncodeErrorData())
		}
	}

	return err.Error()
}

func newApp(tSettings *settings.Settings, logger ulogger.Logger) *cli.App {
	mempoolFlag := &cli.BoolFlag{
		Name:  "mempool",
		Usage: "include unconfirmed transactions",
	}

	return &cli.App{
		Name:    progname,
		Usage:   "a lightweight full node core",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "run the node until interrupted",
				Action: func(c *cli.Context) error {
					return start(c.Context, tSettings, logger)
				},
			},
			{
				Name:      "balance",
				Usage:     "print the balance of an address",
				ArgsUsage: "<address>",
				Flags:     []cli.Flag{mempoolFlag},
				Action: func(c *cli.Context) error {
					return withQueries(c.Context, tSettings, logger, func(q *queries) error {
						return q.balance(c.Context, c.App.Writer, c.Args().First(), c.Bool("mempool"))
					})
				},
			},
			{
				Name:      "unspent",
				Usage:     "list the unspent outputs of an address",
				ArgsUsage: "<address>",
				Flags:     []cli.Flag{mempoolFlag},
				Action: func(c *cli.Context) error {
					return withQueries(c.Context, tSettings, logger, func(q *queries) error {
						return q.unspent(c.Context, c.App.Writer, c.Args().First(), c.Bool("mempool"))
					})
				},
			},
			{
				Name:      "tx",
				Usage:     "print a confirmed transaction",
				ArgsUsage: "<txid>",
				Action: func(c *cli.Context) error {
					return withQueries(c.Context, tSettings, logger, func(q *queries) error {
						return q.tx(c.Context, c.App.Writer, c.Args().First())
					})
				},
			},
			{
				Name:  "tip",
				Usage: "print the best block",
				Action: func(c *cli.Context) error {
					return withQueries(c.Context, tSettings, logger, func(q *queries) error {
						return q.tip(c.Context, c.App.Writer)
					})
				},
			},
		},
	}
}

func start(ctx context.Context, tSettings *settings.Settings, logger ulogger.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := gocore.Config().Stats()
	logger.Infof("STATS\n%s\nVERSION\n-------\n%s (%s)\n\n", stats, version, commit)

	d, err := daemon.New(ctx, tSettings, daemon.WithLoggerFactory(func(serviceName string) ulogger.Logger {
		return logger.New(serviceName)
	}))
	if err != nil {
		return err
	}

	defer func() {
		if err := d.Close(); err != nil {
			logger.Errorf("error closing store: %v", err)
		}
	}()

	return d.Start(ctx)
}
