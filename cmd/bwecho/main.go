// Command bwecho serves the example echo handler, or decodes raw HTTP/1.x messages read from stdin.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/bwsrv"
	"github.com/advdv/bwire/internal/example"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Version is set at build time using ldflags.
var Version = "dev"

type env struct {
	bwsrv.BaseEnvironment
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bwecho",
		Short:         "bwecho echoes HTTP/1.x requests as JSON.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newDecodeCmd())

	return root
}

func newServeCmd() *cobra.Command {
	var (
		addr     string
		logLevel string
		h2c      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the echo handler.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for name, val := range map[string]string{
				"BW_ADDR":      addr,
				"BW_LOG_LEVEL": logLevel,
			} {
				if val != "" {
					if err := os.Setenv(name, val); err != nil {
						return errors.Wrapf(err, "set %s", name)
					}
				}
			}
			if h2c {
				if err := os.Setenv("BW_ENABLE_H2C", "true"); err != nil {
					return errors.Wrap(err, "set BW_ENABLE_H2C")
				}
			}
			if os.Getenv("BW_SERVICE_NAME") == "" {
				if err := os.Setenv("BW_SERVICE_NAME", "bwecho"); err != nil {
					return errors.Wrap(err, "set BW_SERVICE_NAME")
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on (overrides BW_ADDR)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides BW_LOG_LEVEL)")
	cmd.Flags().BoolVar(&h2c, "h2c", false, "accept HTTP/2 with prior knowledge")

	return cmd
}

func runServer(ctx context.Context) error {
	app := bwsrv.NewApp[env](newHandler,
		bwsrv.WithMiddleware(
			bwsrv.WithAccessLog(),
			bwsrv.WithContentDecoding(bwire.DefaultCodings()),
			bwsrv.WithCompression(bwire.DefaultCodings(), 1024),
		),
		bwsrv.WithFx(fx.Invoke(func(l *zap.Logger) {
			l.Info("bwecho", zap.String("version", Version))
		})),
	)

	return app.Start(ctx)
}

// newHandler builds the echo handler with a request scoped logger derived from the app logger.
func newHandler(logs *zap.Logger) bwsrv.Handler {
	return bwsrv.Wrap(example.EchoHandler(), example.Middleware(logs.Named("echo")))
}

func newDecodeCmd() *cobra.Command {
	var response string

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode HTTP/1.x messages from stdin and describe them.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bwire.ParseConfig("BW_")
			if err != nil {
				return err
			}

			return decode(cmd.InOrStdin(), cmd.OutOrStdout(), cfg, response)
		},
	}

	cmd.Flags().StringVar(&response, "responses-to", "",
		"decode responses to requests with this method instead of requests")

	return cmd
}

func decode(in io.Reader, out io.Writer, cfg bwire.Config, responsesTo string) error {
	rd := bwire.NewReader(in, cfg)
	for {
		var (
			head *bwire.Head
			body *bwire.Body
			err  error
		)
		if responsesTo != "" {
			head, body, err = rd.ReadResponse(responsesTo)
		} else {
			head, body, err = rd.ReadRequest()
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "decode (%s)", bwire.CodeOf(err))
		}

		if head.IsRequest() {
			fmt.Fprintf(out, "%s %s %s\n", head.Method, head.Target, head.Version)
		} else {
			fmt.Fprintf(out, "%s %d %s\n", head.Version, head.Status, head.Reason)
		}
		for _, f := range head.Header {
			fmt.Fprintf(out, "  %s: %s\n", f.Name, f.Value)
		}

		n, err := io.Copy(io.Discard, body)
		if err != nil {
			return errors.Wrapf(err, "decode body (%s)", bwire.CodeOf(err))
		}

		fmt.Fprintf(out, "  body: %s, %d bytes\n", body.Framing().Kind, n)
		for _, f := range body.Trailer() {
			fmt.Fprintf(out, "  trailer %s: %s\n", f.Name, f.Value)
		}
	}
}
