// Package cli implements the recstore command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/recstore"
	"github.com/unkn0wn-root/recstore/codec"
	"github.com/unkn0wn-root/recstore/config"
	zaplog "github.com/unkn0wn-root/recstore/log/zap"
	"github.com/unkn0wn-root/recstore/transport"
)

var (
	version = "dev"
	commit  = "unknown"
)

// DialFunc opens the inner transport described by f.
type DialFunc func(ctx context.Context, f config.File) (transport.Transport, error)

type app struct {
	out  io.Writer
	dial DialFunc

	cfgPath   string
	verbose   bool
	namespace string

	// set by open
	file config.File
	log  *zap.Logger
	tr   transport.Transport
}

// Execute runs the CLI against Redis and exits non-zero on error.
func Execute() {
	if err := NewRootCmd(os.Stdout, dialRedis).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. dial opens the record store.
func NewRootCmd(out io.Writer, dial DialFunc) *cobra.Command {
	a := &app{out: out, dial: dial}
	root := &cobra.Command{
		Use:   "recstore",
		Short: "Read and update generation-versioned records",
		Long: `recstore talks to a Redis-backed record store. Every record carries a
generation; writes can be made conditional on it, and incr runs an
optimistic read-modify-write with retries.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	root.SetOut(out)
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", "", "config file path (YAML)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVarP(&a.namespace, "namespace", "n", "", "override the configured namespace")

	root.AddCommand(
		newGetCmd(a),
		newPutCmd(a),
		newDeleteCmd(a),
		newTouchCmd(a),
		newBatchCmd(a),
		newIncrCmd(a),
	)
	// cobra skips post-run hooks when RunE fails, so release inside RunE.
	for _, c := range root.Commands() {
		c.RunE = a.closing(c.RunE)
	}
	return root
}

// closing wraps run so the transport opened by PersistentPreRunE is closed on
// every exit path.
func (a *app) closing(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		return errors.Join(err, a.close(cmd.Context()))
	}
}

func (a *app) open(ctx context.Context) error {
	f, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.namespace != "" {
		f.Namespace = a.namespace
	}
	if a.verbose {
		f.Log.Level = "debug"
	}
	if a.log, err = newZap(f.Log); err != nil {
		return err
	}
	inner, err := a.dial(ctx, f)
	if err != nil {
		return err
	}
	if a.tr, err = withCache(ctx, f, inner); err != nil {
		_ = inner.Close(ctx)
		return err
	}
	a.file = f
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.tr == nil {
		return nil
	}
	tr := a.tr
	a.tr = nil
	return tr.Close(ctx)
}

// store builds a Store[V] over the shared transport. The app keeps ownership
// of the transport.
func storeFor[V any](a *app, c codec.Codec[V]) (recstore.Store[V], error) {
	cfg := a.file.Client
	if a.file.MaxValueBytes > 0 {
		c = codec.LimitCodec[V]{Inner: c, MaxDecode: a.file.MaxValueBytes}
	}
	return recstore.New[V](recstore.Options[V]{
		Transport: a.tr,
		Codec:     c,
		Logger:    zaplog.New(a.log),
		Config:    &cfg,
	})
}

func newZap(l config.Log) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if l.Level != "" {
		lv, err := zapcore.ParseLevel(l.Level)
		if err != nil {
			return nil, err
		}
		level = lv
	}
	var zc zap.Config
	if strings.EqualFold(l.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
