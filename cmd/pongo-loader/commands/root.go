package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-pongo/internal/config"
	"github.com/moffa90/go-pongo/internal/logx"
	"github.com/moffa90/go-pongo/loader"
	"github.com/moffa90/go-pongo/usb"
)

// Bus is a usb.Bus owning host resources.
type Bus interface {
	usb.Bus
	io.Closer
}

// openBus creates the host USB stack. Replaced in tests.
var openBus = func(cfg config.Config) (Bus, error) {
	return usb.NewLibUSB(
		usb.WithPollInterval(cfg.PollInterval),
		usb.WithTransferTimeout(cfg.Timeout),
	)
}

type runIDKey struct{}

// WithRunID attaches the id logged with every line of this run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// NewRootCmd builds the pongo-loader command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pongo-loader <module-file-path>",
		Short:         "Upload a module to a pongoOS device and boot it",
		Long:          "pongo-loader waits for a pongoOS device, uploads a module, then runs modload, stalker-prep and bootx.",
		Args:          exactModulePath,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.SetFlagErrorFunc(flagError)
	config.AddFlags(cmd.Flags())
	return cmd
}

// Execute runs the root command with args.
func Execute(ctx context.Context, args []string) error {
	if ctx == nil {
		return errorx.IllegalArgument.New("context is required")
	}

	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func exactModulePath(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		fmt.Fprintf(cmd.OutOrStdout(), "usage: %s\n", cmd.UseLine())
		return loader.ArgumentError.New("expected 1 argument, got %d", len(args))
	}
	return nil
}

func flagError(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.OutOrStdout(), err)
	return loader.ArgumentError.Wrap(err, "parse flags")
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), err)
		return err
	}

	fields := map[string]string{}
	if id := runID(ctx); id != "" {
		fields["run"] = id
	}
	logConfig := logx.DefaultConfig()
	logConfig.Level = cfg.LogLevel
	logConfig.File = cfg.LogFile
	logger, closer, err := logx.New(logConfig, cmd.OutOrStdout(), fields)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), err)
		return err
	}
	defer func() { _ = closer.Close() }()

	if err := boot(ctx, cfg, &logger, args[0]); err != nil {
		logger.Error().Msg(err.Error())
		return err
	}
	return nil
}

func boot(ctx context.Context, cfg config.Config, logger *zerolog.Logger, path string) error {
	bus, err := openBus(cfg)
	if err != nil {
		return loader.InitError.Wrap(err, "initialize USB")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Debug().Err(err).Msg("close USB context")
		}
	}()

	l := loader.New(bus,
		loader.WithLogger(logx.Adapt(logger)),
		loader.WithSettleDelay(cfg.SettleDelay),
	)
	return l.Run(ctx, path)
}
