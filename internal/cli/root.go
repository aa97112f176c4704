package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cruciblehq/cruxenv/internal"
	"github.com/cruciblehq/cruxenv/internal/runtime"
)

// Flags shared by every command.
type Globals struct {
	Quiet       bool   `short:"q" help:"Suppress informational output."`
	Verbose     bool   `short:"v" help:"Attach source locations to log output."`
	Debug       bool   `short:"d" help:"Enable debug output."`
	Profile     string `short:"p" type:"path" help:"Profile file merged over the built-in defaults." placeholder:"PATH"`
	Socket      string `short:"s" help:"Override the default daemon socket path." placeholder:"PATH"`
	Containerd  string `help:"Containerd socket address." default:"${containerd}" env:"CRUXENV_CONTAINERD_ADDRESS" placeholder:"PATH"`
	Namespace   string `help:"Containerd namespace." default:"${namespace}" env:"CRUXENV_CONTAINERD_NAMESPACE"`
	Snapshotter string `help:"Containerd snapshotter." default:"${snapshotter}" env:"CRUXENV_SNAPSHOTTER"`
}

// Root command for the cruxenv CLI.
type CLI struct {
	Globals

	Plan    PlanCmd    `cmd:"" help:"Show the provisioning plan for a runtime version."`
	Build   BuildCmd   `cmd:"" help:"Build the test environment image."`
	Run     RunCmd     `cmd:"" help:"Run the entry command of a built image."`
	Profile ProfileCmd `cmd:"" help:"Print the effective profile."`
	Start   StartCmd   `cmd:"" help:"Start the daemon."`
	Status  StatusCmd  `cmd:"" help:"Show daemon status."`
	Stop    StopCmd    `cmd:"" help:"Stop the daemon."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	parser, err := newParser(&cli,
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cli.configureLogger()

	return kongCtx.Run()
}

// Creates the command parser with the shared bindings.
func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name(internal.Name),
		kong.Description("Provisions containerized Python test environments.\n\nBuilds an image from a profile and a runtime version, then runs the test entry command in it."),
		kong.UsageOnError(),
		kong.Vars{
			"version":     internal.VersionString(),
			"containerd":  runtime.DefaultAddress,
			"namespace":   runtime.DefaultNamespace,
			"snapshotter": runtime.DefaultSnapshotter,
		},
		kong.Bind(&cli.Globals),
	}, options...)

	return kong.New(cli, options...)
}

// Applies the logging flags and reinstalls the process logger.
//
// Flags can only enable a mode that linker flags left off.
func (g *Globals) configureLogger() {
	internal.SetDebug(g.Debug || internal.IsDebug())
	internal.SetQuiet(g.Quiet || internal.IsQuiet())
	internal.SetVerbose(g.Verbose || internal.IsVerbose())
	internal.SyncLogLevel()

	slog.SetDefault(NewLogger(os.Stderr))
}

// Returns the containerd connection options.
func (g *Globals) runtimeOptions() runtime.Options {
	return runtime.Options{
		Address:     g.Containerd,
		Namespace:   g.Namespace,
		Snapshotter: g.Snapshotter,
	}
}
