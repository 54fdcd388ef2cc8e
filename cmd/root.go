// sddemake [-g]
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"syscall"

	"github.com/sddekit/sddemake/internal/builder"
	"github.com/sddekit/sddemake/internal/msg"
	"github.com/spf13/cobra"
)

var knownOSes = map[string]string{
	"linux":   "Shared library gets the .dll extension, objects use -fPIC",
	"darwin":  "Shared library gets the .dylib extension, objects use -fPIC",
	"windows": "Shared library gets the .so extension, no -fPIC",
	"freebsd": "Same policy as linux",
	"netbsd":  "Same policy as linux",
	"openbsd": "Same policy as linux",
}

// debugToken turns on debug symbols when it appears as an argument of its own
const debugToken = "-g"

var (
	// rawArgs is the unparsed command line; -g is matched against it verbatim
	rawArgs       []string
	flagDebug     bool
	flagDirectory string
	flagConfig    string
	flagArch      string
	flagDryRun    bool
	flagVerbose   bool
	flagOS        EnumValue = NewEnumValue(runtime.GOOS, withHost(knownOSes, runtime.GOOS))
)

func withHost(oses map[string]string, host string) map[string]string {
	if _, ok := oses[host]; !ok {
		oses[host] = "Host platform"
	}
	return oses
}

func buildOptions() builder.Options {
	opts := builder.Options{
		Platform:   builder.Platform{OS: flagOS.Value(), Arch: flagArch},
		Debug:      flagDebug || slices.Contains(rawArgs, debugToken),
		ConfigFile: flagConfig,
	}
	if flagDryRun {
		opts.Runner = &builder.DryRunner{W: os.Stdout}
	}
	return opts
}

func doBuild(cmd *cobra.Command, args []string) {
	msg.Verbose = flagVerbose

	b, err := builder.NewBuilderInDirectory(flagDirectory, buildOptions())
	if err != nil {
		msg.Fatal("%v", err)
	}
	msg.Trace("building for %s", b.Toolchain().Platform())

	if err := b.Build(cmd.Context()); err != nil {
		msg.Fatal("%v", err)
	}

	if flagDryRun {
		msg.Info("dry run finished, %s was not written", b.Toolchain().Output())
		return
	}
	msg.Info("built %s", b.OutputPath())
}

var rootCmd = &cobra.Command{
	Use:   "sddemake [-g]",
	Short: "Build the SDDEKit shared library",
	Long: `Compiles every .c and .cpp file under lib/src and links the objects into
libSDDEKit with the platform's shared library extension.`,
	Args: cobra.ArbitraryArgs,
	// flags other than the ones below are ignored, like positional arguments
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	Run:                doBuild,
}

func init() {
	f := rootCmd.Flags()
	f.BoolVar(&flagDebug, "debug", false, "Compile with debug symbols (same as a "+debugToken+" argument anywhere)")
	f.StringVarP(&flagDirectory, "directory", "C", ".", "Project directory")
	f.StringVar(&flagConfig, "config", "", "Config file (default "+builder.ConfigFilename+" if present)")
	f.Var(&flagOS, "os", "Platform whose toolchain policy is used, one of "+flagOS.HelpString())
	f.StringVar(&flagArch, "arch", runtime.GOARCH, "Architecture exposed to config expressions")
	f.BoolVarP(&flagDryRun, "dry-run", "n", false, "Print the commands without running them")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Print every command before it runs")
	rootCmd.RegisterFlagCompletionFunc("os", flagOS.CompletionFunc())
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rawArgs = os.Args[1:]
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
