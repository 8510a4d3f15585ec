// Command scoredit edits scores kept in a SQLite database: it places
// notes and rests measure by measure, imports Encore files and exports
// LilyPond and MIDI.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/juju/loggo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go-scoredit/config"
)

var logger = loggo.GetLogger("scoredit")

var (
	configPath string
	debug      bool

	// cfg is set by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scoredit",
	Short: "Measure-based score editor",
	Long: `scoredit keeps scores as tracks of measures and edits them one value
at a time. A value that does not fit in the measure under the cursor is
split into tied notes continued in the following measures.

Documents and their revisions live in a SQLite database (see --config).`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scoredit.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at DEBUG level and print full error chains")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fault.Wrap(err, ftag.With(ftag.InvalidArgument))
	})
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return fault.Wrap(err,
			fmsg.WithDesc("loading config", fmt.Sprintf("Cannot load configuration from %s", configPath)),
			ftag.With(ftag.InvalidArgument))
	}
	spec := c.LoggerSpec()
	if debug {
		spec = "<root>=DEBUG"
	}
	loggo.DefaultContext().ResetLoggerLevels()
	if err := loggo.ConfigureLoggers(spec); err != nil {
		return fault.Wrap(err,
			fmsg.WithDesc("configuring loggers", fmt.Sprintf("Bad log level %q", c.LogLevel)),
			ftag.With(ftag.InvalidArgument))
	}
	cfg = c
	logger.Debugf("config %s: data %s, resolution %d, mode %s", configPath, c.DataPath, c.Resolution, c.DefaultMode)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line args and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	msg := fmsg.GetIssue(err)
	if msg == "" || debug {
		msg = err.Error()
	}
	fmt.Fprintf(stderr, "scoredit: %s\n", msg)
	return exitCode(err)
}

func exitCode(err error) int {
	switch ftag.Get(err) {
	case ftag.InvalidArgument:
		return 2
	case ftag.NotFound:
		return 3
	case ftag.AlreadyExists:
		return 4
	}
	return 1
}

// resetFlags restores every flag of cmd and its subcommands to its
// default, so that run can be called more than once.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
