// Command tts runs the WLF fit and time-temperature superposition workflow
// from the command line.
//
// Subcommands:
//
//	tts fit      -project p.yaml [-samples 0:1.93,10:1.3,...] [-ref 40] [-top 10] [-export dir]
//	tts estimate -project p.yaml [-c1 17 -c2 52] [-new-ref 20] [-out table.csv]
//	tts shift    -project p.yaml [-table table.csv] [-in data.csv] [-out dir] [-flat master.csv]
//
// A project file (YAML) holds the values shared by the subcommands; flags
// override it:
//
//	referenceTemp: 40
//	newReferenceTemp: 20
//	samples:
//	  - {temp: 0, log_at: 1.93}
//	  - {temp: 10, log_at: 1.3}
//	  - {temp: 20, log_at: 0.9}
//	  - {temp: 40, log_at: 0}
//	measurement: data/run.csv
//	table: out/aT.csv
//	output: out
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// version is set via ldflags at build time
var version = "dev"

// errUsage marks errors that should print usage and exit 2.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	case errors.Is(err, errUsage):
		if err != errUsage {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "fit":
		return runFit(ctx, rest, stdout, stderr)
	case "estimate":
		return runEstimate(ctx, rest, stdout, stderr)
	case "shift":
		return runShift(ctx, rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version)
		return nil
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(stderr)
		return errUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage:\n  %s <fit|estimate|shift|version> [flags]\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, "Run a subcommand with -h for its flags.")
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	Project string
	Verbose bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.Project, "project", "", "YAML project file")
	fs.BoolVar(&c.Verbose, "v", false, "Verbose (debug) logging")
}

func (c *commonFlags) logger(stderr io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// project loads the project file, or an empty project when none was given.
func (c *commonFlags) project() (*Project, error) {
	if c.Project == "" {
		return &Project{}, nil
	}
	return LoadProject(c.Project)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  tts %s [flags]\n\nFlags:\n", name)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses args into fs. Parse errors have already been printed by
// the flag package, so they come back as a bare errUsage.
func parseArgs(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return nil
}

// visited reports which flags were set explicitly on fs.
func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
