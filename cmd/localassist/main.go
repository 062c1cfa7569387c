// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the localassist command: a local AI assistant that
// routes questions to Ollama models and learns from user feedback.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/buildinfo"
	"github.com/traylinx/localassist/internal/logging"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// globalOptions are the flags accepted before the subcommand.
type globalOptions struct {
	configPath string
	stateDir   string
	readOnly   bool
	logLevel   string
}

// command is one subcommand handler. It returns the process exit code.
type command func(a *app, args []string) int

var commands = map[string]command{
	"ask":      cmdAsk,
	"compare":  cmdCompare,
	"feedback": cmdFeedback,
	"stats":    cmdStats,
	"export":   cmdExport,
	"backup":   cmdBackup,
	"restore":  cmdRestore,
	"repair":   cmdRepair,
	"list":     cmdList,
	"delete":   cmdDelete,
	"clear":    cmdClear,
	"weights":  cmdWeights,
	"models":   cmdModels,
	"serve":    cmdServe,
}

func main() {
	if wd, err := os.Getwd(); err == nil {
		if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

// run parses the global flags, builds the application and dispatches the
// subcommand.
func run(args []string, stdin io.Reader, stdout io.Writer) int {
	var opts globalOptions
	fs := flag.NewFlagSet("localassist", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.StringVar(&opts.configPath, "config", "", "Configuration file (default <state dir>/config/default.yml)")
	fs.StringVar(&opts.stateDir, "state-dir", "", "State directory (default $LOCALASSIST_STATE_DIR or ~/.localassist)")
	fs.BoolVar(&opts.readOnly, "read-only", false, "Never write to the state directory")
	fs.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	fs.Usage = func() { printUsage(stdout, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stdout, fs)
		return 2
	}
	name, cmdArgs := rest[0], rest[1:]

	switch name {
	case "version":
		fmt.Fprintf(stdout, "localassist %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return 0
	case "init":
		return cmdInit(opts, cmdArgs, stdout)
	case "help":
		printUsage(stdout, fs)
		return 0
	}

	handler, ok := commands[name]
	if !ok {
		fmt.Fprintf(stdout, "unknown command %q\n\n", name)
		printUsage(stdout, fs)
		return 2
	}

	a, err := newApp(opts, stdin, stdout)
	if err != nil {
		log.Errorf("failed to start: %v", err)
		return 1
	}
	defer a.close()
	return handler(a, cmdArgs)
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: localassist [global flags] <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  init [-force]                          Write the default configuration files")
	fmt.Fprintln(w, "  ask [options] <question>               Ask the assistant")
	fmt.Fprintln(w, "  compare [-models a,b] <question>       Ask several models and pick the best answer")
	fmt.Fprintln(w, "  feedback -query -model -response ...   Record feedback for an answer")
	fmt.Fprintln(w, "  stats                                  Show feedback and model statistics")
	fmt.Fprintln(w, "  export [-format json|jsonl]            Export training data")
	fmt.Fprintln(w, "  backup [-archive]                      Snapshot the feedback database")
	fmt.Fprintln(w, "  restore <file>                         Restore the feedback database")
	fmt.Fprintln(w, "  repair                                 Rebuild the feedback database layout")
	fmt.Fprintln(w, "  list [-conversation id]                List stored feedback")
	fmt.Fprintln(w, "  delete <id>                            Delete a feedback record or comparison")
	fmt.Fprintln(w, "  clear -confirm                         Delete all stored feedback")
	fmt.Fprintln(w, "  weights [-reset]                       Show or reset model weights")
	fmt.Fprintln(w, "  models                                 Compare the catalog with installed models")
	fmt.Fprintln(w, "  serve                                  Run the HTTP API")
	fmt.Fprintln(w, "  version                                Print version information")
	fmt.Fprintln(w, "\nGlobal flags:")
	fs.PrintDefaults()
}
