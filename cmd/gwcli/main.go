// gwcli is an interactive command line client for IoT gateways.
//
// It keeps one login credential per gateway in a session file and offers
// nested shells for the gateway, its devices and its things.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/psaab/gwcli/pkg/cli"
	"github.com/psaab/gwcli/pkg/logging"
	"github.com/psaab/gwcli/pkg/output"
	"github.com/psaab/gwcli/pkg/session"
	"github.com/psaab/gwcli/pkg/shell"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("gwcli", pflag.ContinueOnError)
	gatewayURL := flags.StringP("gateway", "g", "", "gateway URL or configured gateway name to start in")
	file := flags.StringP("file", "f", "", "read commands from `path`; the first error is fatal")
	debug := flags.BoolP("debug", "d", false, "enable debug logging")
	verbose := flags.BoolP("verbose", "v", false, "log the effective settings at startup")
	configFile := flags.StringP("config", "c", "", "session file `path` (default ~/"+session.DefaultFile+")")
	verifyTLS := flags.Bool("verify-tls", false, "verify gateway TLS certificates")
	logFile := flags.String("log-file", "", "also write a debug transcript to `path`")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gwcli [flags] [command...]\n\n%s", flags.FlagUsages())
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "gwcli: %v\n", err)
		return 2
	}

	interactive := *file == "" && term.IsTerminal(int(os.Stdin.Fd()))

	var (
		input  shell.LineReader
		stdout io.Writer = os.Stdout
		rl     *readline.Instance
	)
	switch {
	case *file != "":
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gwcli: %v\n", err)
			return 1
		}
		defer f.Close()
		input = shell.NewScriptReader(f)
	case interactive:
		var err error
		rl, err = readline.NewEx(&readline.Config{
			HistoryFile:     historyFile(),
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
			Stdin:           os.Stdin,
			Stdout:          os.Stdout,
			Stderr:          os.Stderr,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "gwcli: readline: %v\n", err)
			return 1
		}
		defer rl.Close()
		input = rl
		// Writes made while a line is being edited redraw the prompt.
		stdout = rl.Stdout()
	default:
		input = shell.NewScriptReader(os.Stdin)
	}

	logger, closeLog, err := newLogger(stdout, *debug, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gwcli: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	path := *configFile
	if path == "" {
		if path, err = session.DefaultPath(); err != nil {
			fmt.Fprintf(os.Stderr, "gwcli: %v\n", err)
			return 1
		}
	}
	sess := session.Load(path)

	if *verbose {
		logger.Info("settings",
			"session", path,
			"gateway", *gatewayURL,
			"file", *file,
			"interactive", interactive,
			"debug", *debug,
			"verify_tls", *verifyTLS,
			"log_file", *logFile)
	}

	opts := shell.Options{
		Output:      output.New(logger, stdout),
		Input:       input,
		Interactive: interactive,
		Filename:    *file,
		Width:       terminalWidth,
	}
	rt := shell.NewRuntime(opts)
	if rl != nil {
		cfg := rl.Config.Clone()
		cfg.AutoComplete = rt.Completer()
		rl.SetConfig(cfg)
	}

	// ^C while a command runs is observed once the command returns.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			rt.Interrupt()
		}
	}()

	line := strings.Join(flags.Args(), " ")
	if *gatewayURL != "" {
		line = strings.TrimSpace("gateway " + *gatewayURL + " " + line)
	}

	root := cli.NewRoot(cli.Config{
		Runtime:   rt,
		Session:   sess,
		VerifyTLS: *verifyTLS,
	})
	root.AutoLoop(context.Background(), line)
	rt.Out().Flush()

	saveSession(logger, sess)
	if rt.Failed() {
		return 1
	}
	return 0
}

// newLogger builds the console logger writing to w, teed into a debug
// transcript when logFile is set.
func newLogger(w io.Writer, debug bool, logFile string) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	var handler slog.Handler = logging.NewConsoleHandler(w, level)
	closeLog := func() {}
	if logFile != "" {
		fw, err := logging.NewFileWriter(logging.FileConfig{Path: logFile})
		if err != nil {
			return nil, nil, err
		}
		closeLog = func() { fw.Close() }
		handler = logging.NewTeeHandler(handler, logging.NewFileHandler(fw, slog.LevelDebug))
	}
	return slog.New(handler), closeLog, nil
}

func saveSession(logger *slog.Logger, sess *session.Session) {
	if err := sess.Save(); err != nil {
		logger.Error("Unable to save session", "path", sess.Path(), "err", err)
	}
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gwcli_history")
}
