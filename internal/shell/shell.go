// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package shell is the line-oriented front end of an interactive
// reconciliation session. Each input line is one command; commands map
// onto session operations and print their outcome.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/pflag"

	"github.com/pdiddy/reconcile-engine/internal/journal"
	"github.com/pdiddy/reconcile-engine/internal/lineage"
	"github.com/pdiddy/reconcile-engine/internal/session"
)

// Historian lists every snapshot ever created, deleted ones included.
type Historian interface {
	History(ctx context.Context) ([]journal.Entry, error)
}

// CommandHandler handles one command; args exclude the command name.
type CommandHandler func(args []string) error

// errExit ends the loop without reporting an error.
var errExit = errors.New("exit")

// Config holds the shell's collaborators.
type Config struct {
	Session *session.Session
	// History is optional; without it the history command is unavailable.
	History Historian
	// Out defaults to os.Stdout.
	Out io.Writer
	// HistoryFile keeps readline history across runs when set.
	HistoryFile string
}

// Shell is the interactive command loop.
type Shell struct {
	sess        *session.Session
	history     Historian
	out         io.Writer
	historyFile string
	ctx         context.Context
	commands    map[string]CommandHandler
	help        []helpEntry

	// comparison is the last computed comparison, kept for "compare save".
	comparison *lineage.Comparison
}

type helpEntry struct {
	usage string
	desc  string
}

// New creates a shell bound to one session.
func New(cfg *Config) (*Shell, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	s := &Shell{
		sess:        cfg.Session,
		history:     cfg.History,
		out:         out,
		historyFile: cfg.HistoryFile,
		ctx:         context.Background(),
		commands:    make(map[string]CommandHandler),
	}
	s.registerCommands()
	return s, nil
}

// Run reads commands until exit, EOF or ctx is done. Ctrl+C clears the
// current line.
func (s *Shell) Run(ctx context.Context) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("reconcile> "),
		HistoryFile:       s.historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("starting line editor: %w", err)
	}
	defer rl.Close()
	s.out = rl.Stdout()

	s.printWelcome()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out, "Goodbye!")
				return nil
			}
			return err
		}

		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(s.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// Exec runs one command line. It returns nil for blank lines.
func (s *Shell) Exec(ctx context.Context, line string) error {
	args, err := splitArgs(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	s.ctx = ctx

	handler, ok := s.commands[strings.ToLower(args[0])]
	if !ok {
		return fmt.Errorf("unknown command %q: type 'help' for the command list", args[0])
	}
	return handler(args[1:])
}

func (s *Shell) register(name string, handler CommandHandler, usage, desc string, aliases ...string) {
	s.commands[name] = handler
	for _, a := range aliases {
		s.commands[a] = handler
	}
	s.help = append(s.help, helpEntry{usage: usage, desc: desc})
}

func (s *Shell) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(s.out, "\n%s\n", cyan("reconcile-engine interactive session"))
	cfg := s.sess.Config()
	fmt.Fprintf(s.out, "Global cap %d records, display cap %d.\n", cfg.GlobalCap, cfg.DisplayCap)
	fmt.Fprintln(s.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(s.out)
}

// newFlagSet returns a flag set that reports errors instead of printing
// usage.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// splitArgs splits a command line into words with shell quoting rules.
// Environment variables are not expanded. An unquoted operator such as
// ">" or "|" is rejected rather than silently ending the line.
func splitArgs(line string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command line: %w", err)
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("unexpected %q: quote arguments that contain shell operators", line[p.Position:p.Position+1])
	}
	return args, nil
}
