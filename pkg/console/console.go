// Package console reads operator commands from the terminal and forwards
// them to the event loop.
//
// The console runs on its own goroutine. It never touches loop state: lines
// are handed to a Sink, which queues them for the loop's input hook.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chzyer/readline"
)

// Sink receives console lines. loop.Loop implements it.
type Sink interface {
	Submit(line string) bool
}

// LineReader is the part of *readline.Instance the console uses.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// Config configures a Console.
type Config struct {
	// Sink receives every line that is not a console command. Required.
	Sink Sink

	// OnQuit runs when the operator types quit or closes input.
	OnQuit func()

	// Prompt defaults to "rtk> ".
	Prompt string

	Logger *slog.Logger
}

// Console forwards terminal lines to a Sink.
type Console struct {
	config Config
	lines  LineReader
	out    io.Writer
}

// New opens a readline-backed console on the process terminal.
func New(config Config) (*Console, error) {
	if config.Prompt == "" {
		config.Prompt = "rtk> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          config.Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return NewWithReader(config, rl, rl.Stdout()), nil
}

// NewWithReader builds a console over an arbitrary line source.
func NewWithReader(config Config, lines LineReader, out io.Writer) *Console {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if out == nil {
		out = io.Discard
	}
	return &Console{config: config, lines: lines, out: out}
}

// Stdout returns a writer that does not garble the prompt. Route log
// output through it while the console runs.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run reads lines until ctx is done, input ends, or the operator quits.
func (c *Console) Run(ctx context.Context) {
	defer c.lines.Close()

	for ctx.Err() == nil {
		line, err := c.lines.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			c.quit()
			return
		}

		input := strings.TrimSpace(line)
		switch strings.ToLower(input) {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(c.out, "Exiting...")
			c.quit()
			return
		}

		if !c.config.Sink.Submit(input) {
			c.config.Logger.Warn("console input dropped, loop backlog full", "line", input)
		}
	}
}

func (c *Console) quit() {
	if c.config.OnQuit != nil {
		c.config.OnQuit()
	}
}
