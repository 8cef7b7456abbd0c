// Package driver runs the line-based prompt/response exchange between a
// human and a nim session. The same exchange is used on a terminal and over
// a WebSocket connection, one line per message.
package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tkahng/nim"
)

const (
	MsgPrompt       = "How many sticks do you want to take?"
	MsgInvalidInput = "Invalid input!"
	MsgGameOver     = "Game over!"
)

// Kind classifies an output line so a Styler can decorate it.
type Kind int

const (
	KindStatus Kind = iota
	KindPrompt
	KindComputer
	KindError
	KindResult
)

// Styler decorates a line before it is written.
type Styler func(kind Kind, line string) string

func plain(_ Kind, line string) string {
	return line
}

type Option func(d *Driver)

func WithStyler(style Styler) Option {
	return func(d *Driver) {
		if style != nil {
			d.style = style
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// Driver prints the game to out and feeds human input lines to the session.
// The computer's replies are played as soon as it is the computer's turn.
type Driver struct {
	session nim.SessionInterface
	out     io.Writer
	style   Styler
	logger  zerolog.Logger
}

func New(session nim.SessionInterface, out io.Writer, options ...Option) *Driver {
	d := &Driver{
		session: session,
		out:     out,
		style:   plain,
		logger:  zerolog.Nop(),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Start prints the opening turn.
func (d *Driver) Start() error {
	return d.advance()
}

// Done reports whether the game has ended.
func (d *Driver) Done() bool {
	return d.session.Finished()
}

// Handle takes one line of human input and prints everything up to the next
// prompt, or the result once the game is over.
func (d *Driver) Handle(line string) (done bool, err error) {
	if d.session.Finished() {
		return true, nil
	}

	n, err := strconv.ParseUint(strings.TrimSpace(line), 10, 0)
	if err != nil {
		d.logger.Debug().Str("input", line).Msg("unparseable move")
		msg := MsgInvalidInput
		if errors.Is(err, strconv.ErrRange) {
			// a number, just far too many sticks
			msg = nim.ErrInvalidMove.Error()
		}
		if err := d.println(KindError, msg); err != nil {
			return false, err
		}
		return false, d.advance()
	}

	switch err := d.session.Take(uint(n)); {
	case err == nil:
	case errors.Is(err, nim.ErrInvalidMove):
		d.logger.Debug().Uint64("take", n).Msg("rejected move")
		if err := d.println(KindError, err.Error()); err != nil {
			return false, err
		}
	case errors.Is(err, nim.ErrGameOver):
		return true, nil
	default:
		return false, fmt.Errorf("take %d: %w", n, err)
	}

	if err := d.advance(); err != nil {
		return false, err
	}
	return d.session.Finished(), nil
}

// advance prints the turn header, plays computer turns and stops at the
// next human prompt or the end of the game.
func (d *Driver) advance() error {
	for {
		state := d.session.State()
		if state.IsTerminal() {
			return d.printResult()
		}

		if err := d.printf(KindStatus, "Total sticks: %d", state.Remaining); err != nil {
			return err
		}
		if err := d.printf(KindStatus, "Current player: %s", state.Current.Name()); err != nil {
			return err
		}

		if !state.Current.IsComputer() {
			return d.println(KindPrompt, MsgPrompt)
		}

		n, err := d.session.PlayComputer()
		if err != nil {
			return fmt.Errorf("computer move: %w", err)
		}
		if err := d.printf(KindComputer, "Computer takes: %d sticks", n); err != nil {
			return err
		}
	}
}

func (d *Driver) printResult() error {
	winner, _ := d.session.Winner()
	if err := d.println(KindResult, MsgGameOver); err != nil {
		return err
	}
	return d.printf(KindResult, "Winner: %s", winner.Name())
}

func (d *Driver) printf(kind Kind, format string, args ...any) error {
	return d.println(kind, fmt.Sprintf(format, args...))
}

func (d *Driver) println(kind Kind, line string) error {
	if _, err := io.WriteString(d.out, d.style(kind, line)+"\n"); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// Play runs a whole game reading one move per line from in.
func Play(ctx context.Context, in io.Reader, d *Driver) error {
	if err := d.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for !d.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return io.ErrUnexpectedEOF
		}
		if _, err := d.Handle(scanner.Text()); err != nil {
			return err
		}
	}
	return nil
}
