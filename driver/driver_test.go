package driver

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkahng/nim"
)

func lines(s ...string) string {
	return strings.Join(s, "\n") + "\n"
}

func TestPlay_HumanAlwaysTakesOne(t *testing.T) {
	var out bytes.Buffer
	session := nim.NewSession(6, nil)
	d := New(session, &out)

	err := Play(context.Background(), strings.NewReader("1\n1\n1\n"), d)
	require.NoError(t, err)

	want := lines(
		"Total sticks: 6",
		"Current player: Human",
		"How many sticks do you want to take?",
		"Total sticks: 5",
		"Current player: Computer",
		"Computer takes: 1 sticks",
		"Total sticks: 4",
		"Current player: Human",
		"How many sticks do you want to take?",
		"Total sticks: 3",
		"Current player: Computer",
		"Computer takes: 2 sticks",
		"Total sticks: 1",
		"Current player: Human",
		"How many sticks do you want to take?",
		"Game over!",
		"Winner: Computer",
	)
	assert.Equal(t, want, out.String())

	var taken uint
	for _, m := range session.History() {
		taken += m.Take
	}
	assert.Equal(t, uint(6), taken)
}

func TestHandle_InvalidMoves(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "zero", input: "0", want: "Invalid number of sticks!"},
		{name: "too many", input: "4", want: "Invalid number of sticks!"},
		{name: "too large for uint", input: "99999999999999999999", want: "Invalid number of sticks!"},
		{name: "not a number", input: "two", want: "Invalid input!"},
		{name: "negative", input: "-1", want: "Invalid input!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			session := nim.NewSession(2, nil)
			d := New(session, &out)
			require.NoError(t, d.Start())
			out.Reset()

			done, err := d.Handle(tt.input)
			require.NoError(t, err)
			assert.False(t, done)
			assert.Equal(t, lines(
				tt.want,
				"Total sticks: 2",
				"Current player: Human",
				"How many sticks do you want to take?",
			), out.String())
			assert.Equal(t, nim.NewGame(2), session.State())
		})
	}
}

func TestHandle_HumanEmptiesPile(t *testing.T) {
	var out bytes.Buffer
	d := New(nim.NewSession(3, nil), &out)
	require.NoError(t, d.Start())
	out.Reset()

	done, err := d.Handle(" 3 ")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, lines("Game over!", "Winner: Computer"), out.String())

	done, err = d.Handle("1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestPlay_UnexpectedEOF(t *testing.T) {
	d := New(nim.NewSession(10, nil), io.Discard)
	err := Play(context.Background(), strings.NewReader("1\n"), d)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestPlay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := New(nim.NewSession(10, nil), io.Discard)
	err := Play(ctx, strings.NewReader("1\n"), d)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTermStyler_Ascii(t *testing.T) {
	output := termenv.NewOutput(io.Discard, termenv.WithProfile(termenv.Ascii))
	style := TermStyler(output)
	for _, kind := range []Kind{KindStatus, KindPrompt, KindComputer, KindError, KindResult} {
		assert.Equal(t, "Game over!", style(kind, "Game over!"))
	}
}

func TestTermStyler_ANSI(t *testing.T) {
	output := termenv.NewOutput(io.Discard, termenv.WithProfile(termenv.ANSI))
	style := TermStyler(output)
	assert.Equal(t, "Total sticks: 4", style(KindStatus, "Total sticks: 4"))
	assert.NotEqual(t, "Invalid input!", style(KindError, "Invalid input!"))
	assert.Contains(t, style(KindError, "Invalid input!"), "Invalid input!")
}
