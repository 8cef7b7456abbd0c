package nim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestGameState_ApplyMove(t *testing.T) {
	type fields struct {
		Current   Player
		Remaining uint
	}
	type args struct {
		n uint
	}
	tests := []struct {
		name    string
		fields  fields
		args    args
		want    GameState
		wantErr bool
	}{
		{
			name:    "take zero",
			fields:  fields{Current: Human, Remaining: 10},
			args:    args{n: 0},
			wantErr: true,
		},
		{
			name:    "take more than three",
			fields:  fields{Current: Human, Remaining: 10},
			args:    args{n: 4},
			wantErr: true,
		},
		{
			name:    "take four with two remaining",
			fields:  fields{Current: Computer, Remaining: 2},
			args:    args{n: 4},
			wantErr: true,
		},
		{
			name:    "take more than remaining",
			fields:  fields{Current: Human, Remaining: 2},
			args:    args{n: 3},
			wantErr: true,
		},
		{
			name:    "take from empty pile",
			fields:  fields{Current: Human, Remaining: 0},
			args:    args{n: 1},
			wantErr: true,
		},
		{
			name:   "human takes one",
			fields: fields{Current: Human, Remaining: 10},
			args:   args{n: 1},
			want:   GameState{Current: Computer, Remaining: 9},
		},
		{
			name:   "computer takes three",
			fields: fields{Current: Computer, Remaining: 7},
			args:   args{n: 3},
			want:   GameState{Current: Human, Remaining: 4},
		},
		{
			name:   "take the last sticks",
			fields: fields{Current: Human, Remaining: 2},
			args:   args{n: 2},
			want:   GameState{Current: Computer, Remaining: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := GameState{
				Current:   tt.fields.Current,
				Remaining: tt.fields.Remaining,
			}
			got, err := g.ApplyMove(tt.args.n)
			if (err != nil) != tt.wantErr {
				t.Errorf("GameState.ApplyMove() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidMove))
				assert.Equal(t, "Invalid number of sticks!", err.Error())
				return
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.fields.Remaining, g.Remaining, "receiver must not change")
		})
	}
}

func TestGameState_ApplyMoveLegality(t *testing.T) {
	for _, current := range []Player{Human, Computer} {
		for remaining := uint(0); remaining <= MaxStart; remaining++ {
			for n := uint(0); n <= 5; n++ {
				g := GameState{Current: current, Remaining: remaining}
				got, err := g.ApplyMove(n)

				legal := n >= 1 && n <= 3 && n <= remaining
				if !legal {
					require.ErrorIs(t, err, ErrInvalidMove, "%s take %d", g, n)
					continue
				}
				require.NoError(t, err, "%s take %d", g, n)
				assert.Equal(t, remaining-n, got.Remaining)
				assert.NotEqual(t, g.Current, got.Current)
				assert.Equal(t, g.Current.Opponent(), got.Current)
			}
		}
	}
}

func TestGameState_IsTerminal(t *testing.T) {
	assert.True(t, GameState{Current: Human}.IsTerminal())
	assert.True(t, GameState{Current: Computer}.IsTerminal())
	for remaining := uint(1); remaining <= MaxStart; remaining++ {
		assert.False(t, GameState{Remaining: remaining}.IsTerminal())
	}
}

func TestGameState_Successors(t *testing.T) {
	for remaining := uint(0); remaining <= 8; remaining++ {
		g := GameState{Current: Computer, Remaining: remaining}
		successors := g.Successors()

		require.Len(t, successors, int(min(3, remaining)))
		for i, s := range successors {
			want, err := g.ApplyMove(uint(i + 1))
			require.NoError(t, err)
			assert.Equal(t, want, s)
		}
		assert.Equal(t, successors, g.Successors(), "successors are recomputed identically")
	}
}

func TestGameState_Winner(t *testing.T) {
	g := NewGame(2)
	_, ok := g.Winner()
	assert.False(t, ok)

	// the human empties the pile, so the computer is left as current
	g, err := g.ApplyMove(2)
	require.NoError(t, err)
	winner, ok := g.Winner()
	assert.True(t, ok)
	assert.Equal(t, Computer, winner)
}

func TestNewGame(t *testing.T) {
	g := NewGame(12)
	assert.Equal(t, Human, g.Current)
	assert.Equal(t, uint(12), g.Remaining)
	assert.Equal(t, "Human to move, 12 remaining", g.String())
}

func TestRandomStart(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	seen := map[uint]bool{}
	for i := 0; i < 2000; i++ {
		n := RandomStart(r)
		require.GreaterOrEqual(t, n, uint(MinStart))
		require.LessOrEqual(t, n, uint(MaxStart))
		seen[n] = true
	}
	assert.Len(t, seen, MaxStart-MinStart+1)
}

func TestPlayer(t *testing.T) {
	assert.Equal(t, "Human", Human.Name())
	assert.Equal(t, "Computer", Computer.Name())
	assert.False(t, Human.IsComputer())
	assert.True(t, Computer.IsComputer())
	assert.Equal(t, Computer, Human.Opponent())
	assert.Equal(t, Human, Computer.Opponent())

	text, err := Computer.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Computer", string(text))
}
