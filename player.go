package nim

import "fmt"

// Player identifies who is to move. There are exactly two of them.
type Player uint8

const (
	Human Player = iota
	Computer
)

var playerNames = [...]string{
	Human:    "Human",
	Computer: "Computer",
}

func (p Player) Name() string {
	if int(p) < len(playerNames) {
		return playerNames[p]
	}
	return fmt.Sprintf("Player(%d)", uint8(p))
}

func (p Player) String() string {
	return p.Name()
}

func (p Player) IsComputer() bool {
	return p == Computer
}

// Opponent returns the other fixed identity.
func (p Player) Opponent() Player {
	if p == Computer {
		return Human
	}
	return Computer
}

// MarshalText lets players appear by name in JSON payloads and logs.
func (p Player) MarshalText() ([]byte, error) {
	return []byte(p.Name()), nil
}
