package game

import (
	"strings"

	"github.com/pkg/errors"
)

type Difficulty uint8

const (
	Off Difficulty = iota
	Easy
	Normal
	Difficult
	Expert
)

var difficultyNames = [...]string{
	Off:       "off",
	Easy:      "easy",
	Normal:    "normal",
	Difficult: "difficult",
	Expert:    "expert",
}

var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Next cycles Off, Easy, Normal, Difficult, Expert and back to Off.
func (d Difficulty) Next() Difficulty {
	switch d {
	case Off:
		return Easy
	case Easy:
		return Normal
	case Normal:
		return Difficult
	case Difficult:
		return Expert
	}
	return Off
}

func (d Difficulty) String() string {
	if int(d) < len(difficultyNames) {
		return difficultyNames[d]
	}
	return "unknown"
}

func ParseDifficulty(s string) (Difficulty, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Off, nil
	}
	for d, name := range difficultyNames {
		if name == s {
			return Difficulty(d), nil
		}
	}
	return Off, errors.Wrapf(ErrUnknownDifficulty, "%q", s)
}

func (d Difficulty) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Difficulty) UnmarshalText(text []byte) error {
	parsed, err := ParseDifficulty(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
