package game

import (
	"strings"

	"github.com/pkg/errors"
)

type CommandKind uint8

const (
	CommandQuit CommandKind = iota + 1
	CommandToggleBot
	CommandReset
	CommandDrop
)

// Command is one decoded player action. Column is only meaningful for
// CommandDrop and is zero-based.
type Command struct {
	Kind   CommandKind
	Column int
}

var ErrUnknownCommand = errors.New("unknown command")

func Quit() Command { return Command{Kind: CommandQuit} }
func ToggleBotStrength() Command { return Command{Kind: CommandToggleBot} }
func Reset() Command { return Command{Kind: CommandReset} }
func DropInColumn(col int) Command {
	return Command{Kind: CommandDrop, Column: col}
}

func (c Command) String() string {
	switch c.Kind {
	case CommandQuit:
		return "quit"
	case CommandToggleBot:
		return "bot"
	case CommandReset:
		return "reset"
	case CommandDrop:
		return "drop"
	}
	return "unknown"
}

// ParseKey maps a single keystroke to a command: q quits, b cycles the bot,
// r resets and 1-9 drop into columns 0-8. 0 also drops into column 0.
// Other keys report false.
func ParseKey(key byte) (Command, bool) {
	switch key {
	case 'q', 'Q':
		return Quit(), true
	case 'b', 'B':
		return ToggleBotStrength(), true
	case 'r', 'R':
		return Reset(), true
	}
	if key >= '0' && key <= '9' {
		return DropInColumn(max(0, int(key)-'1')), true
	}
	return Command{}, false
}

// ParseCommand decodes the command names used on the wire.
func ParseCommand(name string, column int) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "quit":
		return Quit(), nil
	case "bot", "toggle_bot":
		return ToggleBotStrength(), nil
	case "reset":
		return Reset(), nil
	case "drop", "move":
		return DropInColumn(column), nil
	}
	return Command{}, errors.Wrapf(ErrUnknownCommand, "%q", name)
}
