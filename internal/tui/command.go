package tui

import (
	"fmt"
	"strconv"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	switch cmd.Name {
	case "q", "quit", "exit":
		cmd.Name = "quit"
	case "h", "help":
		cmd.Name = "help"
	case "s", "sessions", "ls":
		cmd.Name = "sessions"
	}
	return cmd
}

// IntArg parses Args as a single positive integer.
func (c Command) IntArg() (int, error) {
	n, err := strconv.Atoi(c.Args)
	if err != nil || n < 1 {
		return 0, fmt.Errorf(":%s needs a positive number, got %q", c.Name, c.Args)
	}
	return n, nil
}

// BoolArg parses yes/no style Args.
func (c Command) BoolArg() (bool, error) {
	switch strings.ToLower(c.Args) {
	case "y", "yes", "on", "true":
		return true, nil
	case "n", "no", "off", "false":
		return false, nil
	}
	return false, fmt.Errorf(":%s needs yes or no, got %q", c.Name, c.Args)
}
