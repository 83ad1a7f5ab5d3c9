package client

import (
	"errors"
	"strconv"
	"strings"

	"mqchat/internal/wire"
)

var errEmptyLine = errors.New("empty line")

// ParseLine turns one line of user input into a command. The verb is
// case-insensitive; the text portion of MSG and DM keeps its spacing.
func ParseLine(line string) (wire.Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return wire.Command{}, errEmptyLine
	}

	verb := line
	rest := ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		verb = line[:i]
		rest = strings.TrimSpace(line[i+1:])
	}

	switch strings.ToUpper(verb) {
	case "JOIN":
		if rest == "" || strings.ContainsRune(rest, ' ') {
			return wire.Command{}, errors.New("usage: JOIN <#channel>")
		}
		return wire.Command{Kind: wire.KindJoin, Channel: rest}, nil
	case "MSG":
		if rest == "" {
			return wire.Command{}, errors.New("usage: MSG <text>")
		}
		return wire.Command{Kind: wire.KindMsg, Text: rest}, nil
	case "DM":
		target := rest
		text := ""
		if i := strings.IndexByte(rest, ' '); i >= 0 {
			target = rest[:i]
			text = strings.TrimSpace(rest[i+1:])
		}
		if target == "" || text == "" {
			return wire.Command{}, errors.New("usage: DM <pid> <text>")
		}
		if _, err := strconv.Atoi(target); err != nil {
			return wire.Command{}, errors.New("usage: DM <pid> <text>")
		}
		return wire.Command{Kind: wire.KindDM, Target: target, Text: text}, nil
	case "WHO":
		if rest == "" || strings.ContainsRune(rest, ' ') {
			return wire.Command{}, errors.New("usage: WHO <#channel>")
		}
		return wire.Command{Kind: wire.KindWho, Channel: rest}, nil
	case "LEAVE":
		if rest != "" {
			return wire.Command{}, errors.New("usage: LEAVE")
		}
		return wire.Command{Kind: wire.KindLeave}, nil
	case "QUIT":
		if rest != "" {
			return wire.Command{}, errors.New("usage: QUIT")
		}
		return wire.Command{Kind: wire.KindQuit}, nil
	}
	return wire.Command{}, errors.New("unknown command; use JOIN, MSG, DM, WHO, LEAVE or QUIT")
}
