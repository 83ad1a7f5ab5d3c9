// Package wire defines the records exchanged between chat clients and the
// server, and the size caps applied to their fields.
package wire

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a client command.
type Kind string

const (
	KindRegister Kind = "REGISTER"
	KindJoin     Kind = "JOIN"
	KindMsg      Kind = "MSG"
	KindDM       Kind = "DM"
	KindWho      Kind = "WHO"
	KindLeave    Kind = "LEAVE"
	KindQuit     Kind = "QUIT"
)

// Valid reports whether k names a known command.
func (k Kind) Valid() bool {
	switch k {
	case KindRegister, KindJoin, KindMsg, KindDM, KindWho, KindLeave, KindQuit:
		return true
	}
	return false
}

// ServerLabel is the sender label on server-originated replies and notices.
const ServerLabel = "SERVER"

// Limits caps the string fields of wire records.
type Limits struct {
	MaxText int
	MaxName int
}

// Command is one client-to-server record on the control queue.
type Command struct {
	Kind    Kind   `json:"kind"`
	Sender  int    `json:"sender"`
	Reply   string `json:"reply"`
	Channel string `json:"channel,omitempty"`
	Target  string `json:"target,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Broadcast is one server-to-client record on a private reply queue. The
// sender label is display-ready; the client prints it verbatim.
type Broadcast struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// EncodeCommand serializes cmd, truncating bounded fields to the limits.
func EncodeCommand(cmd Command, lim Limits) ([]byte, error) {
	cmd.Channel = Truncate(cmd.Channel, lim.MaxName)
	cmd.Target = Truncate(cmd.Target, lim.MaxName)
	cmd.Text = Truncate(cmd.Text, lim.MaxText)
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return data, nil
}

// DecodeCommand parses one control-queue record.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// EncodeBroadcast serializes b, truncating bounded fields to the limits.
func EncodeBroadcast(b Broadcast, lim Limits) ([]byte, error) {
	b.Sender = Truncate(b.Sender, lim.MaxName)
	b.Text = Truncate(b.Text, lim.MaxText)
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode broadcast: %w", err)
	}
	return data, nil
}

// DecodeBroadcast parses one reply-queue record.
func DecodeBroadcast(data []byte) (Broadcast, error) {
	var b Broadcast
	if err := json.Unmarshal(data, &b); err != nil {
		return Broadcast{}, fmt.Errorf("decode broadcast: %w", err)
	}
	return b, nil
}

// Truncate clips s to at most max bytes without splitting a UTF-8 rune.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// ChannelLabel formats the sender label for channel messages.
func ChannelLabel(channel string, sender int) string {
	return fmt.Sprintf("[%s] User %d", channel, sender)
}

// DMLabel formats the sender label for direct messages.
func DMLabel(sender int) string {
	return fmt.Sprintf("(DM from %d)", sender)
}
