// Package client implements the interactive chat client: a sender loop
// reading user input, a receiver goroutine draining the private reply
// queue, and an idempotent cleanup that destroys the reply queue on exit.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"mqchat/internal/mailbox"
	"mqchat/internal/wire"
)

// Client is one chat participant process.
type Client struct {
	handle int
	lim    wire.Limits

	control mailbox.Queue
	reply   mailbox.Queue

	in  io.Reader
	out io.Writer

	closeOnce sync.Once
}

// New attaches to the server's control queue and creates the private reply
// queue. A missing control queue means the server is not running.
func New(tr mailbox.Transport, controlKey string, handle int, lim wire.Limits, in io.Reader, out io.Writer) (*Client, error) {
	control, err := tr.Open(controlKey)
	if err != nil {
		return nil, fmt.Errorf("attach control queue (is the server running?): %w", err)
	}
	reply, err := tr.CreatePrivate()
	if err != nil {
		return nil, fmt.Errorf("create reply queue: %w", err)
	}
	return &Client{
		handle:  handle,
		lim:     lim,
		control: control,
		reply:   reply,
		in:      in,
		out:     out,
	}, nil
}

// Run registers with the server and runs the sender loop until the user
// quits, input ends, the reply queue is destroyed, or ctx is cancelled.
// Cleanup happens exactly once on every path.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()

	if err := c.send(wire.Command{Kind: wire.KindRegister}); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		c.receive()
	}()

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- c.senderLoop()
	}()

	select {
	case <-ctx.Done():
		// Interrupted; tell the server we are gone before cleanup.
		_ = c.send(wire.Command{Kind: wire.KindQuit})
		return nil
	case <-recvDone:
		return nil
	case err := <-sendDone:
		return err
	}
}

// Close destroys the private reply queue, which also unblocks the
// receiver. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.reply.Remove()
	})
}

func (c *Client) send(cmd wire.Command) error {
	cmd.Sender = c.handle
	cmd.Reply = c.reply.ID()
	data, err := wire.EncodeCommand(cmd, c.lim)
	if err != nil {
		return err
	}
	return c.control.Send(mailbox.TagCommand, data)
}

// senderLoop reads lines until QUIT or end of input. Malformed lines are
// rejected locally with the usage hint.
func (c *Client) senderLoop() error {
	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			// Input closed; treat it like a quit.
			_ = c.send(wire.Command{Kind: wire.KindQuit})
			return scanner.Err()
		}

		cmd, err := ParseLine(scanner.Text())
		if err != nil {
			if !errors.Is(err, errEmptyLine) {
				fmt.Fprintf(c.out, "%v\n", err)
			}
			continue
		}

		if err := c.send(cmd); err != nil {
			if errors.Is(err, mailbox.ErrFull) {
				fmt.Fprintln(c.out, "Server busy, command dropped. Try again.")
				continue
			}
			return fmt.Errorf("send command: %w", err)
		}
		if cmd.Kind == wire.KindQuit {
			return nil
		}
	}
}

// receive drains the private queue, printing each record over the prompt.
// It returns when the queue is destroyed.
func (c *Client) receive() {
	for {
		msg, err := c.reply.Receive(mailbox.TagBroadcast)
		if err != nil {
			return
		}
		b, err := wire.DecodeBroadcast(msg.Data)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.out, "\r%s: %s\n> ", b.Sender, b.Text)
	}
}
