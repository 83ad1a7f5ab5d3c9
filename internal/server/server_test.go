package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mqchat/internal/config"
	"mqchat/internal/mailbox"
	"mqchat/internal/metrics"
	"mqchat/internal/wire"
)

// Tests run one worker by default so deliveries to a single client arrive
// in enqueue order; inter-job order across a pool is not guaranteed.
func testConfig() config.Config {
	return config.Config{
		Queue: config.QueueConfig{
			ControlKey: "1234",
			Transport:  "memory",
			Depth:      64,
		},
		Server: config.ServerConfig{
			Workers:           1,
			InactivityTimeout: time.Minute,
			MonitorInterval:   time.Hour,
			DefaultChannel:    "#general",
		},
		Limits: config.LimitsConfig{
			MaxText:     256,
			MaxName:     32,
			MaxClients:  10,
			MaxChannels: 5,
		},
	}
}

func startServer(t *testing.T, cfg config.Config) (*Server, *mailbox.Broker) {
	t.Helper()

	broker := mailbox.NewBroker(cfg.Queue.Depth)
	srv, err := New(cfg, zap.NewNop(), metrics.NewRegistry(), broker)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	return srv, broker
}

type testClient struct {
	t      *testing.T
	handle int
	ctrl   mailbox.Queue
	reply  mailbox.Queue
	lim    wire.Limits
}

func newTestClient(t *testing.T, b *mailbox.Broker, handle int) *testClient {
	t.Helper()

	ctrl, err := b.Open("1234")
	require.NoError(t, err)
	reply, err := b.CreatePrivate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = reply.Remove() })

	return &testClient{
		t:      t,
		handle: handle,
		ctrl:   ctrl,
		reply:  reply,
		lim:    wire.Limits{MaxText: 256, MaxName: 32},
	}
}

func (c *testClient) send(cmd wire.Command) {
	c.t.Helper()

	cmd.Sender = c.handle
	cmd.Reply = c.reply.ID()
	data, err := wire.EncodeCommand(cmd, c.lim)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ctrl.Send(mailbox.TagCommand, data))
}

// recv waits for the next broadcast on the client's reply queue.
func (c *testClient) recv() wire.Broadcast {
	c.t.Helper()

	type result struct {
		msg mailbox.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := c.reply.Receive(mailbox.TagBroadcast)
		ch <- result{msg, err}
	}()

	select {
	case r := <-ch:
		require.NoError(c.t, r.err)
		b, err := wire.DecodeBroadcast(r.msg.Data)
		require.NoError(c.t, err)
		return b
	case <-time.After(2 * time.Second):
		c.t.Fatal("no broadcast arrived in time")
		return wire.Broadcast{}
	}
}

func (c *testClient) expect(sender, text string) {
	c.t.Helper()

	b := c.recv()
	assert.Equal(c.t, sender, b.Sender)
	assert.Equal(c.t, text, b.Text)
}

// expectSilence asserts nothing arrives within the window.
func (c *testClient) expectSilence() {
	c.t.Helper()

	ch := make(chan wire.Broadcast, 1)
	go func() {
		msg, err := c.reply.Receive(mailbox.TagBroadcast)
		if err != nil {
			return
		}
		if b, err := wire.DecodeBroadcast(msg.Data); err == nil {
			ch <- b
		}
	}()

	select {
	case b := <-ch:
		c.t.Fatalf("unexpected broadcast: [%s] %s", b.Sender, b.Text)
	case <-time.After(150 * time.Millisecond):
	}
}

func (c *testClient) register() {
	c.t.Helper()

	c.send(wire.Command{Kind: wire.KindRegister})
	c.expect(wire.ServerLabel,
		fmt.Sprintf("Welcome User %d! Use JOIN <#channel> or WHO <#channel>.", c.handle))
}

func (c *testClient) join(channel string, members int) {
	c.t.Helper()

	c.send(wire.Command{Kind: wire.KindJoin, Channel: channel})
	c.expect(wire.ServerLabel,
		fmt.Sprintf("You have joined %s. Total members: %d", channel, members))
	c.expect(wire.ServerLabel,
		fmt.Sprintf("User %d has joined the channel.", c.handle))
}

func TestEcho(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	a.register()
	a.join("#r", 1)

	a.send(wire.Command{Kind: wire.KindMsg, Text: "hello"})
	a.expect("[#r] User 101", "hello")
}

func TestTwoPartyBroadcast(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	b := newTestClient(t, broker, 102)
	a.register()
	a.join("#r", 1)
	b.register()
	b.join("#r", 2)
	a.expect(wire.ServerLabel, "User 102 has joined the channel.")

	a.send(wire.Command{Kind: wire.KindMsg, Text: "hi"})
	a.expect("[#r] User 101", "hi")
	b.expect("[#r] User 101", "hi")
}

func TestDirectMessage(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	b := newTestClient(t, broker, 102)
	a.register()
	b.register()

	a.send(wire.Command{Kind: wire.KindDM, Target: "102", Text: "ping"})
	a.expect(wire.ServerLabel, "DM sent to 102.")
	b.expect("(DM from 101)", "ping")
}

func TestDirectMessageOffline(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	b := newTestClient(t, broker, 102)
	a.register()
	b.register()

	a.send(wire.Command{Kind: wire.KindDM, Target: "99999", Text: "ping"})
	a.expect(wire.ServerLabel, "Error: User PID 99999 is not online.")
	b.expectSilence()
}

func TestWho(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	b := newTestClient(t, broker, 102)
	c := newTestClient(t, broker, 103)
	a.register()
	a.join("#r", 1)
	b.register()
	b.join("#r", 2)
	c.register()
	c.join("#r", 3)
	a.expect(wire.ServerLabel, "User 102 has joined the channel.")
	a.expect(wire.ServerLabel, "User 103 has joined the channel.")
	b.expect(wire.ServerLabel, "User 103 has joined the channel.")

	a.send(wire.Command{Kind: wire.KindWho, Channel: "#r"})
	a.expect(wire.ServerLabel, "Members of #r (3): 101, 102, 103")
}

func TestWhoMissingChannel(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	a.register()

	a.send(wire.Command{Kind: wire.KindWho, Channel: "#nowhere"})
	a.expect(wire.ServerLabel, "Error: Channel #nowhere does not exist.")
}

func TestRoomReaping(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	a.register()
	a.join("#temp", 1)

	a.send(wire.Command{Kind: wire.KindLeave})
	a.expect(wire.ServerLabel, "You have left #temp.")

	a.send(wire.Command{Kind: wire.KindWho, Channel: "#temp"})
	a.expect(wire.ServerLabel, "Error: Channel #temp does not exist.")

	// The default channel survives even when empty.
	a.send(wire.Command{Kind: wire.KindWho, Channel: "#general"})
	a.expect(wire.ServerLabel, "Members of #general (0): ")
}

func TestChannelSwitchAnnouncesDeparture(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	b := newTestClient(t, broker, 102)
	a.register()
	a.join("#r", 1)
	b.register()
	b.join("#r", 2)
	a.expect(wire.ServerLabel, "User 102 has joined the channel.")

	a.send(wire.Command{Kind: wire.KindJoin, Channel: "#s"})
	a.expect(wire.ServerLabel, "You have joined #s. Total members: 1")
	a.expect(wire.ServerLabel, "User 101 has joined the channel.")
	b.expect(wire.ServerLabel, "User 101 left the channel (Joined #s).")
}

func TestRejoinSameChannelIsSilent(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	b := newTestClient(t, broker, 102)
	a.register()
	a.join("#r", 1)
	b.register()
	b.join("#r", 2)
	a.expect(wire.ServerLabel, "User 102 has joined the channel.")

	b.send(wire.Command{Kind: wire.KindJoin, Channel: "#r"})
	b.expect(wire.ServerLabel, "You have joined #r. Total members: 2")
	a.expectSilence()
}

func TestRoomLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxChannels = 2 // default channel takes one slot
	_, broker := startServer(t, cfg)

	a := newTestClient(t, broker, 101)
	a.register()
	a.join("#one", 1)

	a.send(wire.Command{Kind: wire.KindJoin, Channel: "#two"})
	a.expect(wire.ServerLabel, "Error: Cannot join/create channel, room limit reached.")
}

func TestMsgOutsideChannel(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	a.register()

	a.send(wire.Command{Kind: wire.KindMsg, Text: "anyone?"})
	a.expect(wire.ServerLabel, "Error: You are not in a channel. Use JOIN <#channel>.")

	a.send(wire.Command{Kind: wire.KindLeave})
	a.expect(wire.ServerLabel, "Error: You are not currently in any channel.")
}

func TestQuitAnnouncesDeparture(t *testing.T) {
	_, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	b := newTestClient(t, broker, 102)
	a.register()
	a.join("#r", 1)
	b.register()
	b.join("#r", 2)
	a.expect(wire.ServerLabel, "User 102 has joined the channel.")

	a.send(wire.Command{Kind: wire.KindQuit})
	a.expect(wire.ServerLabel, "You have been disconnected. Goodbye.")
	b.expect(wire.ServerLabel, "User 101 has left the chat.")

	// The slot is gone; further commands from A are dropped.
	a.send(wire.Command{Kind: wire.KindMsg, Text: "ghost"})
	a.expectSilence()
}

func TestServerFull(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxClients = 2
	_, broker := startServer(t, cfg)

	a := newTestClient(t, broker, 101)
	b := newTestClient(t, broker, 102)
	c := newTestClient(t, broker, 103)
	a.register()
	b.register()

	c.send(wire.Command{Kind: wire.KindRegister})
	c.expect(wire.ServerLabel, "Error: Server is full. Connection rejected.")
}

func TestInactivityEviction(t *testing.T) {
	cfg := testConfig()
	cfg.Server.InactivityTimeout = 50 * time.Millisecond
	cfg.Server.MonitorInterval = 20 * time.Millisecond
	_, broker := startServer(t, cfg)

	a := newTestClient(t, broker, 101)
	b := newTestClient(t, broker, 102)
	a.register()
	a.join("#r", 1)
	b.register()

	// B keeps itself alive; A goes silent and gets swept.
	deadline := time.Now().Add(2 * time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for time.Now().Before(deadline) {
			b.send(wire.Command{Kind: wire.KindWho, Channel: "#r"})
			time.Sleep(10 * time.Millisecond)
		}
	}()

	a.expect(wire.ServerLabel, "You have been disconnected due to inactivity.")
	<-done

	// A's slot is zeroed; a late MSG is silently dropped.
	a.send(wire.Command{Kind: wire.KindMsg, Text: "still here?"})
	a.expectSilence()
}

func TestReregisterRefreshesSlot(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxClients = 1
	_, broker := startServer(t, cfg)

	a := newTestClient(t, broker, 101)
	a.register()
	// Same handle again must reuse the slot, not hit the cap.
	a.register()
}

func TestShutdownStopsRouter(t *testing.T) {
	srv, broker := startServer(t, testConfig())

	a := newTestClient(t, broker, 101)
	a.register()

	srv.Shutdown()

	select {
	case <-srv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("router did not exit after shutdown")
	}

	err := a.ctrl.Send(mailbox.TagCommand, []byte("{}"))
	assert.Error(t, err)
}
