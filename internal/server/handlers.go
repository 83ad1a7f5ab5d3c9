package server

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mqchat/internal/registry"
	"mqchat/internal/wire"
)

// updateGauges refreshes the client/room gauges. Caller holds the registry
// lock (any mode).
func (s *Server) updateGauges() {
	s.met.ClientsActive.Set(float64(s.reg.ClientCount()))
	s.met.RoomsActive.Set(float64(s.reg.RoomCount()))
}

func (s *Server) handleRegister(cmd wire.Command) {
	s.reg.Lock()
	ok := s.reg.AddClient(cmd.Sender, cmd.Reply, s.now())
	s.updateGauges()
	s.reg.Unlock()

	if !ok {
		s.log.Warn("register rejected, server full", zap.Int("sender", cmd.Sender))
		s.enqueueUnicast(cmd.Reply, "Error: Server is full. Connection rejected.")
		return
	}

	s.log.Info("client registered", zap.Int("sender", cmd.Sender), zap.String("reply", cmd.Reply))
	s.enqueueUnicast(cmd.Reply,
		fmt.Sprintf("Welcome User %d! Use JOIN <#channel> or WHO <#channel>.", cmd.Sender))
}

func (s *Server) handleJoin(cmd wire.Command) {
	if cmd.Channel == "" {
		s.log.Warn("join without channel ignored", zap.Int("sender", cmd.Sender))
		return
	}

	s.reg.Lock()
	defer s.reg.Unlock()

	c, ok := s.reg.Client(cmd.Sender)
	if !ok {
		s.log.Debug("join from unknown sender dropped", zap.Int("sender", cmd.Sender))
		return
	}

	room, created, err := s.reg.EnsureRoom(cmd.Channel)
	if err != nil {
		s.enqueueUnicast(cmd.Reply, "Error: Cannot join/create channel, room limit reached.")
		return
	}
	if created {
		s.log.Info("room created", zap.String("channel", cmd.Channel))
	}

	// Re-joining the current channel refreshes nothing and announces nothing.
	rejoin := c.Channel == cmd.Channel

	if !rejoin && c.Channel != "" {
		old := c.Channel
		if s.reg.RemoveMember(old, cmd.Sender) {
			s.log.Info("room reaped", zap.String("channel", old))
		}
		s.enqueueBroadcast(old, wire.ServerLabel,
			fmt.Sprintf("User %d left the channel (Joined %s).", cmd.Sender, cmd.Channel))
	}

	s.reg.AddMember(room, cmd.Sender)
	c.Channel = cmd.Channel
	s.updateGauges()

	s.enqueueUnicast(cmd.Reply,
		fmt.Sprintf("You have joined %s. Total members: %d", cmd.Channel, len(room.Members)))
	if !rejoin {
		s.enqueueBroadcast(cmd.Channel, wire.ServerLabel,
			fmt.Sprintf("User %d has joined the channel.", cmd.Sender))
	}
	s.log.Info("client joined", zap.Int("sender", cmd.Sender), zap.String("channel", cmd.Channel))
}

func (s *Server) handleMsg(cmd wire.Command) {
	s.reg.RLock()
	defer s.reg.RUnlock()

	c, ok := s.reg.Client(cmd.Sender)
	if !ok {
		s.log.Debug("msg from unknown sender dropped", zap.Int("sender", cmd.Sender))
		return
	}
	if c.Channel == "" {
		s.enqueueUnicast(cmd.Reply, "Error: You are not in a channel. Use JOIN <#channel>.")
		return
	}

	s.enqueueBroadcast(c.Channel, wire.ChannelLabel(c.Channel, cmd.Sender), cmd.Text)
}

func (s *Server) handleDM(cmd wire.Command) {
	s.reg.RLock()
	defer s.reg.RUnlock()

	if _, ok := s.reg.Client(cmd.Sender); !ok {
		s.log.Debug("dm from unknown sender dropped", zap.Int("sender", cmd.Sender))
		return
	}

	handle, err := strconv.Atoi(cmd.Target)
	var target *registry.Client
	if err == nil {
		if c, ok := s.reg.Client(handle); ok {
			target = c
		}
	}
	if target == nil {
		s.enqueueUnicast(cmd.Reply, fmt.Sprintf("Error: User PID %s is not online.", cmd.Target))
		return
	}

	s.enqueue(job{
		kind:   jobUnicast,
		target: target.ReplyID,
		sender: wire.DMLabel(cmd.Sender),
		text:   cmd.Text,
	})
	s.enqueueUnicast(cmd.Reply, fmt.Sprintf("DM sent to %d.", handle))
}

func (s *Server) handleWho(cmd wire.Command) {
	s.reg.RLock()
	defer s.reg.RUnlock()

	if _, ok := s.reg.Client(cmd.Sender); !ok {
		s.log.Debug("who from unknown sender dropped", zap.Int("sender", cmd.Sender))
		return
	}

	room, ok := s.reg.Room(cmd.Channel)
	if !ok {
		s.enqueueUnicast(cmd.Reply, fmt.Sprintf("Error: Channel %s does not exist.", cmd.Channel))
		return
	}

	members := make([]string, len(room.Members))
	for i, m := range room.Members {
		members[i] = strconv.Itoa(m)
	}
	line := fmt.Sprintf("Members of %s (%d): %s",
		cmd.Channel, len(room.Members), strings.Join(members, ", "))
	s.enqueueUnicast(cmd.Reply, wire.Truncate(line, s.lim.MaxText))
}

func (s *Server) handleLeave(cmd wire.Command) {
	s.reg.Lock()
	defer s.reg.Unlock()

	c, ok := s.reg.Client(cmd.Sender)
	if !ok {
		s.log.Debug("leave from unknown sender dropped", zap.Int("sender", cmd.Sender))
		return
	}
	if c.Channel == "" {
		s.enqueueUnicast(cmd.Reply, "Error: You are not currently in any channel.")
		return
	}

	old := c.Channel
	if s.reg.RemoveMember(old, cmd.Sender) {
		s.log.Info("room reaped", zap.String("channel", old))
	}
	c.Channel = ""
	s.updateGauges()

	s.enqueueBroadcast(old, wire.ServerLabel,
		fmt.Sprintf("User %d left the channel.", cmd.Sender))
	s.enqueueUnicast(cmd.Reply, fmt.Sprintf("You have left %s.", old))
	s.log.Info("client left channel", zap.Int("sender", cmd.Sender), zap.String("channel", old))
}

func (s *Server) handleQuit(cmd wire.Command) {
	s.reg.Lock()
	defer s.reg.Unlock()

	dep, ok := s.reg.RemoveClient(cmd.Sender)
	if !ok {
		s.log.Debug("quit from unknown sender dropped", zap.Int("sender", cmd.Sender))
		return
	}
	if dep.RoomReaped {
		s.log.Info("room reaped", zap.String("channel", dep.Channel))
	}
	s.updateGauges()

	s.enqueueUnicast(cmd.Reply, "You have been disconnected. Goodbye.")
	if dep.Channel != "" {
		s.enqueueBroadcast(dep.Channel, wire.ServerLabel,
			fmt.Sprintf("User %d has left the chat.", cmd.Sender))
	}
	s.log.Info("client quit", zap.Int("sender", cmd.Sender))
}
