package server

import (
	"errors"

	"go.uber.org/zap"

	"mqchat/internal/mailbox"
	"mqchat/internal/wire"
)

// router is the single consumer of the control queue. It refreshes the
// sender's last-active timestamp for every command, then dispatches to the
// handler for the command kind. The loop ends when the control queue is
// removed.
func (s *Server) router() {
	defer close(s.routerDone)

	for {
		msg, err := s.control.Receive(mailbox.TagCommand)
		if err != nil {
			if errors.Is(err, mailbox.ErrRemoved) {
				s.log.Info("control queue removed, router exiting")
			} else {
				s.log.Error("control queue receive failed, router exiting", zap.Error(err))
			}
			return
		}

		cmd, err := wire.DecodeCommand(msg.Data)
		if err != nil {
			s.log.Warn("dropping undecodable command", zap.Error(err))
			continue
		}

		s.met.Commands.WithLabelValues(string(cmd.Kind)).Inc()
		s.log.Debug("command received",
			zap.String("kind", string(cmd.Kind)),
			zap.Int("sender", cmd.Sender),
			zap.String("channel", cmd.Channel),
		)

		// Every command counts as activity, whatever its kind.
		s.reg.Lock()
		s.reg.Touch(cmd.Sender, s.now())
		s.reg.Unlock()

		switch cmd.Kind {
		case wire.KindRegister:
			s.handleRegister(cmd)
		case wire.KindJoin:
			s.handleJoin(cmd)
		case wire.KindMsg:
			s.handleMsg(cmd)
		case wire.KindDM:
			s.handleDM(cmd)
		case wire.KindWho:
			s.handleWho(cmd)
		case wire.KindLeave:
			s.handleLeave(cmd)
		case wire.KindQuit:
			s.handleQuit(cmd)
		default:
			s.log.Warn("unknown command kind ignored",
				zap.String("kind", string(cmd.Kind)),
				zap.Int("sender", cmd.Sender),
			)
		}
	}
}
