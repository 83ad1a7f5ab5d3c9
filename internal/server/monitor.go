package server

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"mqchat/internal/wire"
)

// monitor periodically sweeps the client table and evicts anyone silent
// beyond the inactivity timeout. The sweep holds the exclusive lock end to
// end; the eviction notice is enqueued before the slot is cleared, while
// the client's reply queue is still on record.
func (s *Server) monitor() {
	defer close(s.monitorDone)

	ticker := time.NewTicker(s.cfg.Server.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.monitorStop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	now := s.now()
	timeout := s.cfg.Server.InactivityTimeout

	s.reg.Lock()
	defer s.reg.Unlock()

	for _, h := range s.reg.Handles() {
		c, ok := s.reg.Client(h)
		if !ok || now.Sub(c.LastActive) <= timeout {
			continue
		}

		s.enqueueUnicast(c.ReplyID, "You have been disconnected due to inactivity.")
		dep, _ := s.reg.RemoveClient(h)
		if dep.Channel != "" {
			s.enqueueBroadcast(dep.Channel, wire.ServerLabel,
				fmt.Sprintf("User %d has left the chat.", h))
		}
		if dep.RoomReaped {
			s.log.Info("room reaped", zap.String("channel", dep.Channel))
		}
		s.met.ClientsEvicted.Inc()
		s.log.Info("client evicted for inactivity",
			zap.Int("sender", h),
			zap.Duration("idle", now.Sub(c.LastActive)),
		)
	}
	s.updateGauges()
}
