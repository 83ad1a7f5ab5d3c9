package server

import (
	"errors"

	"go.uber.org/zap"

	"mqchat/internal/mailbox"
	"mqchat/internal/wire"
)

// worker dequeues delivery jobs until the queue is closed and drained.
// Broadcast fan-out snapshots the member reply ids under the shared lock
// and releases it before any send, so a slow mailbox never extends a
// critical section.
func (s *Server) worker(id int) {
	defer s.workerWG.Done()

	for {
		j, ok := s.jobs.pop()
		if !ok {
			return
		}

		data, err := wire.EncodeBroadcast(wire.Broadcast{Sender: j.sender, Text: j.text}, s.lim)
		if err != nil {
			s.log.Error("broadcast encode failed", zap.Int("worker", id), zap.Error(err))
			continue
		}

		switch j.kind {
		case jobBroadcast:
			s.reg.RLock()
			room, ok := s.reg.Room(j.channel)
			var targets []string
			if ok {
				targets = make([]string, 0, len(room.Members))
				for _, m := range room.Members {
					if c, ok := s.reg.Client(m); ok {
						targets = append(targets, c.ReplyID)
					}
				}
			}
			s.reg.RUnlock()

			for _, t := range targets {
				s.deliver(id, t, data)
			}
		case jobUnicast:
			s.deliver(id, j.target, data)
		}
	}
}

// deliver attempts one non-blocking send to a reply queue. A full mailbox
// drops the message with a warning; a destroyed one is silently absorbed.
func (s *Server) deliver(worker int, target string, data []byte) {
	err := s.tr.Send(target, mailbox.TagBroadcast, data)
	switch {
	case err == nil:
		s.met.Deliveries.Inc()
	case errors.Is(err, mailbox.ErrFull):
		s.met.DeliveriesDropped.Inc()
		s.log.Warn("reply queue full, message dropped",
			zap.Int("worker", worker),
			zap.String("target", target),
		)
	case errors.Is(err, mailbox.ErrRemoved), errors.Is(err, mailbox.ErrNotFound):
		// Receiver gone; nothing to do.
	default:
		s.log.Error("delivery failed",
			zap.Int("worker", worker),
			zap.String("target", target),
			zap.Error(err),
		)
	}
}
