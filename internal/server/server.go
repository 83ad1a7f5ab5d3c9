// Package server implements the chat server: a single router consuming the
// control queue, command handlers over a reader/writer-locked registry, a
// fan-out worker pool with non-blocking delivery, and an inactivity monitor.
package server

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mqchat/internal/config"
	"mqchat/internal/mailbox"
	"mqchat/internal/metrics"
	"mqchat/internal/registry"
	"mqchat/internal/wire"
)

// Server owns the control queue and all server-side tasks.
type Server struct {
	cfg config.Config
	log *zap.Logger
	met *metrics.Registry
	tr  mailbox.Transport
	lim wire.Limits

	control mailbox.Queue
	reg     *registry.Registry
	jobs    *jobQueue

	// now is swappable so the inactivity tests do not sleep for minutes.
	now func() time.Time

	routerDone  chan struct{}
	monitorStop chan struct{}
	monitorDone chan struct{}
	workerWG    sync.WaitGroup

	shutdownOnce sync.Once
}

// New creates the control queue and an empty registry seeded with the
// default channel. Call Start to launch the router, workers and monitor.
func New(cfg config.Config, log *zap.Logger, met *metrics.Registry, tr mailbox.Transport) (*Server, error) {
	control, err := tr.Create(cfg.Queue.ControlKey)
	if err != nil {
		return nil, fmt.Errorf("create control queue: %w", err)
	}

	s := &Server{
		cfg: cfg,
		log: log,
		met: met,
		tr:  tr,
		lim: wire.Limits{
			MaxText: cfg.Limits.MaxText,
			MaxName: cfg.Limits.MaxName,
		},
		control:     control,
		reg:         registry.New(cfg.Limits.MaxClients, cfg.Limits.MaxChannels, cfg.Server.DefaultChannel),
		jobs:        newJobQueue(),
		now:         time.Now,
		routerDone:  make(chan struct{}),
		monitorStop: make(chan struct{}),
		monitorDone: make(chan struct{}),
	}
	met.RoomsActive.Set(1)
	return s, nil
}

// Start launches the worker pool, the monitor and the router.
func (s *Server) Start() {
	s.log.Info("chat server starting",
		zap.String("control_key", s.cfg.Queue.ControlKey),
		zap.String("control_queue", s.control.ID()),
		zap.Int("workers", s.cfg.Server.Workers),
		zap.String("default_channel", s.cfg.Server.DefaultChannel),
		zap.Duration("inactivity_timeout", s.cfg.Server.InactivityTimeout),
	)

	for i := 0; i < s.cfg.Server.Workers; i++ {
		s.workerWG.Add(1)
		go s.worker(i)
	}
	go s.monitor()
	go s.router()
}

// ClientCount returns the number of currently registered clients.
func (s *Server) ClientCount() int {
	s.reg.RLock()
	defer s.reg.RUnlock()
	return s.reg.ClientCount()
}

// Done is closed when the router has exited, either because Shutdown
// removed the control queue or because the queue was destroyed externally.
func (s *Server) Done() <-chan struct{} {
	return s.routerDone
}

// Shutdown removes the control queue, which unblocks the router, then
// stops the monitor and lets the workers drain the job queue. Idempotent.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Info("chat server shutting down")
		if err := s.control.Remove(); err != nil {
			s.log.Warn("control queue remove failed", zap.Error(err))
		}
		<-s.routerDone
		close(s.monitorStop)
		<-s.monitorDone
		s.jobs.close()
		s.workerWG.Wait()
		s.log.Info("chat server stopped")
	})
}

// enqueue hands one delivery task to the worker pool. Safe to call while
// holding the registry lock; the job queue never blocks its producers.
func (s *Server) enqueue(j job) {
	if s.jobs.push(j) {
		s.met.JobsEnqueued.Inc()
	}
}

func (s *Server) enqueueUnicast(target, text string) {
	s.enqueue(job{kind: jobUnicast, target: target, sender: wire.ServerLabel, text: text})
}

func (s *Server) enqueueBroadcast(channel, sender, text string) {
	s.enqueue(job{kind: jobBroadcast, channel: channel, sender: sender, text: text})
}
