package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/embedsec/seclink/internal/device"
	"github.com/embedsec/seclink/internal/link"
	"github.com/embedsec/seclink/internal/session"
)

// Server owns the outer event loop: it calls the engine's Step, drives the
// device for requests that need it, and feeds the answers back through
// Respond. One server, one engine, one session at a time.
type Server struct {
	eng *session.Engine
	dev device.Device
	lk  link.Link
	log *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats is a snapshot of the loop's counters for the diagnostics API.
type Stats struct {
	StartedAt     time.Time `json:"started_at"`
	Requests      uint64    `json:"requests"`
	Errors        uint64    `json:"errors"`
	Handshakes    uint64    `json:"handshakes"`
	Sessions      uint64    `json:"sessions"`
	LastRequest   string    `json:"last_request"`
	SessionActive bool      `json:"session_active"`
}

// New wires the loop together.
func New(eng *session.Engine, dev device.Device, lk link.Link, log *slog.Logger) *Server {
	return &Server{
		eng: eng,
		dev: dev,
		lk:  lk,
		log: log,
		stats: Stats{
			StartedAt: time.Now(),
		},
	}
}

// Run services the link until the context is cancelled or the transport
// fails. Cancellation closes the link to unblock the engine's read.
func (s *Server) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.lk.Close()
		case <-done:
		}
	}()

	for {
		tag, err := s.eng.Step()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, link.ErrClosed) {
				s.log.Info("link closed, loop stopping")
				return nil
			}
			return fmt.Errorf("engine step: %w", err)
		}
		s.dev.FaultSignal(false)
		s.record(tag)

		switch tag {
		case session.TagToggleLED:
			s.toggleLED()
		case session.TagGetTemperature:
			s.temperature()
		case session.TagHandshakePhase1, session.TagHandshakePhase2, session.TagClose:
			// Handled entirely inside the engine.
		case session.TagError:
			s.dev.FaultSignal(true)
		}
	}
}

func (s *Server) toggleLED() {
	level, err := s.dev.ToggleLED()
	if err != nil {
		s.log.Error("toggle LED failed", "err", err)
	}
	if err := s.eng.Respond(err == nil, []byte(level.String())); err != nil {
		s.fail("respond toggle LED", err)
		return
	}
	s.log.Info("indicator toggled", "level", level.String())
}

func (s *Server) temperature() {
	temp, err := s.dev.Temperature()
	if err != nil {
		s.log.Error("temperature read failed", "err", err)
	}
	payload := fmt.Sprintf("%2.2f", temp)
	if err := s.eng.Respond(err == nil, []byte(payload)); err != nil {
		s.fail("respond temperature", err)
		return
	}
	s.log.Info("temperature read", "celsius", payload)
}

func (s *Server) fail(what string, err error) {
	s.log.Error(what+" failed", "err", err)
	s.dev.FaultSignal(true)
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}

func (s *Server) record(tag session.RequestTag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Requests++
	s.stats.LastRequest = tag.String()
	switch tag {
	case session.TagHandshakePhase1:
		s.stats.Handshakes++
	case session.TagHandshakePhase2:
		s.stats.Sessions++
	case session.TagError:
		s.stats.Errors++
	}
}

// Snapshot returns the current counters.
func (s *Server) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.SessionActive = s.eng.Active()
	return out
}
