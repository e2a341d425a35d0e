// Package mock provides a scripted vad.Engine for tests.
//
// Every session opened by an Engine replays the same event script, one event
// per frame, and records what it was fed:
//
//	eng := &mock.Engine{Script: []vad.Event{{Type: vad.SpeechStart, Probability: 0.9}}}
//	regions, _ := vad.Detect(ctx, eng, samples, cfg)
//	frames := eng.Last().Frames()
package mock

import (
	"sync"

	"github.com/MrWong99/privanote/pkg/provider/vad"
)

// Engine opens scripted sessions.
type Engine struct {
	// Script is replayed by every session, one event per frame.
	Script []vad.Event

	// After is returned once Script is exhausted. A zero Event is replaced
	// by a Silence event.
	After vad.Event

	// OpenErr fails NewSession.
	OpenErr error

	// FrameErr fails every ProcessFrame call of every session.
	FrameErr error

	mu       sync.Mutex
	configs  []vad.Config
	sessions []*Session
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records cfg and returns a fresh scripted session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	after := e.After
	if after == (vad.Event{}) {
		after = vad.Event{Type: vad.Silence}
	}
	s := &Session{script: e.Script, after: after, err: e.FrameErr}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// Configs returns the configs passed to NewSession, in call order.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Last returns the most recently opened session, or nil.
func (e *Engine) Last() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// Session replays its engine's script.
type Session struct {
	script []vad.Event
	after  vad.Event
	err    error

	mu     sync.Mutex
	frames int
	resets int
	closes int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame returns the next scripted event.
func (s *Session) ProcessFrame(_ []float32) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.frames
	s.frames++
	switch {
	case s.err != nil:
		return vad.Event{}, s.err
	case i < len(s.script):
		return s.script[i], nil
	default:
		return s.after, nil
	}
}

// Reset counts the call. The script position is not rewound.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

// Close counts the call.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

// Frames returns how many frames were processed.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Resets returns how many times Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
