package radar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// Opener opens the transport to the sensor.
type Opener func() (Transport, error)

// serialReadTimeout keeps Read effectively non-blocking.
const serialReadTimeout = 10 * time.Millisecond

// SerialOpener opens a UART at baud, 8N1. LD2410 modules ship at 256000.
func SerialOpener(path string, baud int) Opener {
	return func() (Transport, error) {
		mode := &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(path, mode)
		if err != nil {
			return nil, fmt.Errorf("radar: failed to open %s: %w", path, err)
		}
		if err := port.SetReadTimeout(serialReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("radar: failed to set timeout: %w", err)
		}
		return port, nil
	}
}

// Config holds the Sensor settings.
type Config struct {
	Name           string
	Open           Opener
	PollHz         int
	CommandTimeout time.Duration
	Liveness       time.Duration
	MaxPayload     int
}

// Sensor ties a transport, pipeline, engine and state together and runs them
// on one goroutine (Run). Other goroutines read Snapshot and hand commands to
// that goroutine with Do.
type Sensor struct {
	cfg   Config
	state *State

	// mu guards the pointers only; it is never held while the engine runs.
	mu        sync.Mutex
	transport Transport
	engine    *Engine

	reqs chan request
}

type request struct {
	fn   func(*Engine) error
	done chan error
}

// NewSensor creates a Sensor. The state is empty until Connect succeeds and
// frames arrive.
func NewSensor(cfg Config) *Sensor {
	if cfg.Name == "" {
		cfg.Name = "LD2410"
	}
	if cfg.PollHz <= 0 {
		cfg.PollHz = 50
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Sensor{
		cfg:   cfg,
		state: NewState(cfg.Liveness),
		reqs:  make(chan request),
	}
}

// Name returns the configured sensor name.
func (s *Sensor) Name() string { return s.cfg.Name }

// State returns the sensor state.
func (s *Sensor) State() *State { return s.state }

// Snapshot returns a copy of the current sensor state.
func (s *Sensor) Snapshot() Snapshot { return s.state.Snapshot() }

// IsOpen reports whether a transport is open.
func (s *Sensor) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil
}

// IsConnected reports whether the transport is open and frames are arriving.
func (s *Sensor) IsConnected() bool {
	return s.IsOpen() && s.state.Snapshot().Connected
}

// Connect opens the transport and checks the sensor answers a firmware
// version query.
func (s *Sensor) Connect() error {
	if s.cfg.Open == nil {
		return fmt.Errorf("radar: no transport configured")
	}
	t, err := s.cfg.Open()
	if err != nil {
		return err
	}

	// Stale boot output would only be resynchronised over anyway.
	if r, ok := t.(interface{ ResetInputBuffer() error }); ok {
		r.ResetInputBuffer()
	}

	e := NewEngine(NewPipeline(t, s.state, s.cfg.MaxPayload))
	e.Timeout = s.cfg.CommandTimeout

	v, err := e.ReadFirmwareVersion()
	if err != nil {
		t.Close()
		return fmt.Errorf("radar: handshake: %w", err)
	}

	s.mu.Lock()
	if s.transport != nil {
		s.transport.Close()
	}
	s.transport, s.engine = t, e
	s.mu.Unlock()

	glog.Infof("[radar] connected to %s, firmware %s", s.cfg.Name, v)
	return nil
}

// Close shuts the transport.
func (s *Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return nil
	}
	err := s.transport.Close()
	s.transport, s.engine = nil, nil
	return err
}

// Poll drains the transport once. A read error closes the transport so a
// supervisor can reconnect.
func (s *Sensor) Poll() error {
	t, e := s.current()
	if e == nil {
		return ErrNotConnected
	}
	acks, err := e.Pipeline().Poll()
	for _, ack := range acks {
		glog.V(1).Infof("[radar] unsolicited ack for %s", ack.Command)
	}
	if err != nil {
		glog.Warningf("[radar] read failed, closing: %v", err)
		s.drop(t)
		return err
	}
	return nil
}

func (s *Sensor) current() (Transport, *Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport, s.engine
}

// drop closes t if it is still the open transport.
func (s *Sensor) drop(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != t {
		return
	}
	s.transport.Close()
	s.transport, s.engine = nil, nil
}

// Run polls the sensor at PollHz and executes queued commands between polls
// until ctx is done.
func (s *Sensor) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.PollHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.reqs:
			req.done <- s.exec(req.fn)
		case <-ticker.C:
			s.Poll()
		}
	}
}

func (s *Sensor) exec(fn func(*Engine) error) error {
	_, e := s.current()
	if e == nil {
		return ErrNotConnected
	}
	return fn(e)
}

// Do runs fn on the Run goroutine, so it never overlaps a poll or another
// command. It blocks until fn returns or ctx is done.
func (s *Sensor) Do(ctx context.Context, fn func(*Engine) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartupOptions is the session start policy.
type StartupOptions struct {
	ReadConfiguration bool
	Engineering       bool
	EngineeringRetry  RetryPolicy
}

// Startup reads the configuration and turns engineering mode on as asked.
// A failed step is logged and the next one still runs; the returned error is
// the first failure.
func (s *Sensor) Startup(ctx context.Context, opts StartupOptions) error {
	var first error
	if opts.ReadConfiguration {
		err := s.Do(ctx, func(e *Engine) error {
			_, err := e.ReadConfiguration()
			return err
		})
		if err != nil {
			glog.Warningf("[radar] failed to read configuration: %v", err)
			first = err
		} else {
			glog.Infof("[radar] configuration read")
		}
	}
	if opts.Engineering {
		err := opts.EngineeringRetry.Do(func(attempt int) error {
			err := s.Do(ctx, func(e *Engine) error { return e.SetEngineeringMode(true) })
			if err != nil {
				glog.Warningf("[radar] engineering mode attempt %d/%d failed: %v", attempt, opts.EngineeringRetry.Attempts, err)
			}
			return err
		})
		if err != nil {
			glog.Warningf("[radar] engineering mode could not be enabled, continuing with basic reports")
			if first == nil {
				first = err
			}
		} else {
			glog.Infof("[radar] engineering mode enabled")
		}
	}
	return first
}
