// Package supervisor owns the lifecycle of the backend child process:
// spawn, readiness detection, unexpected-exit reporting and shutdown.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/tether/internal/address"
	"github.com/loykin/tether/internal/env"
	"github.com/loykin/tether/internal/metrics"
	"github.com/loykin/tether/internal/probe"
	"github.com/loykin/tether/internal/process"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultReadyTimeout = 30 * time.Second
	DefaultStopGrace    = 5 * time.Second
	DefaultProbeTimeout = time.Second
)

// Config describes one backend and how to supervise it.
type Config struct {
	Spec    process.Spec
	Address address.Address
	// Probes are tried in order on every poll; the first success marks the
	// backend ready. Empty means a single TCP probe.
	Probes       []probe.Probe
	PollInterval time.Duration
	ProbeTimeout time.Duration // per attempt, further bounded by the remaining time
	ReadyTimeout time.Duration
	StopGrace    time.Duration
	Usage        metrics.UsageConfig
	Logger       *slog.Logger
}

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	State         State                `json:"state"`
	Err           error                `json:"-"`
	Error         string               `json:"error,omitempty"`
	PID           int                  `json:"pid,omitempty"`
	Address       string               `json:"address"`
	StartedAt     time.Time            `json:"started_at,omitzero"`
	ReadyAt       time.Time            `json:"ready_at,omitzero"`
	StoppedAt     time.Time            `json:"stopped_at,omitzero"`
	ExitCode      *int                 `json:"exit_code,omitempty"`
	ProbeAttempts int                  `json:"probe_attempts"`
	DetectedBy    string               `json:"detected_by,omitempty"`
	Usage         *metrics.UsageSample `json:"usage,omitempty"`
}

// Supervisor runs at most one backend child. All methods are safe for
// concurrent use.
type Supervisor struct {
	cfg   Config
	log   *slog.Logger
	usage *metrics.UsageCollector

	mu         sync.Mutex
	state      State
	err        error
	changed    chan struct{} // closed and replaced on every transition
	spawning   bool
	stopping   bool
	stopDone   chan struct{}
	proc       *process.Process
	startedAt  time.Time
	readyAt    time.Time
	stoppedAt  time.Time
	attempts   int
	detectedBy string
	bg         context.Context // lives until Stop; parents the watcher and the sampler
	bgCancel   context.CancelFunc
}

// New returns a supervisor in NotStarted. It does not spawn anything.
func New(cfg Config) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if len(cfg.Probes) == 0 {
		cfg.Probes = []probe.Probe{probe.TCP{}}
	}
	if cfg.Spec.Name == "" {
		cfg.Spec.Name = "backend"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("backend", cfg.Spec.Name)
	s := &Supervisor{
		cfg:      cfg,
		log:      log,
		usage:    metrics.NewUsageCollector(cfg.Usage, log),
		state:    NotStarted,
		changed:  make(chan struct{}),
		stopDone: make(chan struct{}),
	}
	metrics.SetCurrentState(NotStarted.String(), true)
	return s
}

// Address returns the fixed address the backend is expected to serve on.
func (s *Supervisor) Address() address.Address { return s.cfg.Address }

// transitionLocked moves to `to` if the lifecycle allows it, records err as
// the current reason and wakes every waiter. Caller holds s.mu.
func (s *Supervisor) transitionLocked(to State, err error) bool {
	from := s.state
	if !canTransition(from, to) {
		return false
	}
	s.state = to
	if err != nil || to == Ready {
		s.err = err
	}
	close(s.changed)
	s.changed = make(chan struct{})

	metrics.RecordStateTransition(from.String(), to.String())
	metrics.SetCurrentState(from.String(), false)
	metrics.SetCurrentState(to.String(), true)
	if to == Failed {
		s.log.Warn("backend state changed", "from", from, "to", to, "error", err)
	} else {
		s.log.Info("backend state changed", "from", from, "to", to)
	}
	return true
}

// childEnv is the parent's environment plus the backend address, with the
// spec's own entries taking precedence.
func (s *Supervisor) childEnv() []string {
	a := s.cfg.Address
	return env.New().FromOS().
		Set("TETHER_BACKEND_HOST", a.Host).
		Set("TETHER_BACKEND_PORT", strconv.Itoa(a.Port)).
		Set("TETHER_BACKEND_URL", a.String()).
		Merge(s.cfg.Spec.Env)
}

// Start spawns the backend and moves to Starting. It does not wait for
// readiness. An OS refusal leaves the supervisor Failed with a *SpawnError.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	switch {
	case s.state == Stopped || s.stopping:
		s.mu.Unlock()
		return ErrStopped
	case s.state != NotStarted || s.spawning:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.spawning = true
	s.mu.Unlock()

	spec := s.cfg.Spec
	if err := spec.Validate(); err != nil {
		return s.spawnFailed(&SpawnError{Command: spec.Command, Err: err})
	}
	p, err := process.Start(spec, s.childEnv())
	if err != nil {
		metrics.IncSpawnFailure()
		return s.spawnFailed(&SpawnError{Command: spec.Command, Err: err})
	}

	s.mu.Lock()
	s.spawning = false
	if s.state != NotStarted {
		// Stop won the race while we were spawning.
		s.mu.Unlock()
		_, _ = p.Stop(s.cfg.StopGrace)
		return ErrStopped
	}
	s.proc = p
	s.startedAt = p.StartedAt()
	s.bg, s.bgCancel = context.WithCancel(context.Background())
	bg := s.bg
	s.transitionLocked(Starting, nil)
	s.mu.Unlock()

	s.log.Info("backend spawned", "pid", p.Pid(), "cmd", spec.Command, "address", s.cfg.Address.String())
	go s.watch(bg, p)
	return nil
}

func (s *Supervisor) spawnFailed(err *SpawnError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawning = false
	if s.state != NotStarted {
		return ErrStopped
	}
	s.transitionLocked(Starting, nil)
	s.transitionLocked(Failed, err)
	s.log.Error("backend spawn failed", "cmd", err.Command, "error", err.Err)
	return err
}

// watch is the single observer of the child's exit.
func (s *Supervisor) watch(ctx context.Context, p *process.Process) {
	select {
	case <-p.Done():
	case <-ctx.Done():
		return
	}
	s.usage.Stop()
	code, _ := p.Exit()
	s.log.Info("backend exited", "pid", p.Pid(), "code", code)
	s.exitFailure(p)
}

// exitFailure records an exit that nobody asked for as Failed. It is called
// by both the watcher and AwaitReady; the transition check keeps it
// idempotent.
func (s *Supervisor) exitFailure(p *process.Process) error {
	code, werr := p.Exit()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stoppedAt.IsZero() {
		s.stoppedAt = p.ExitedAt()
	}
	if s.stopping {
		return ErrStopped
	}
	s.transitionLocked(Failed, &EarlyExitError{Code: code, AfterReady: s.state == Ready, Err: werr})
	return s.currentErrLocked()
}

// currentErrLocked maps a settled state to what AwaitReady returns.
func (s *Supervisor) currentErrLocked() error {
	switch s.state {
	case Ready:
		return nil
	case Failed:
		return s.err
	case Stopped:
		return ErrStopped
	case NotStarted:
		return ErrNotStarted
	default:
		return nil
	}
}

func (s *Supervisor) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionLocked(Failed, err) {
		return err
	}
	return s.currentErrLocked()
}

// AwaitReady probes the backend until it accepts connections, exits, the
// timeout elapses or ctx is cancelled. It never returns while the state is
// Starting. timeout <= 0 uses Config.ReadyTimeout.
func (s *Supervisor) AwaitReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.cfg.ReadyTimeout
	}
	s.mu.Lock()
	st, p, changed := s.state, s.proc, s.changed
	if st != Starting {
		err := s.currentErrLocked()
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if p.Exited() {
			return s.exitFailure(p)
		}
		by, err := s.probeOnce(tctx)
		if err == nil {
			return s.markReady(p, by)
		}
		lastErr = err
		if p.Exited() {
			return s.exitFailure(p)
		}
		select {
		case <-p.Done():
			return s.exitFailure(p)
		case <-changed:
			s.mu.Lock()
			st, changed = s.state, s.changed
			if st != Starting {
				err := s.currentErrLocked()
				s.mu.Unlock()
				return err
			}
			s.mu.Unlock()
		case <-tctx.Done():
			if p.Exited() {
				return s.exitFailure(p)
			}
			if cerr := ctx.Err(); cerr != nil {
				return s.fail(cerr)
			}
			return s.fail(&ReadinessTimeoutError{
				Address: s.cfg.Address.String(),
				Elapsed: time.Since(start),
				Last:    lastErr,
			})
		case <-ticker.C:
		}
	}
}

// probeOnce runs every probe once and returns the description of the first
// one that succeeded.
func (s *Supervisor) probeOnce(ctx context.Context) (string, error) {
	var err error
	for _, pr := range s.cfg.Probes {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		err = pr.Ready(pctx, s.cfg.Address)
		cancel()

		s.mu.Lock()
		s.attempts++
		s.mu.Unlock()
		metrics.IncProbeAttempt(err == nil)
		if err == nil {
			return pr.Describe(), nil
		}
		s.log.Debug("readiness probe failed", "probe", pr.Describe(), "error", err)
	}
	return "", err
}

func (s *Supervisor) markReady(p *process.Process, by string) error {
	s.mu.Lock()
	if !s.transitionLocked(Ready, nil) {
		err := s.currentErrLocked()
		s.mu.Unlock()
		return err
	}
	s.readyAt = time.Now()
	s.detectedBy = by
	elapsed := s.readyAt.Sub(s.startedAt)
	bg := s.bg
	s.mu.Unlock()

	metrics.ObserveReadiness(elapsed.Seconds())
	s.log.Info("backend ready", "address", s.cfg.Address.String(), "probe", by, "elapsed", elapsed.Round(time.Millisecond))
	s.usage.Start(bg, p.Pid())
	return nil
}

// Stop terminates the backend: graceful signal to its process group, up to
// wait for it to exit, then a forced kill. Any state ends in Stopped.
// Calling it again, or before Start, returns nil. wait <= 0 uses
// Config.StopGrace.
func (s *Supervisor) Stop(wait time.Duration) error {
	if wait <= 0 {
		wait = s.cfg.StopGrace
	}
	s.mu.Lock()
	if s.stopping {
		done := s.stopDone
		s.mu.Unlock()
		<-done
		return nil
	}
	s.stopping = true
	p := s.proc
	s.mu.Unlock()

	var err error
	if p != nil {
		alreadyExited := p.Exited()
		forced, serr := p.Stop(wait)
		if !alreadyExited {
			metrics.IncStop(forced)
			if forced {
				s.log.Warn("backend did not exit within grace, killed", "pid", p.Pid(), "grace", wait)
			} else {
				s.log.Info("backend stopped", "pid", p.Pid())
			}
		}
		if serr != nil {
			s.log.Error("backend stop failed", "pid", p.Pid(), "error", serr)
			err = serr
		}
	}
	s.usage.Stop()

	s.mu.Lock()
	if s.bgCancel != nil {
		s.bgCancel()
	}
	if s.stoppedAt.IsZero() {
		s.stoppedAt = time.Now()
	}
	reason := s.err
	if reason == nil {
		reason = ErrStopped
	}
	s.transitionLocked(Stopped, reason)
	close(s.stopDone)
	s.mu.Unlock()
	return err
}

// State returns the current state without blocking.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the supervisor without blocking.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		State:         s.state,
		Err:           s.err,
		Address:       s.cfg.Address.String(),
		StartedAt:     s.startedAt,
		ReadyAt:       s.readyAt,
		StoppedAt:     s.stoppedAt,
		ProbeAttempts: s.attempts,
		DetectedBy:    s.detectedBy,
	}
	p := s.proc
	s.mu.Unlock()

	if st.Err != nil {
		st.Error = st.Err.Error()
	}
	if p != nil {
		st.PID = p.Pid()
		if p.Exited() {
			code, _ := p.Exit()
			st.ExitCode = &code
		}
	}
	if u, ok := s.usage.Latest(); ok {
		st.Usage = &u
	}
	return st
}

// UsageHistory returns the retained resource samples, oldest first.
func (s *Supervisor) UsageHistory() []metrics.UsageSample { return s.usage.History() }

// Wait blocks until the state is no longer Starting (or NotStarted while a
// spawn is in flight) and returns the resulting status. It returns ctx's
// error if ctx ends first.
func (s *Supervisor) Wait(ctx context.Context) (Status, error) {
	for {
		s.mu.Lock()
		settled := s.state != Starting && !(s.state == NotStarted && s.spawning)
		ch := s.changed
		s.mu.Unlock()
		if settled {
			return s.Status(), nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s.Status(), ctx.Err()
		}
	}
}

// Done is closed once Stop has completed.
func (s *Supervisor) Done() <-chan struct{} { return s.stopDone }

// IsUnavailable reports whether err means the backend will not become
// reachable without a new supervisor.
func IsUnavailable(err error) bool {
	var (
		se *SpawnError
		re *ReadinessTimeoutError
		ee *EarlyExitError
	)
	return errors.As(err, &se) || errors.As(err, &re) || errors.As(err, &ee) ||
		errors.Is(err, ErrStopped) || errors.Is(err, ErrNotStarted)
}
