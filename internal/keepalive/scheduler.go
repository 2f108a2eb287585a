package keepalive

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultFailureLimit is how many consecutive failed ticks are tolerated
// before the session is marked degraded.
const DefaultFailureLimit = 3

// CommandPinger is the command channel as the scheduler sees it.
type CommandPinger interface {
	Ping(timeout time.Duration) error
	IdleFor() time.Duration
}

// StreamPinger is the stream channel as the scheduler sees it.
type StreamPinger interface {
	KeepAlive() error
}

// Config holds the scheduler's tunables.
type Config struct {
	// Interval between ticks. Must be shorter than the venue's
	// idle-disconnect window.
	Interval time.Duration

	// PingTimeout bounds the command-channel ping so a stalled venue
	// cannot wedge the tick.
	PingTimeout time.Duration

	// FailureLimit is the consecutive-failure threshold. Zero means
	// DefaultFailureLimit.
	FailureLimit int
}

// Scheduler is one background keepalive loop, lifecycle-bound to its
// session.
type Scheduler struct {
	cfg    Config
	cmd    CommandPinger
	stream StreamPinger
	logger *slog.Logger

	// onDegraded fires at most once, from the loop goroutine, after
	// FailureLimit consecutive failed ticks. The loop exits afterwards,
	// so the callback may schedule teardown without deadlocking Stop.
	onDegraded func(error)

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler; call Start to begin ticking.
func New(cfg Config, cmd CommandPinger, stream StreamPinger, onDegraded func(error), logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = DefaultFailureLimit
	}
	return &Scheduler{
		cfg:        cfg,
		cmd:        cmd,
		stream:     stream,
		logger:     logger,
		onDegraded: onDegraded,
		done:       make(chan struct{}),
	}
}

// Start launches the loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop signals the loop and joins it. Idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.tick(); err != nil {
				failures++
				s.logger.Warn("keepalive failed",
					"error", err,
					"consecutive", failures,
					"limit", s.cfg.FailureLimit,
				)
				if failures >= s.cfg.FailureLimit {
					if s.onDegraded != nil {
						s.onDegraded(err)
					}
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// tick pings whichever channels need it. Foreground traffic counts as
// command-channel activity, so the no-op ping is sent only on an idle
// channel; the stream keepalive frame goes out unconditionally.
func (s *Scheduler) tick() error {
	var firstErr error

	if s.cmd.IdleFor() >= s.cfg.Interval {
		if err := s.cmd.Ping(s.cfg.PingTimeout); err != nil {
			firstErr = err
		}
	}

	if err := s.stream.KeepAlive(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
