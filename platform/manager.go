package platform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ErrStartupTimeout reports a platform that never became ready within the
// configured number of readiness probe attempts.
var ErrStartupTimeout = errors.New("platform did not become ready")

// ErrResourceConflict reports an attempt to start a platform while a
// conflicting one occupies its resource class.
var ErrResourceConflict = errors.New("conflicting platform is already running")

// runner executes an external command and returns its combined output.
// Production uses exec.CommandContext; tests substitute a fake.
type runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// prober checks whether a broker endpoint accepts connections.
type prober func(ctx context.Context, endpoint string) error

// kafkaProbe dials the broker the way a client would; a successful dial
// means the deployment is ready to take load.
func kafkaProbe(ctx context.Context, endpoint string) error {
	conn, err := kafka.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Manager owns the lifecycle of platform deployments. It is the only
// component allowed to mutate a Handle's state.
type Manager struct {
	logger zerolog.Logger
	runner runner
	probe  prober

	// ReadyBackoff is the pause between readiness probe attempts.
	ReadyBackoff time.Duration
	// ReadyAttempts bounds the readiness probing before StartupTimeout.
	ReadyAttempts int
	// StopTimeout bounds a graceful shutdown before escalating to kill.
	StopTimeout time.Duration

	mu      sync.Mutex
	handles map[ID]*Handle
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger:        logger.With().Str("component", "platform").Logger(),
		runner:        execRunner{},
		probe:         kafkaProbe,
		ReadyBackoff:  5 * time.Second,
		ReadyAttempts: 12,
		StopTimeout:   60 * time.Second,
		handles:       make(map[ID]*Handle),
	}
}

// Start launches the named deployment and polls its readiness probe until
// it is ready. Starting an already-ready platform is a no-op returning the
// existing handle. Starting a platform whose resource class is occupied by
// another running platform fails fast with ErrResourceConflict.
func (m *Manager) Start(ctx context.Context, id ID) (*Handle, error) {
	p, err := Lookup(string(id))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if h, ok := m.handles[id]; ok && h.State() == StateReady {
		m.mu.Unlock()
		m.logger.Debug().Str("platform", string(id)).Msg("Platform already running")
		return h, nil
	}
	for other, h := range m.handles {
		if other != id && h.Platform().ResourceClass == p.ResourceClass && h.State() == StateReady {
			m.mu.Unlock()
			return nil, fmt.Errorf("cannot start %s while %s holds %s: %w",
				id, other, p.ResourceClass, ErrResourceConflict)
		}
	}
	h := newHandle(p)
	m.handles[id] = h
	m.mu.Unlock()

	m.logger.Info().Str("platform", string(id)).Str("compose", p.ComposeFile).Msg("Starting platform")

	// Clear any leftover deployment from a previous run first.
	if out, err := m.compose(ctx, p, "down"); err != nil {
		m.logger.Debug().Err(err).Str("output", string(out)).Msg("Pre-start cleanup failed")
	}
	if out, err := m.compose(ctx, p, "up", "-d"); err != nil {
		h.setState(StateFailed)
		return nil, fmt.Errorf("failed to start %s: %w (output: %s)", id, err, strings.TrimSpace(string(out)))
	}

	if err := m.awaitReady(ctx, h); err != nil {
		h.setState(StateFailed)
		// Best-effort teardown of the half-started deployment.
		if out, derr := m.compose(ctx, p, "down"); derr != nil {
			m.logger.Warn().Err(derr).Str("output", string(out)).Msg("Cleanup after failed start failed")
		}
		return nil, err
	}

	h.setState(StateReady)
	m.logger.Info().Str("platform", string(id)).Str("endpoint", p.Endpoint).Msg("Platform ready")
	return h, nil
}

// Handle returns the handle for a platform, creating a detached one when
// the platform was not started by this manager. Stopping a detached handle
// still tears the deployment down.
func (m *Manager) Handle(id ID) (*Handle, error) {
	p, err := Lookup(string(id))
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[id]; ok {
		return h, nil
	}
	h := newHandle(p)
	m.handles[id] = h
	return h, nil
}

// Stop requests shutdown and blocks until the deployment stops or the stop
// timeout elapses, at which point it escalates to a forced kill. Teardown
// is not on a test's success path: failures are logged, never propagated.
func (m *Manager) Stop(ctx context.Context, h *Handle) {
	p := h.Platform()
	m.logger.Info().Str("platform", string(p.ID)).Msg("Stopping platform")

	stopCtx, cancel := context.WithTimeout(ctx, m.StopTimeout)
	defer cancel()
	if out, err := m.compose(stopCtx, p, "down"); err != nil {
		m.logger.Warn().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("Graceful stop failed, escalating to kill")
		if out, err := m.compose(ctx, p, "kill"); err != nil {
			m.logger.Warn().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("Forced kill failed")
		}
		if out, err := m.compose(ctx, p, "down"); err != nil {
			m.logger.Warn().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("Cleanup after kill failed")
		}
	}

	h.setState(StateStopped)
	m.logger.Info().Str("platform", string(p.ID)).Msg("Platform stopped")
}

// WaitReady re-checks readiness of an existing handle, bounded by timeout.
// The orchestrator uses this between phases without re-invoking Start.
func (m *Manager) WaitReady(ctx context.Context, h *Handle, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.awaitReady(ctx, h)
}

func (m *Manager) awaitReady(ctx context.Context, h *Handle) error {
	p := h.Platform()
	for attempt := 1; attempt <= m.ReadyAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		probeCtx, cancel := context.WithTimeout(ctx, m.ReadyBackoff)
		err := m.probe(probeCtx, p.Endpoint)
		cancel()
		if err == nil {
			return nil
		}
		m.logger.Debug().
			Str("platform", string(p.ID)).
			Int("attempt", attempt).
			Err(err).
			Msg("Readiness probe failed")
		if attempt < m.ReadyAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.ReadyBackoff):
			}
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", p.ID, m.ReadyAttempts, ErrStartupTimeout)
}

// ContainerPID resolves the PID of the broker container so the resource
// sampler can scope memory to it. Best effort: an error just means the
// sampler degrades to host-level counters.
func (m *Manager) ContainerPID(ctx context.Context, h *Handle) (int, error) {
	out, err := m.runner.Run(ctx, "docker", "inspect", "-f", "{{.State.Pid}}", h.Platform().Container)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect container %s: %w", h.Platform().Container, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("unexpected docker inspect output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return pid, nil
}

func (m *Manager) compose(ctx context.Context, p Platform, args ...string) ([]byte, error) {
	full := append([]string{"compose", "-f", p.ComposeFile}, args...)
	m.logger.Debug().
		Str("cmd", shellescape.QuoteCommand(append([]string{"docker"}, full...))).
		Msg("Running docker compose")
	return m.runner.Run(ctx, "docker", full...)
}
