package platform

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeRunner records every command and answers from a canned response map
// keyed by a substring of the full command line.
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	fail     map[string]error
	output   map[string]string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := name + " " + strings.Join(args, " ")
	r.mu.Lock()
	r.commands = append(r.commands, line)
	r.mu.Unlock()

	for key, err := range r.fail {
		if strings.Contains(line, key) {
			return nil, err
		}
	}
	for key, out := range r.output {
		if strings.Contains(line, key) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func (r *fakeRunner) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

func (r *fakeRunner) count(substr string) int {
	n := 0
	for _, line := range r.lines() {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func newTestManager(runner *fakeRunner, probe prober) *Manager {
	m := NewManager(zerolog.Nop())
	m.runner = runner
	m.probe = probe
	m.ReadyBackoff = time.Millisecond
	m.ReadyAttempts = 3
	m.StopTimeout = 50 * time.Millisecond
	return m
}

func probeOK(ctx context.Context, endpoint string) error { return nil }

func TestManager_Start(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner, probeOK)

	h, err := m.Start(context.Background(), Kafka)
	require.NoError(t, err)
	require.Equal(t, StateReady, h.State())
	require.Equal(t, "localhost:9092", h.Endpoint())

	lines := runner.lines()
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "compose -f deploy/docker-compose.kafka.yml down")
	require.Contains(t, lines[1], "compose -f deploy/docker-compose.kafka.yml up -d")
}

func TestManager_StartIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner, probeOK)

	h1, err := m.Start(context.Background(), Kafka)
	require.NoError(t, err)
	before := len(runner.lines())

	h2, err := m.Start(context.Background(), Kafka)
	require.NoError(t, err)
	require.Same(t, h1, h2)
	require.Len(t, runner.lines(), before, "starting a ready platform must not touch compose")
}

func TestManager_StartResourceConflict(t *testing.T) {
	m := newTestManager(&fakeRunner{}, probeOK)

	_, err := m.Start(context.Background(), Kafka)
	require.NoError(t, err)

	// Both Kafka variants bind the same host port.
	_, err = m.Start(context.Background(), KafkaKRaft)
	require.ErrorIs(t, err, ErrResourceConflict)

	// Redpanda uses a different port range and coexists.
	_, err = m.Start(context.Background(), Redpanda)
	require.NoError(t, err)
}

func TestManager_StartupTimeout(t *testing.T) {
	runner := &fakeRunner{}
	probe := func(ctx context.Context, endpoint string) error {
		return errors.New("connection refused")
	}
	m := newTestManager(runner, probe)

	_, err := m.Start(context.Background(), Kafka)
	require.ErrorIs(t, err, ErrStartupTimeout)

	h, err := m.Handle(Kafka)
	require.NoError(t, err)
	require.Equal(t, StateFailed, h.State())

	// Pre-start cleanup plus teardown of the half-started deployment.
	require.Equal(t, 2, runner.count("down"))
}

func TestManager_StartComposeFailure(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{"up -d": errors.New("no such image")}}
	m := newTestManager(runner, probeOK)

	_, err := m.Start(context.Background(), Kafka)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrStartupTimeout)
}

func TestManager_StartUnknownPlatform(t *testing.T) {
	m := newTestManager(&fakeRunner{}, probeOK)
	_, err := m.Start(context.Background(), ID("pulsar"))
	require.Error(t, err)
}

func TestManager_Stop(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner, probeOK)

	h, err := m.Start(context.Background(), Kafka)
	require.NoError(t, err)

	m.Stop(context.Background(), h)
	require.Equal(t, StateStopped, h.State())
	require.Equal(t, 2, runner.count("down"))
	require.Equal(t, 0, runner.count("kill"))
}

func TestManager_StopEscalatesToKill(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{"down": errors.New("timed out")}}
	m := newTestManager(runner, probeOK)

	h, err := m.Handle(Kafka)
	require.NoError(t, err)

	m.Stop(context.Background(), h)
	require.Equal(t, StateStopped, h.State())
	require.Equal(t, 1, runner.count("kill"))
}

func TestManager_ContainerPID(t *testing.T) {
	runner := &fakeRunner{output: map[string]string{"inspect": " 4321\n"}}
	m := newTestManager(runner, probeOK)

	h, err := m.Handle(Redpanda)
	require.NoError(t, err)

	pid, err := m.ContainerPID(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, 4321, pid)
	require.Contains(t, runner.lines()[0], "docker inspect -f {{.State.Pid}} redpanda-broker")

	runner.output["inspect"] = "not a pid"
	_, err = m.ContainerPID(context.Background(), h)
	require.Error(t, err)
}

func TestLookup(t *testing.T) {
	p, err := Lookup("redpanda")
	require.NoError(t, err)
	require.Equal(t, Redpanda, p.ID)
	require.Equal(t, "localhost:19092", p.Endpoint)

	_, err = Lookup("rabbitmq")
	require.Error(t, err)

	require.Equal(t, []string{"kafka", "kafka-kraft", "redpanda"}, Names())
}
