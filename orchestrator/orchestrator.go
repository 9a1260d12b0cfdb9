package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brokerbench/brokerbench/model"
	"github.com/brokerbench/brokerbench/platform"
	"github.com/brokerbench/brokerbench/sampler"
)

// ErrAborted reports a run that was cancelled by the operator or an
// external timeout before reaching completion.
var ErrAborted = errors.New("run aborted")

// Phase is one state of the per-run state machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhasePlatformStarting  Phase = "platform-starting"
	PhaseTopicProvisioning Phase = "topic-provisioning"
	PhaseRunning           Phase = "running"
	PhaseDraining          Phase = "draining"
	PhaseComplete          Phase = "complete"
	PhaseAborted           Phase = "aborted"
)

// PlatformController is the lifecycle surface the orchestrator drives.
// *platform.Manager implements it.
type PlatformController interface {
	Start(ctx context.Context, id platform.ID) (*platform.Handle, error)
	Stop(ctx context.Context, h *platform.Handle)
	WaitReady(ctx context.Context, h *platform.Handle, timeout time.Duration) error
}

// TopicAdmin provisions and removes test topics.
type TopicAdmin interface {
	Create(ctx context.Context, endpoint, name string, partitions, replicationFactor int) error
	Delete(ctx context.Context, endpoint, name string) error
}

// ProducerRunner and ConsumerRunner are the load-generating pair.
type ProducerRunner interface {
	Run(ctx context.Context) (model.ProducerMetrics, error)
}

type ConsumerRunner interface {
	Run(ctx context.Context, expected int64) (model.ConsumerMetrics, error)
}

// ClientFactory builds the producer/consumer pair for one run.
type ClientFactory func(cfg model.TestConfig, endpoint, topic string) (ProducerRunner, ConsumerRunner)

// SamplerFactory builds the resource sampler for one run, bound to the
// started platform so container-scoped counters can be used when available.
type SamplerFactory func(h *platform.Handle) *sampler.Sampler

// Orchestrator sequences a benchmark run: platform up, topic provisioned,
// load and sampling concurrent, drain, teardown, structured Result.
type Orchestrator struct {
	logger     zerolog.Logger
	platforms  PlatformController
	topics     TopicAdmin
	newSampler SamplerFactory
	newClients ClientFactory

	// Partitions and ReplicationFactor for the test topic.
	Partitions        int
	ReplicationFactor int
	// DrainGrace is how long in-flight sends and the consumer tail are
	// given after the load window before the run is wound down.
	DrainGrace time.Duration
	// ConsumerTail bounds how long the consumer may keep catching up
	// after the drain grace, before it is cancelled outright.
	ConsumerTail time.Duration
	// ReadyTimeout bounds the readiness re-check after topic creation.
	ReadyTimeout time.Duration
	// Cooldown is the pause between platforms in a multi-platform run.
	Cooldown time.Duration
	// OwnLifecycle makes the orchestrator stop the platform after the
	// run; when false the platform is left running for the caller.
	OwnLifecycle bool
}

func New(logger zerolog.Logger, platforms PlatformController, topics TopicAdmin, newSampler SamplerFactory, newClients ClientFactory) *Orchestrator {
	return &Orchestrator{
		logger:            logger.With().Str("component", "orchestrator").Logger(),
		platforms:         platforms,
		topics:            topics,
		newSampler:        newSampler,
		newClients:        newClients,
		Partitions:        3,
		ReplicationFactor: 1,
		DrainGrace:        5 * time.Second,
		ConsumerTail:      15 * time.Second,
		ReadyTimeout:      30 * time.Second,
		Cooldown:          5 * time.Second,
		OwnLifecycle:      true,
	}
}

// Run executes one single-platform benchmark. Whatever happens, a Result
// tagged with its terminal state comes back: an aborted run returns the
// partial metrics gathered so far alongside a non-nil error.
func (o *Orchestrator) Run(ctx context.Context, id platform.ID, cfg model.TestConfig) (model.BenchmarkResult, error) {
	result := model.BenchmarkResult{
		ID:       newRunID(),
		Platform: string(id),
		Config:   cfg,
		State:    model.RunStateAborted,
	}
	if err := cfg.Validate(); err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := o.logger.With().Str("platform", string(id)).Str("run", result.ID[:8]).Logger()
	phase := PhasePlatformStarting
	logger.Info().Str("phase", string(phase)).Msg("Starting platform")

	h, err := o.platforms.Start(ctx, id)
	if err != nil {
		return o.abort(ctx, logger, result, phase, nil, "", err)
	}

	phase = PhaseTopicProvisioning
	result.Topic = fmt.Sprintf("benchmark-%s-%s", id, uuid.NewString()[:8])
	logger.Info().Str("phase", string(phase)).Str("topic", result.Topic).Msg("Provisioning topic")

	if err := o.topics.Create(ctx, h.Endpoint(), result.Topic, o.Partitions, o.ReplicationFactor); err != nil {
		return o.abort(ctx, logger, result, phase, h, result.Topic, err)
	}
	if err := o.platforms.WaitReady(ctx, h, o.ReadyTimeout); err != nil {
		return o.abort(ctx, logger, result, phase, h, result.Topic, err)
	}

	phase = PhaseRunning
	logger.Info().Str("phase", string(phase)).Dur("duration", cfg.Duration).Msg("Load window open")

	// The sampler starts before and stops after the client pair so the
	// resource series always brackets the load window.
	smpl := o.newSampler(h)
	smpl.Start()

	producer, consumer := o.newClients(cfg, h.Endpoint(), result.Topic)

	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()

	type consumerOutcome struct {
		metrics model.ConsumerMetrics
		err     error
	}
	consumerDone := make(chan consumerOutcome, 1)
	go func() {
		m, err := consumer.Run(consumerCtx, cfg.MessageLimit)
		consumerDone <- consumerOutcome{m, err}
	}()

	result.StartTime = time.Now()
	prodMetrics, prodErr := producer.Run(ctx)
	result.Producer = prodMetrics

	phase = PhaseDraining
	logger.Info().Str("phase", string(phase)).Msg("Draining consumer tail")

	var consOutcome consumerOutcome
	select {
	case consOutcome = <-consumerDone:
	case <-time.After(o.DrainGrace + o.ConsumerTail):
		cancelConsumer()
		consOutcome = <-consumerDone
	case <-ctx.Done():
		cancelConsumer()
		consOutcome = <-consumerDone
	}
	result.Consumer = consOutcome.metrics
	result.EndTime = time.Now()

	result.Samples = smpl.Stop()
	result.Resources = model.SummarizeResources(result.Samples)
	result.Loss = result.Producer.Sent - result.Consumer.Received

	o.teardown(ctx, logger, h, result.Topic)

	if ctx.Err() != nil {
		result.Error = ErrAborted.Error()
		logger.Warn().Str("phase", string(PhaseAborted)).Msg("Run cancelled, returning partial metrics")
		return result, fmt.Errorf("%w during %s on %s: %v", ErrAborted, phase, id, ctx.Err())
	}
	if prodErr != nil {
		result.Error = prodErr.Error()
		return result, fmt.Errorf("producer failed during %s on %s: %w", phase, id, prodErr)
	}
	if consOutcome.err != nil && !errors.Is(consOutcome.err, context.Canceled) {
		result.Error = consOutcome.err.Error()
		return result, fmt.Errorf("consumer failed during %s on %s: %w", phase, id, consOutcome.err)
	}

	result.State = model.RunStateComplete
	logger.Info().
		Str("phase", string(PhaseComplete)).
		Int64("sent", result.Producer.Sent).
		Int64("received", result.Consumer.Received).
		Int64("loss", result.Loss).
		Msg("Run complete")
	return result, nil
}

// RunAll executes the same configuration against several platforms in
// sequence. Platforms are never run concurrently against each other, so a
// busy broker cannot skew a competitor's numbers. Failed runs are kept as
// aborted Results rather than discarded.
func (o *Orchestrator) RunAll(ctx context.Context, ids []platform.ID, cfg model.TestConfig) []model.BenchmarkResult {
	results := make([]model.BenchmarkResult, 0, len(ids))
	for i, id := range ids {
		if i > 0 && o.Cooldown > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.Cooldown):
			}
		}
		res, err := o.Run(ctx, id, cfg)
		if err != nil {
			o.logger.Error().Err(err).Str("platform", string(id)).Msg("Run failed")
		}
		results = append(results, res)
		if ctx.Err() != nil {
			break
		}
	}
	return results
}

// abort tears down whatever was brought up and returns the partial result
// tagged as failed, with enough context (phase, platform) to act on.
func (o *Orchestrator) abort(ctx context.Context, logger zerolog.Logger, result model.BenchmarkResult, phase Phase, h *platform.Handle, topic string, cause error) (model.BenchmarkResult, error) {
	result.Error = cause.Error()
	logger.Error().Err(cause).Str("phase", string(phase)).Msg("Aborting run")
	if h != nil {
		o.teardown(ctx, logger, h, topic)
	}
	return result, fmt.Errorf("%s on %s: %w", phase, result.Platform, cause)
}

// teardown deletes the topic and optionally stops the platform. Teardown
// failures are logged and swallowed so they never mask the run's outcome.
func (o *Orchestrator) teardown(ctx context.Context, logger zerolog.Logger, h *platform.Handle, topic string) {
	// A cancelled context must not block cleanup.
	cleanupCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		cleanupCtx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}
	if topic != "" {
		if err := o.topics.Delete(cleanupCtx, h.Endpoint(), topic); err != nil {
			logger.Warn().Err(err).Str("topic", topic).Msg("Topic deletion failed")
		}
	}
	if o.OwnLifecycle {
		o.platforms.Stop(cleanupCtx, h)
	}
}

// newRunID generates a random 16-byte hex run identifier.
func newRunID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// UUID if it somehow does.
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
