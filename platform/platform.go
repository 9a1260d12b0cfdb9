package platform

import (
	"fmt"
	"sort"
	"sync"
)

// ID names one broker deployment under test.
type ID string

const (
	Kafka      ID = "kafka"
	KafkaKRaft ID = "kafka-kraft"
	Redpanda   ID = "redpanda"
)

// State is the readiness state of a deployment.
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

// Platform describes one member of the closed set of supported deployments.
// New platforms are added here, not by branching on strings elsewhere.
type Platform struct {
	// Deployment identifier
	ID ID
	// Broker bootstrap endpoint
	Endpoint string
	// Docker compose file describing the deployment
	ComposeFile string
	// Name of the broker container, used to resolve its PID for
	// container-scoped resource sampling
	Container string
	// Resource class shared with conflicting platforms; at most one
	// platform per class may be running at a time
	ResourceClass string
}

// platforms is the closed variant set. Kafka with Zookeeper and Kafka with
// KRaft bind the same host port range and therefore share a resource class.
var platforms = map[ID]Platform{
	Kafka: {
		ID:            Kafka,
		Endpoint:      "localhost:9092",
		ComposeFile:   "deploy/docker-compose.kafka.yml",
		Container:     "kafka-broker",
		ResourceClass: "kafka-9092",
	},
	KafkaKRaft: {
		ID:            KafkaKRaft,
		Endpoint:      "localhost:9092",
		ComposeFile:   "deploy/docker-compose.kafka-kraft.yml",
		Container:     "kafka-kraft-broker",
		ResourceClass: "kafka-9092",
	},
	Redpanda: {
		ID:            Redpanda,
		Endpoint:      "localhost:19092",
		ComposeFile:   "deploy/docker-compose.redpanda.yml",
		Container:     "redpanda-broker",
		ResourceClass: "redpanda-19092",
	},
}

// Lookup resolves a platform by identifier.
func Lookup(id string) (Platform, error) {
	p, ok := platforms[ID(id)]
	if !ok {
		return Platform{}, fmt.Errorf("unknown platform %q (supported: %v)", id, Names())
	}
	return p, nil
}

// Names returns the supported platform identifiers, sorted.
func Names() []string {
	names := make([]string, 0, len(platforms))
	for id := range platforms {
		names = append(names, string(id))
	}
	sort.Strings(names)
	return names
}

// Handle is the runtime reference to a started deployment. Its state is
// written only by the Manager; everyone else holds a read-only borrow.
type Handle struct {
	platform Platform

	mu    sync.RWMutex
	state State
}

func newHandle(p Platform) *Handle {
	return &Handle{platform: p, state: StateStarting}
}

// Platform returns the immutable platform description.
func (h *Handle) Platform() Platform { return h.platform }

// Endpoint returns the broker bootstrap endpoint.
func (h *Handle) Endpoint() string { return h.platform.Endpoint }

// State returns the current readiness state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}
