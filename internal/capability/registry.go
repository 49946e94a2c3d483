// Package capability announces this daemon on the bus and tracks the
// tonevoice daemons it hears from.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pipboy3000/usual-tone-of-voice/internal/bus"
	"github.com/pipboy3000/usual-tone-of-voice/internal/config"
	"github.com/pipboy3000/usual-tone-of-voice/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// NodeInfo is the last known presence of one daemon.
type NodeInfo struct {
	ID           string    `json:"id"`
	Version      string    `json:"version,omitempty"`
	State        string    `json:"state"`
	Capabilities []string  `json:"capabilities"`
	LastSeen     time.Time `json:"last_seen"`
	Healthy      bool      `json:"healthy"`
}

// Local describes what this daemon advertises. State is sampled on every
// heartbeat.
type Local struct {
	Version      string
	Capabilities []string
	State        func() string
}

type Registry struct {
	cfg     config.NodeConfig
	local   Local
	log     *slog.Logger
	bus     *bus.Client
	subject string

	mu     sync.RWMutex
	nodes  map[string]*NodeInfo
	cancel context.CancelFunc
	sub    *nats.Subscription
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewRegistry(ctx context.Context, cfg config.NodeConfig, local Local, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:     cfg,
		local:   local,
		log:     log.With(slog.String("component", "capability-registry")),
		bus:     busClient,
		subject: protocol.PresenceSubject(busClient.Prefix()),
		nodes:   make(map[string]*NodeInfo),
		cancel:  cancel,
		now:     time.Now,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	sub, err := busClient.Conn().Subscribe(r.subject, r.handlePresence)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe presence: %w", err)
	}
	r.sub = sub

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	r.wg.Add(1)
	go r.run(ctx)
	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.sub != nil {
		_ = r.sub.Drain()
	}
}

func (r *Registry) run(ctx context.Context) {
	defer r.wg.Done()
	heartbeat := time.NewTicker(time.Duration(r.cfg.HeartbeatInterval) * time.Millisecond)
	defer heartbeat.Stop()
	health := time.NewTicker(time.Second)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := r.announce(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		case <-health.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) announce() error {
	state := ""
	if r.local.State != nil {
		state = r.local.State()
	}
	msg := protocol.Presence{
		NodeID:       r.cfg.ID,
		Version:      r.local.Version,
		State:        state,
		Capabilities: r.local.Capabilities,
		Timestamp:    r.now().UTC(),
	}
	return r.bus.PublishJSON(r.subject, msg)
}

func (r *Registry) handlePresence(msg *nats.Msg) {
	var presence protocol.Presence
	if err := json.Unmarshal(msg.Data, &presence); err != nil {
		r.log.Warn("invalid presence message", slog.String("error", err.Error()))
		return
	}
	if presence.NodeID == "" {
		return
	}
	if presence.Timestamp.IsZero() {
		presence.Timestamp = r.now().UTC()
	}
	r.update(presence)
}

func (r *Registry) update(p protocol.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[p.NodeID]
	if !ok {
		node = &NodeInfo{ID: p.NodeID}
		r.nodes[p.NodeID] = node
		r.log.Info("node discovered", slog.String("node_id", p.NodeID))
	}
	node.Version = p.Version
	node.State = p.State
	if len(p.Capabilities) > 0 {
		node.Capabilities = append([]string(nil), p.Capabilities...)
	}
	node.LastSeen = p.Timestamp
	node.Healthy = true
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := r.now()
	for _, node := range r.nodes {
		if node.Healthy && now.Sub(node.LastSeen) > timeout {
			node.Healthy = false
			r.log.Warn("node heartbeat lost", slog.String("node_id", node.ID))
		}
	}
}

// Healthy reports whether this daemon's own presence made the round trip
// through the bus recently.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[r.cfg.ID]
	return ok && node.Healthy
}

// Nodes returns known daemons sorted by id, filtered when filter is set.
func (r *Registry) Nodes(filter func(NodeInfo) bool) []NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []NodeInfo
	for _, node := range r.nodes {
		n := *node
		n.Capabilities = append([]string(nil), node.Capabilities...)
		if filter == nil || filter(n) {
			results = append(results, n)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/pipboy3000/usual-tone-of-voice/capability")
	nodes, err := meter.Int64ObservableGauge("tonevoice_nodes",
		metric.WithDescription("Known tonevoice daemons"))
	if err != nil {
		return err
	}
	healthy, err := meter.Int64ObservableGauge("tonevoice_nodes_healthy",
		metric.WithDescription("Daemons with a recent heartbeat"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		total, up := r.counts()
		obs.ObserveInt64(nodes, total)
		obs.ObserveInt64(healthy, up)
		return nil
	}, nodes, healthy)
	return err
}

func (r *Registry) counts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total, up int64
	for _, node := range r.nodes {
		total++
		if node.Healthy {
			up++
		}
	}
	return total, up
}

// WithCapability matches nodes advertising name, either exactly or as the
// family before a colon ("stt" matches "stt:exec").
func WithCapability(name string) func(NodeInfo) bool {
	return func(node NodeInfo) bool {
		for _, c := range node.Capabilities {
			if c == name || strings.HasPrefix(c, name+":") {
				return true
			}
		}
		return false
	}
}

// Describe builds the capability list a daemon advertises from its config.
func Describe(cfg config.Config) []string {
	caps := []string{
		"capture:" + cfg.Capture.Mode,
		"stt:" + cfg.STT.Mode,
		"normalize",
	}
	if cfg.Rewrite.Enabled {
		caps = append(caps, "rewrite:"+cfg.Rewrite.Mode)
	}
	if strings.TrimSpace(cfg.Delivery.PasteCommand) != "" {
		caps = append(caps, "paste")
	}
	return caps
}
