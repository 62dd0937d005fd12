package alarm

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dbfleet/dbfleet/internal/config"
	"github.com/dbfleet/dbfleet/pkg/types"
)

const (
	maxHistoryLen = 200
	recentWindow  = time.Hour
)

// Alarm states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alarm is one node alarm produced by the Notifier.
type Alarm struct {
	ID         string     `json:"id"`
	Key        string     `json:"key"`
	Engine     string     `json:"engine"`
	Cluster    string     `json:"cluster"`
	Node       string     `json:"node"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// Notifier turns classified nodes into alarms and delivers every transition
// to the configured webhooks.
//
// A node fires when its status is at or above the configured severity and the
// registry does not suppress it. A firing alarm resolves once the node is
// healthy again or gets silenced. Nodes absent from a snapshot keep whatever
// alarm they had, since their state is unknown rather than recovered.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	registry *Registry
	webhooks []config.WebhookConfig
	cooldown time.Duration
	minLevel types.HealthStatus
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alarm    // key: node key
	lastFire map[string]time.Time // for cooldown
	history  []*Alarm             // recently resolved
	inflight sync.WaitGroup
}

// NewNotifier builds a Notifier from the alarm configuration.
func NewNotifier(cfg config.AlarmsConfig, reg *Registry) *Notifier {
	minLevel := types.StatusWarning
	if cfg.MinSeverity == "critical" {
		minLevel = types.StatusCritical
	}
	return &Notifier{
		registry: reg,
		webhooks: cfg.Webhooks,
		cooldown: cfg.Cooldown,
		minLevel: minLevel,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		active:   make(map[string]*Alarm),
		lastFire: make(map[string]time.Time),
	}
}

// Evaluate compares nodes against the active alarms. It returns the number of
// alarms fired and resolved by this call.
func (n *Notifier) Evaluate(nodes []types.NodeHealth) (fired, resolved int) {
	now := n.now()
	keys := make([]string, len(nodes))
	for i, nh := range nodes {
		keys[i] = nh.Key()
	}
	suppressed := n.registry.SuppressedSet(keys, now)

	var outbox []Alarm

	n.mu.Lock()
	for i, nh := range nodes {
		key := keys[i]
		breach := nh.Status <= n.minLevel
		cur, isActive := n.active[key]

		switch {
		case breach && !suppressed[key]:
			sev := nh.Status.String()
			if isActive {
				if cur.Severity == sev {
					continue
				}
				// Escalation or de-escalation while still firing.
				cur.Severity = sev
				cur.Message = message(nh)
				outbox = append(outbox, *cur)
				continue
			}
			if last, ok := n.lastFire[key]; ok && now.Sub(last) < n.cooldown {
				continue
			}
			a := &Alarm{
				ID:       fmt.Sprintf("%s:%d", key, now.UnixNano()),
				Key:      key,
				Engine:   string(nh.Engine),
				Cluster:  nh.ClusterID,
				Node:     nh.Name,
				Severity: sev,
				Message:  message(nh),
				FiredAt:  now,
				State:    StateFiring,
			}
			n.active[key] = a
			n.lastFire[key] = now
			outbox = append(outbox, *a)
			fired++

		case isActive:
			at := now
			cur.State = StateResolved
			cur.ResolvedAt = &at
			if suppressed[key] {
				cur.Message = key + " silenced"
			} else {
				cur.Message = key + " recovered"
			}
			delete(n.active, key)
			n.history = append(n.history, cur)
			if len(n.history) > maxHistoryLen {
				n.history = n.history[len(n.history)-maxHistoryLen:]
			}
			outbox = append(outbox, *cur)
			resolved++
		}
	}
	n.mu.Unlock()

	for i := range outbox {
		a := outbox[i]
		if a.State == StateFiring {
			slog.Warn("alarm: firing", "key", a.Key, "severity", a.Severity, "message", a.Message)
		} else {
			slog.Info("alarm: resolved", "key", a.Key, "message", a.Message)
		}
		n.inflight.Add(1)
		go func() {
			defer n.inflight.Done()
			n.deliver(&a)
		}()
	}
	return fired, resolved
}

// Active returns copies of all firing alarms plus alarms resolved within the
// past hour, newest first.
func (n *Notifier) Active() []Alarm {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := n.now().Add(-recentWindow)
	out := make([]Alarm, 0, len(n.active))
	for _, a := range n.active {
		out = append(out, *a)
	}
	for _, a := range n.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].FiredAt.After(out[j].FiredAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Firing returns the number of currently firing alarms.
func (n *Notifier) Firing() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.active)
}

// Wait blocks until every webhook delivery started so far has finished.
func (n *Notifier) Wait() { n.inflight.Wait() }

func message(nh types.NodeHealth) string {
	return fmt.Sprintf("%s is %s: %s", nh.Key(), nh.Status, nh.Reason)
}
