// Package reconcile drives the poll cycle of every telemetry source.
//
// Each source runs in its own goroutine on its own ticker and moves through
// idle, fetching and then succeeded or failed. A successful fetch is adapted
// and classified into a fresh result. A failed fetch keeps the previous nodes
// marked stale until the source reaches the configured failure limit, after
// which its contribution is an explicit empty, degraded set. Every completed
// cycle republishes the fleet snapshot and re-evaluates alarms.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbfleet/dbfleet/internal/adapter"
	"github.com/dbfleet/dbfleet/internal/alarm"
	"github.com/dbfleet/dbfleet/internal/compute"
	"github.com/dbfleet/dbfleet/internal/config"
	"github.com/dbfleet/dbfleet/internal/security"
	"github.com/dbfleet/dbfleet/internal/source"
	"github.com/dbfleet/dbfleet/internal/store"
	"github.com/dbfleet/dbfleet/pkg/types"
)

// Recorder receives fetch and snapshot observations, typically *metrics.Metrics.
type Recorder interface {
	ObserveFetch(sourceID string, engine types.Engine, d time.Duration, err error)
	ObserveSnapshot(snap types.Snapshot, firing, suppressed int)
}

// Deps are the collaborators of a Reconciler. Only Store is required.
type Deps struct {
	Store    *store.Store
	Registry *alarm.Registry
	Notifier *alarm.Notifier
	Recorder Recorder

	// NewFetcher builds the fetcher of a source. Defaults to source.New.
	NewFetcher func(ctx context.Context, src config.Source) (source.Fetcher, error)

	// CheckCert inspects the certificate of a source. Defaults to
	// security.CheckAt.
	CheckCert func(ctx context.Context, src config.Source, now time.Time) *types.CertStatus
}

// Reconciler owns one poller per configured source.
type Reconciler struct {
	deps        Deps
	maxFailures int
	certEvery   time.Duration
	now         func() time.Time

	pollers []*poller

	thMu       sync.RWMutex
	thresholds compute.Thresholds

	pubMu sync.Mutex // orders snapshot publication with alarm evaluation
}

// New builds the pollers for every source in cfg. A source whose fetcher
// cannot be built is logged and skipped; the others still run.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Reconciler, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("reconcile: store is required")
	}
	if deps.NewFetcher == nil {
		deps.NewFetcher = source.New
	}
	if deps.CheckCert == nil {
		deps.CheckCert = security.CheckAt
	}

	r := &Reconciler{
		deps:        deps,
		maxFailures: cfg.Poll.MaxFailures,
		certEvery:   cfg.Poll.CertCheckInterval,
		now:         time.Now,
		thresholds:  cfg.Thresholds,
	}
	if r.maxFailures <= 0 {
		r.maxFailures = config.DefaultMaxFailures
	}

	for _, src := range cfg.Sources {
		f, err := deps.NewFetcher(ctx, src)
		if err != nil {
			slog.Error("reconcile: skipping source, could not build fetcher", "source", src.ID, "err", err)
			continue
		}
		p := newPoller(src, f, cfg.IntervalFor(src), cfg.TimeoutFor(src))
		r.pollers = append(r.pollers, p)
		deps.Store.Put(p.res)
		slog.Info("reconcile: registered source",
			"id", src.ID, "engine", src.Engine, "kind", src.Kind, "interval", p.interval)
	}
	if len(r.pollers) == 0 {
		slog.Warn("reconcile: no usable sources, serving an empty snapshot")
	}
	return r, nil
}

// Sources returns the number of sources being polled.
func (r *Reconciler) Sources() int { return len(r.pollers) }

// Thresholds returns the thresholds applied to the next classification.
func (r *Reconciler) Thresholds() compute.Thresholds {
	r.thMu.RLock()
	defer r.thMu.RUnlock()
	return r.thresholds
}

// SetThresholds replaces the classifier thresholds. Every source picks them
// up on its next cycle.
func (r *Reconciler) SetThresholds(th compute.Thresholds) {
	r.thMu.Lock()
	defer r.thMu.Unlock()
	r.thresholds = th
}

// Run polls every source until ctx is cancelled, then closes the fetchers.
func (r *Reconciler) Run(ctx context.Context) error {
	r.publish()

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.pollers {
		p := p
		g.Go(func() error {
			r.loop(ctx, p)
			return nil
		})
	}
	err := g.Wait()

	for _, p := range r.pollers {
		if cerr := p.fetcher.Close(); cerr != nil {
			slog.Warn("reconcile: close fetcher", "source", p.src.ID, "err", cerr)
		}
	}
	return err
}

func (r *Reconciler) loop(ctx context.Context, p *poller) {
	r.cycle(ctx, p)

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.cycle(ctx, p)
		}
	}
}

// cycle runs one fetch of p and publishes the outcome, leaving the source idle
// with the outcome in LastOutcome. A fetch interrupted by shutdown is not
// counted as a failure.
func (r *Reconciler) cycle(ctx context.Context, p *poller) types.SourceResult {
	now := r.now()
	p.res.State = types.SourceFetching
	p.res.LastAttempt = now
	r.deps.Store.Put(p.res)

	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	start := time.Now()
	payload, err := p.fetcher.Fetch(fctx)
	elapsed := time.Since(start)
	cancel()

	if ctx.Err() != nil {
		return p.res
	}
	if r.deps.Recorder != nil {
		r.deps.Recorder.ObserveFetch(p.src.ID, p.src.Engine, elapsed, err)
	}

	if err != nil {
		r.fail(p, err)
	} else {
		r.succeed(p, payload, now)
	}
	p.recordFetch(err == nil)
	p.res.UptimePct = p.uptimePct()

	if r.certEvery > 0 && (p.certCheck.IsZero() || now.Sub(p.certCheck) >= r.certEvery) {
		p.certCheck = now
		if cs := r.deps.CheckCert(ctx, p.src, now); cs != nil {
			p.res.Cert = cs
			if cs.Status != "valid" {
				slog.Warn("reconcile: certificate needs attention",
					"source", p.src.ID, "status", cs.Status, "days_left", cs.DaysLeft)
			}
		}
	}

	p.res.LastOutcome = p.res.State
	p.res.State = types.SourceIdle
	r.deps.Store.Put(p.res)
	r.publish()
	return p.res
}

func (r *Reconciler) succeed(p *poller, payload any, now time.Time) {
	if p.res.Degraded {
		slog.Info("reconcile: source recovered", "source", p.src.ID, "after_failures", p.res.Failures)
	}
	p.res.State = types.SourceSucceeded
	p.res.Failures = 0
	p.res.Stale = false
	p.res.Degraded = false
	p.res.LastError = ""
	p.res.LastSuccess = now

	res, err := adapter.Adapt(p.src.Engine, payload)
	if err != nil {
		slog.Warn("reconcile: payload rejected, contributing no nodes", "source", p.src.ID, "err", err)
		p.res.ShapeError = err.Error()
		p.res.Nodes = []types.NodeHealth{}
		p.res.Dropped = 0
		return
	}
	for _, d := range res.Dropped {
		slog.Warn("reconcile: record dropped", "source", p.src.ID, "cluster", d.Cluster, "reason", d.Reason)
	}

	p.res.ShapeError = ""
	p.res.Dropped = len(res.Dropped)
	p.res.Nodes = compute.Evaluate(res.Records, r.Thresholds())
	slog.Debug("reconcile: source polled", "source", p.src.ID, "nodes", len(p.res.Nodes), "dropped", p.res.Dropped)
}

func (r *Reconciler) fail(p *poller, err error) {
	p.res.State = types.SourceFailed
	p.res.Failures++
	p.res.LastError = err.Error()
	p.res.Stale = true

	if p.res.Failures < r.maxFailures {
		slog.Warn("reconcile: fetch failed, keeping last data",
			"source", p.src.ID, "failures", p.res.Failures, "err", err)
		return
	}
	if !p.res.Degraded {
		slog.Error("reconcile: source degraded, dropping its nodes",
			"source", p.src.ID, "failures", p.res.Failures, "err", err)
	}
	p.res.Degraded = true
	p.res.Nodes = []types.NodeHealth{}
}

// publish rebuilds the snapshot and feeds it to the alarm layer and metrics.
func (r *Reconciler) publish() types.Snapshot {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	snap := r.deps.Store.Publish()
	nodes := snap.Nodes()
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Key()
	}

	if r.deps.Registry != nil {
		if added := r.deps.Registry.Observe(keys); added > 0 {
			slog.Debug("reconcile: new nodes observed", "count", added)
		}
	}
	firing := 0
	if r.deps.Notifier != nil {
		r.deps.Notifier.Evaluate(nodes)
		firing = r.deps.Notifier.Firing()
	}
	if r.deps.Recorder != nil {
		suppressed := 0
		if r.deps.Registry != nil {
			for _, muted := range r.deps.Registry.SuppressedSet(keys, r.now()) {
				if muted {
					suppressed++
				}
			}
		}
		r.deps.Recorder.ObserveSnapshot(snap, firing, suppressed)
	}
	return snap
}
