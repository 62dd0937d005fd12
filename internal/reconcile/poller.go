package reconcile

import (
	"time"

	"github.com/dbfleet/dbfleet/internal/config"
	"github.com/dbfleet/dbfleet/internal/source"
	"github.com/dbfleet/dbfleet/pkg/types"
)

// uptimeWindow is the number of recent fetch outcomes used for UptimePct.
const uptimeWindow = 20

// poller is the per-source state. Only the source's own goroutine touches it.
type poller struct {
	src      config.Source
	fetcher  source.Fetcher
	interval time.Duration
	timeout  time.Duration

	res       types.SourceResult
	history   []bool
	certCheck time.Time
}

func newPoller(src config.Source, f source.Fetcher, interval, timeout time.Duration) *poller {
	return &poller{
		src:      src,
		fetcher:  f,
		interval: interval,
		timeout:  timeout,
		res: types.SourceResult{
			SourceID:  src.ID,
			Engine:    src.Engine,
			State:     types.SourceIdle,
			Nodes:     []types.NodeHealth{},
			UptimePct: 100,
		},
	}
}

func (p *poller) recordFetch(success bool) {
	if len(p.history) >= uptimeWindow {
		p.history = p.history[1:]
	}
	p.history = append(p.history, success)
}

func (p *poller) uptimePct() float64 {
	if len(p.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range p.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(p.history)) * 100
}
