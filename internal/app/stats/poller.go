package stats

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReportFunc receives a successful sample. streamID is the id the request
// was issued for, not whatever the poller holds at delivery time.
type ReportFunc func(streamID domain.StreamID, count int)

// Poller samples the listener count of the published stream on a fixed
// cadence. It stays Idle until a stream id is known and then polls until
// Stop; there is no way back to Idle.
type Poller struct {
	fetcher  core.StatsFetcher
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	report   ReportFunc
	logger   zerolog.Logger

	mu       sync.Mutex
	streamID domain.StreamID
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
}

type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
	Logger   *zerolog.Logger
}

func NewPoller(fetcher core.StatsFetcher, report ReportFunc, opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	logger := log.With().Str("module", "app.stats").Logger()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "stats").Logger()
	}
	return &Poller{
		fetcher:  fetcher,
		clock:    opts.Clock,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		report:   report,
		logger:   logger,
	}
}

// SetStreamID records the stream to sample. The first non-empty id moves
// the poller from Idle to Active; later ids only change what is sampled.
func (p *Poller) SetStreamID(id domain.StreamID) {
	if id == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.streamID = id
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	ticker := p.clock.Ticker(p.interval)
	p.logger.Info().Str("stream", string(id)).Dur("interval", p.interval).Msg("stats polling started")
	go p.loop(ctx, ticker, p.done)
}

func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil && !p.stopped
}

// Stop cancels polling and waits for the loop to exit. No report is made
// after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info().Msg("stats polling stopped")
}

func (p *Poller) current() domain.StreamID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamID
}

func (p *Poller) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	id := p.current()
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	count, err := p.fetcher.ListenerCount(reqCtx, id)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn().Err(err).Str("stream", string(id)).Msg("listener count request failed")
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.report(id, count)
}
