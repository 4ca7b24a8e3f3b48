/*
prober.go - Connectivity watcher

PURPOSE:
  Implements ledger.Connectivity by probing the server's health endpoint
  on an interval. A state change is published on the transitions channel;
  the syncer drains the queue on every offline-to-online edge.

  The channel is buffered and sends never block: a slow consumer misses
  intermediate flaps but always sees the latest edge eventually, and the
  cron drain covers anything missed.
*/
package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coopstack/farm-ledger/ledger"
)

// ProbeFunc checks reachability of the server. A nil return means online.
type ProbeFunc func(ctx context.Context) error

// Prober polls a ProbeFunc and publishes connectivity transitions.
type Prober struct {
	probe    ProbeFunc
	interval time.Duration
	logger   *zap.Logger

	mu    sync.RWMutex
	state ledger.ConnState

	transitions chan ledger.ConnState
	stop        chan struct{}
	wg          sync.WaitGroup
}

// NewProber creates a prober. The initial state is offline until the first
// successful probe.
func NewProber(probe ProbeFunc, interval time.Duration, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		probe:       probe,
		interval:    interval,
		logger:      logger,
		state:       ledger.ConnOffline,
		transitions: make(chan ledger.ConnState, 8),
		stop:        make(chan struct{}),
	}
}

// State implements ledger.Connectivity.
func (p *Prober) State() ledger.ConnState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Transitions implements ledger.Connectivity.
func (p *Prober) Transitions() <-chan ledger.ConnState {
	return p.transitions
}

// Start begins probing. Probes run until Stop.
func (p *Prober) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop halts probing and closes the transitions channel.
func (p *Prober) Stop() {
	close(p.stop)
	p.wg.Wait()
	close(p.transitions)
}

func (p *Prober) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.check()
		}
	}
}

func (p *Prober) check() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	next := ledger.ConnOnline
	if err := p.probe(ctx); err != nil {
		next = ledger.ConnOffline
	}

	p.mu.Lock()
	changed := next != p.state
	p.state = next
	p.mu.Unlock()

	if !changed {
		return
	}
	p.logger.Info("connectivity changed", zap.String("state", next.String()))
	select {
	case p.transitions <- next:
	default:
		// Consumer is behind; the cron drain covers the missed edge.
	}
}
