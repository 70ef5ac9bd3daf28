package messaging

import (
	"context"
	"sync"

	"cart-autofill/internal/types"
)

// ProgressTracker plays the popup: it keeps the latest progress update per site
type ProgressTracker struct {
	mu     sync.RWMutex
	latest map[types.Site]Envelope
	logger types.Logger
}

// NewProgressTracker creates an empty tracker
func NewProgressTracker(logger types.Logger) *ProgressTracker {
	return &ProgressTracker{
		latest: make(map[types.Site]Envelope),
		logger: logger,
	}
}

// Register attaches the tracker to the popup address
func (p *ProgressTracker) Register(bus *Bus) func() {
	return bus.Listen(AddrPopup, p.Handle)
}

// Handle records a progress update
func (p *ProgressTracker) Handle(_ context.Context, env Envelope) Envelope {
	if env.Action != ActionProgressUpdate {
		return Envelope{}
	}
	site, err := types.ParseSite(env.Site)
	if err != nil {
		p.logger.Debugf("Dropping progress update: %v", err)
		return Envelope{}
	}

	p.mu.Lock()
	p.latest[site] = env
	p.mu.Unlock()

	p.logger.Infof("[%s] %.0f%% %s", site, env.Progress, env.Message)
	return Envelope{}
}

// Latest returns the last update seen for site
func (p *ProgressTracker) Latest(site types.Site) (Envelope, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	env, ok := p.latest[site]
	return env, ok
}
