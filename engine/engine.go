// Package engine wires the messaging contexts together: background coordinator,
// popup progress tracker, page bridge and one content script per loaded site tab.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cart-autofill/adapters"
	"cart-autofill/internal/types"
	"cart-autofill/messaging"
	"cart-autofill/quantity"
	"cart-autofill/utils"
)

// Engine owns the bus and every context attached to it
type Engine struct {
	config     *types.Config
	logger     types.Logger
	reconciler *quantity.Reconciler

	bus      *messaging.Bus
	registry *messaging.Registry
	tracker  *messaging.ProgressTracker
	bridge   *messaging.Bridge

	mu      sync.Mutex
	scripts map[int]func()
	closers []func()
}

// New creates an engine opening and finding tabs through tabs
func New(config *types.Config, logger types.Logger, tabs types.TabManager) *Engine {
	bus := messaging.NewBus(config.RequestTimeout, logger)
	registry := messaging.NewRegistry()
	tracker := messaging.NewProgressTracker(logger)

	e := &Engine{
		config:     config,
		logger:     logger,
		reconciler: quantity.NewReconcilerFromConfig(config),
		bus:        bus,
		registry:   registry,
		tracker:    tracker,
		bridge:     messaging.NewBridge(bus, config.AllowedOrigins, logger),
		scripts:    make(map[int]func()),
	}

	background := messaging.NewBackground(bus, registry, tabs, config, logger)
	e.closers = append(e.closers, background.Register(), tracker.Register(bus))
	return e
}

// Attach starts a content script for site in tab tabID, replacing any previous one
func (e *Engine) Attach(tabID int, site types.Site, page types.Page) error {
	driver, err := adapters.NewDriver(site, page, e.config, e.logger, e.reconciler)
	if err != nil {
		return fmt.Errorf("attach tab %d: %w", tabID, err)
	}

	script := messaging.NewContentScript(e.bus, tabID, driver, e.config, e.logger)

	e.mu.Lock()
	defer e.mu.Unlock()
	if unlisten, ok := e.scripts[tabID]; ok {
		unlisten()
	}
	e.scripts[tabID] = script.Register()
	return nil
}

// OnLoad attaches a content script when a loaded tab belongs to a supported site.
// It matches the signature of the browser client's load hook.
func (e *Engine) OnLoad(tab types.Tab, page types.Page) {
	site, ok := e.SiteFor(tab.URL)
	if !ok {
		e.logger.Debugf("Tab %d (%s) is not a supported site", tab.ID, tab.URL)
		return
	}
	if err := e.Attach(tab.ID, site, page); err != nil {
		e.logger.Errorf("Failed to attach content script: %v", err)
	}
}

// Detach stops the content script in tab tabID
func (e *Engine) Detach(tabID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if unlisten, ok := e.scripts[tabID]; ok {
		unlisten()
		delete(e.scripts, tabID)
	}
}

// SiteFor returns the site whose domain serves rawURL
func (e *Engine) SiteFor(rawURL string) (types.Site, bool) {
	for _, site := range types.Sites {
		if profile, ok := e.config.Sites[site]; ok && utils.HostMatches(rawURL, profile.Domain) {
			return site, true
		}
	}
	return "", false
}

// Start runs an automation request the way the page would send it.
// Rejections and connection failures come back as errors.
func (e *Engine) Start(ctx context.Context, req types.AutomationRequest) (types.AutomationResult, error) {
	reply, err := e.bus.Request(ctx, messaging.AddrBackground, messaging.Envelope{
		Source: messaging.SourceApp,
		Action: messaging.ActionStartAutomation,
		Site:   string(req.Site),
		Items:  req.Items,
	})
	if err != nil {
		return types.NewAutomationResult(), err
	}

	switch reply.Error {
	case "":
		return reply.Result(), nil
	case types.MsgAlreadyInProgress:
		return types.NewAutomationResult(), fmt.Errorf("%w: %s", types.ErrAlreadyInProgress, req.Site)
	case types.MsgConnectFailed:
		return types.NewAutomationResult(), fmt.Errorf("%w: %s", types.ErrDeliveryFailed, req.Site)
	default:
		return types.NewAutomationResult(), errors.New(reply.Error)
	}
}

// Bridge returns the page bridge
func (e *Engine) Bridge() *messaging.Bridge {
	return e.bridge
}

// Progress returns the popup progress tracker
func (e *Engine) Progress() *messaging.ProgressTracker {
	return e.tracker
}

// Registry returns the per-site automation registry
func (e *Engine) Registry() *messaging.Registry {
	return e.registry
}

// Close detaches every context from the bus
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for tabID, unlisten := range e.scripts {
		unlisten()
		delete(e.scripts, tabID)
	}
	for _, closer := range e.closers {
		closer()
	}
	e.closers = nil
}
