package messaging

import (
	"context"
	"errors"
	"fmt"

	"cart-autofill/internal/types"
	"cart-autofill/utils"
)

// Background coordinates automation requests: one run per site at a time,
// delivered to the content script of a tab on that site.
type Background struct {
	bus      *Bus
	registry *Registry
	tabs     types.TabManager
	config   *types.Config
	logger   types.Logger
}

// NewBackground creates a new background coordinator
func NewBackground(bus *Bus, registry *Registry, tabs types.TabManager, config *types.Config, logger types.Logger) *Background {
	return &Background{
		bus:      bus,
		registry: registry,
		tabs:     tabs,
		config:   config,
		logger:   logger,
	}
}

// Register attaches the coordinator to the background address
func (bg *Background) Register() func() {
	return bg.bus.Listen(AddrBackground, bg.Handle)
}

// Handle dispatches an envelope addressed to the background
func (bg *Background) Handle(ctx context.Context, env Envelope) Envelope {
	switch env.Action {
	case ActionStartAutomation:
		return bg.startAutomation(ctx, env)
	case ActionProgressUpdate:
		bg.bus.Notify(ctx, AddrPopup, env)
		return Envelope{}
	default:
		bg.logger.Warnf("Background ignoring unknown action %q", env.Action)
		return ErrorEnvelope(fmt.Sprintf("unknown action: %q", env.Action))
	}
}

func (bg *Background) startAutomation(ctx context.Context, env Envelope) Envelope {
	site, err := types.ParseSite(env.Site)
	if err != nil {
		return ErrorEnvelope(err.Error())
	}
	if len(env.Items) == 0 {
		return ErrorEnvelope(types.MsgNoItems)
	}
	profile, ok := bg.config.Sites[site]
	if !ok {
		return ErrorEnvelope(fmt.Sprintf("%v: %s", types.ErrUnsupportedSite, site))
	}

	lease, ok := bg.registry.TryAcquire(site, bg.config.RegistryTTL)
	if !ok {
		bg.logger.Warnf("[%s] Rejected start: automation already running", site)
		return ErrorEnvelope(types.MsgAlreadyInProgress)
	}
	defer bg.registry.Release(lease)

	bg.logger.Infof("[%s] Starting automation for %d items", site, len(env.Items))
	bg.notifyProgress(ctx, site, 0, fmt.Sprintf("Opening %s...", site))

	tab, err := bg.acquireTab(ctx, profile)
	if err != nil {
		bg.logger.Errorf("[%s] Could not get a tab: %v", site, err)
		return ErrorEnvelope(types.MsgConnectFailed)
	}

	reply, err := bg.deliver(ctx, tab.ID, Envelope{
		Action: ActionStartAutomation,
		Site:   string(site),
		Items:  env.Items,
	})
	if err != nil {
		bg.logger.Errorf("[%s] Delivery to tab %d failed: %v", site, tab.ID, err)
		return ErrorEnvelope(types.MsgConnectFailed)
	}
	if reply.Error != "" {
		bg.logger.Warnf("[%s] Content script reported: %s", site, reply.Error)
		return ErrorEnvelope(reply.Error)
	}

	result := reply.Result()
	bg.notifyProgress(ctx, site, 100, fmt.Sprintf("Added %d of %d items", len(result.Success), len(env.Items)))
	bg.logger.Infof("[%s] Automation finished: %d added, %d failed", site, len(result.Success), len(result.Failed))
	return ResultEnvelope(result)
}

// acquireTab prefers the first loaded, non-discarded tab on the site and otherwise opens one
func (bg *Background) acquireTab(ctx context.Context, profile types.SiteProfile) (types.Tab, error) {
	tabs, err := bg.tabs.Query(ctx, profile.Domain)
	if err != nil {
		return types.Tab{}, fmt.Errorf("query tabs for %s: %w", profile.Domain, err)
	}
	for _, tab := range tabs {
		if tab.Ready() {
			bg.logger.Debugf("Reusing tab %d (%s)", tab.ID, tab.URL)
			return tab, nil
		}
	}

	tab, err := bg.tabs.Create(ctx, profile.HomeURL)
	if err != nil {
		return types.Tab{}, fmt.Errorf("open %s: %w", profile.HomeURL, err)
	}
	bg.logger.Debugf("Opened tab %d for %s", tab.ID, profile.HomeURL)

	loaded, err := bg.tabs.WaitForLoad(ctx, tab.ID, bg.config.TabLoadTimeout)
	if err != nil {
		// Delivery retries cover a tab that is still loading.
		bg.logger.Warnf("Tab %d not loaded after %v: %v", tab.ID, bg.config.TabLoadTimeout, err)
		return tab, nil
	}
	return loaded, nil
}

// deliver sends env to the tab's content script, retrying while no listener is attached
func (bg *Background) deliver(ctx context.Context, tabID int, env Envelope) (Envelope, error) {
	addr := TabAddress(tabID)
	attempts := bg.config.DeliveryRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reply, err := bg.bus.Request(ctx, addr, env)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !errors.Is(err, types.ErrNoListener) {
			break
		}

		bg.logger.Debugf("Attempt %d/%d: no content script on %s", attempt, attempts, addr)
		if attempt < attempts {
			if err := utils.Sleep(ctx, bg.config.DeliveryBackoff); err != nil {
				lastErr = err
				break
			}
		}
	}
	return Envelope{}, fmt.Errorf("%w: %s: %v", types.ErrDeliveryFailed, addr, lastErr)
}

func (bg *Background) notifyProgress(ctx context.Context, site types.Site, progress float64, message string) {
	bg.bus.Notify(ctx, AddrPopup, Envelope{
		Action:   ActionProgressUpdate,
		Site:     string(site),
		Progress: progress,
		Message:  message,
	})
}
