package messaging

import (
	"context"
	"fmt"

	"cart-autofill/internal/types"
	"cart-autofill/orchestrator"
)

// ContentScript runs automation requests inside one site tab
type ContentScript struct {
	bus    *Bus
	tabID  int
	driver types.Driver
	config *types.Config
	logger types.Logger
}

// NewContentScript creates a content script for tab tabID driving driver
func NewContentScript(bus *Bus, tabID int, driver types.Driver, config *types.Config, logger types.Logger) *ContentScript {
	return &ContentScript{
		bus:    bus,
		tabID:  tabID,
		driver: driver,
		config: config,
		logger: logger,
	}
}

// Register attaches the content script to its tab address
func (c *ContentScript) Register() func() {
	c.logger.Debugf("Content script listening on %s (%s)", TabAddress(c.tabID), c.driver.Site())
	return c.bus.Listen(TabAddress(c.tabID), c.Handle)
}

// Handle runs a startAutomation request and replies with the result
func (c *ContentScript) Handle(ctx context.Context, env Envelope) (reply Envelope) {
	if env.Action != ActionStartAutomation {
		return ErrorEnvelope(fmt.Sprintf("unknown action: %q", env.Action))
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("Automation in tab %d crashed: %v", c.tabID, r)
			reply = ErrorEnvelope(fmt.Sprintf("automation failed: %v", r))
		}
	}()

	site := c.driver.Site()
	run := orchestrator.New(c.driver, c.config, c.logger, func(done, total int, item types.ExportItem, ok bool) {
		status := "Added"
		if !ok {
			status = "Could not add"
		}
		c.bus.Notify(ctx, AddrBackground, Envelope{
			Action:   ActionProgressUpdate,
			Site:     string(site),
			Progress: float64(done) / float64(total) * 100,
			Message:  fmt.Sprintf("%s %s (%d/%d)", status, item.Name, done, total),
		})
	})

	return ResultEnvelope(run.Run(ctx, env.Items))
}
