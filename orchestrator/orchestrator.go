// Package orchestrator runs a shopping list through a site driver, one item at a time.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"cart-autofill/internal/types"
	"cart-autofill/utils"
)

// ProgressFunc reports that done of total items were attempted; ok tells how the last one went
type ProgressFunc func(done, total int, item types.ExportItem, ok bool)

// Orchestrator processes shopping items sequentially through a driver
type Orchestrator struct {
	driver   types.Driver
	config   *types.Config
	logger   types.Logger
	progress ProgressFunc
}

// New creates a new orchestrator. progress may be nil.
func New(driver types.Driver, config *types.Config, logger types.Logger, progress ProgressFunc) *Orchestrator {
	return &Orchestrator{
		driver:   driver,
		config:   config,
		logger:   logger,
		progress: progress,
	}
}

// Run attempts every item in order and returns once all of them were tried.
// The configured delay follows each item whatever its outcome.
func (o *Orchestrator) Run(ctx context.Context, items []types.ExportItem) types.AutomationResult {
	startTime := time.Now()
	site := o.driver.Site()
	o.logger.Infof("[%s] Starting automation for %d items", site, len(items))

	result := types.NewAutomationResult()
	for i, item := range items {
		o.logger.Debugf("[%s] Processing item %d/%d: %s (%s)", site, i+1, len(items), item.Name, item.Quantity)

		err := o.addItem(ctx, item)
		if err != nil {
			o.logger.Warnf("[%s] Failed to add %q: %v", site, item.Name, err)
			result.Failed = append(result.Failed, item)
		} else {
			result.Success = append(result.Success, item)
		}

		if o.progress != nil {
			o.progress(i+1, len(items), item, err == nil)
		}

		if err := utils.Sleep(ctx, o.config.InterItemDelay); err != nil {
			o.logger.Debugf("[%s] Pacing delay cut short: %v", site, err)
		}
	}

	o.logger.Infof("[%s] Automation completed in %v", site, time.Since(startTime))
	o.logger.Infof("[%s] Added %d/%d items", site, len(result.Success), len(items))
	return result
}

// addItem shields the run from a driver that panics
func (o *Orchestrator) addItem(ctx context.Context, item types.ExportItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panicked: %v", r)
		}
	}()
	return o.driver.AddItem(ctx, item)
}
