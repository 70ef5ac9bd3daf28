package adapters

import (
	"context"

	"cart-autofill/internal/types"
	"cart-autofill/quantity"
	"cart-autofill/utils"
)

// CoopDriver handles cart automation for coop.ch.
//
// Coop opens a result overlay that takes noticeably longer than a plain
// autocomplete list. The driver waits InitialWait once and then polls every
// PollInterval until FallbackTimeout has passed.
type CoopDriver struct {
	*BaseDriver
}

// NewCoopDriver creates a new Coop driver on page.
// It fails with ErrUnsupportedSite when the config carries no Coop profile.
func NewCoopDriver(page types.Page, config *types.Config, logger types.Logger, reconciler *quantity.Reconciler) (*CoopDriver, error) {
	base, err := NewBaseDriver(types.SiteCoop, page, config, logger, reconciler)
	if err != nil {
		return nil, err
	}
	c := &CoopDriver{BaseDriver: base}
	base.awaitSuggestions = c.awaitSuggestions
	return c, nil
}

// awaitSuggestions gives the result overlay one long wait, then polls until the fallback timeout
func (c *CoopDriver) awaitSuggestions(ctx context.Context) error {
	if err := utils.Sleep(ctx, c.profile.InitialWait); err != nil {
		return err
	}

	attempts := 1
	if c.profile.PollInterval > 0 {
		attempts += int(c.profile.FallbackTimeout / c.profile.PollInterval)
	}
	return WaitFor(ctx, c.page, c.profile.CandidateSelector(), c.profile.PollInterval, attempts)
}
