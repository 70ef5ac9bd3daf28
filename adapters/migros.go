package adapters

import (
	"cart-autofill/internal/types"
	"cart-autofill/quantity"
)

// MigrosDriver handles cart automation for migros.ch.
//
// Migros renders its autocomplete suggestions within a few hundred milliseconds of
// typing, so the driver keeps the base strategy: poll for the first candidate
// PollAttempts times (10 by default), PollInterval apart (300 ms by default), and
// fail the item with ErrSuggestionsTimeout when nothing shows up.
type MigrosDriver struct {
	*BaseDriver
}

// NewMigrosDriver creates a new Migros driver on page.
// It fails with ErrUnsupportedSite when the config carries no Migros profile.
func NewMigrosDriver(page types.Page, config *types.Config, logger types.Logger, reconciler *quantity.Reconciler) (*MigrosDriver, error) {
	base, err := NewBaseDriver(types.SiteMigros, page, config, logger, reconciler)
	if err != nil {
		return nil, err
	}
	return &MigrosDriver{BaseDriver: base}, nil
}
