package adapters

import (
	"fmt"

	"cart-autofill/internal/types"
	"cart-autofill/quantity"
)

// NewDriver returns the driver for site operating on page
func NewDriver(site types.Site, page types.Page, config *types.Config, logger types.Logger, reconciler *quantity.Reconciler) (types.Driver, error) {
	switch site {
	case types.SiteMigros:
		d, err := NewMigrosDriver(page, config, logger, reconciler)
		if err != nil {
			return nil, err
		}
		return d, nil
	case types.SiteCoop:
		d, err := NewCoopDriver(page, config, logger, reconciler)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedSite, site)
}
