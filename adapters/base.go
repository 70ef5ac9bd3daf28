package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"cart-autofill/extractor"
	"cart-autofill/internal/types"
	"cart-autofill/quantity"
	"cart-autofill/utils"
)

// State is a step of adding one item to the cart
type State int

const (
	StateIdle State = iota
	StateSearching
	StateAwaitingSuggestions
	StateQuantitySet
	StateAddedToCart
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateAwaitingSuggestions:
		return "awaiting-suggestions"
	case StateQuantitySet:
		return "quantity-set"
	case StateAddedToCart:
		return "added-to-cart"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// BaseDriver provides the add-to-cart state machine shared by the site drivers.
// Site drivers embed it and plug in how they wait for search results.
type BaseDriver struct {
	site       types.Site
	profile    types.SiteProfile
	page       types.Page
	config     *types.Config
	logger     types.Logger
	extractor  *extractor.Extractor
	reconciler *quantity.Reconciler

	// awaitSuggestions blocks until the first search result is on the page
	awaitSuggestions func(ctx context.Context) error

	mu    sync.Mutex
	added map[string]bool // names added during this page session
}

// NewBaseDriver creates the shared driver for site on page.
//
// The default suggestion wait polls for the first candidate up to PollAttempts times,
// PollInterval apart. Site drivers replace it when their results render differently.
func NewBaseDriver(site types.Site, page types.Page, config *types.Config, logger types.Logger, reconciler *quantity.Reconciler) (*BaseDriver, error) {
	profile, ok := config.Sites[site]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedSite, site)
	}

	b := &BaseDriver{
		site:       site,
		profile:    profile,
		page:       page,
		config:     config,
		logger:     logger,
		extractor:  extractor.New(profile.PackageSizeLabels, reconciler.Table()),
		reconciler: reconciler,
		added:      make(map[string]bool),
	}
	b.awaitSuggestions = func(ctx context.Context) error {
		return WaitFor(ctx, page, profile.CandidateSelector(), profile.PollInterval, profile.PollAttempts)
	}
	return b, nil
}

// Site returns the site the driver automates
func (b *BaseDriver) Site() types.Site {
	return b.site
}

// Profile returns the selectors the driver uses
func (b *BaseDriver) Profile() types.SiteProfile {
	return b.profile
}

// AddItem runs the item through search, suggestion wait, quantity and add-to-cart.
// An item already added in this session is reported as added without touching the page.
func (b *BaseDriver) AddItem(ctx context.Context, item types.ExportItem) (err error) {
	key := normalizeName(item.Name)
	if key == "" {
		return fmt.Errorf("%w: item %q has no name", types.ErrElementNotFound, item.ID)
	}

	if b.wasAdded(key) {
		b.logger.Infof("[%s] %q already added in this session, skipping", b.site, item.Name)
		return nil
	}

	state := StateIdle
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic while adding %q: %v", state, item.Name, r)
		}
		if err != nil {
			b.logger.Warnf("[%s] %q: %s -> %s: %v", b.site, item.Name, state, StateFailed, err)
		}
	}()

	startTime := time.Now()
	for state != StateAddedToCart {
		next, stepErr := b.step(ctx, state, item)
		if stepErr != nil {
			return fmt.Errorf("%s %q: %w", state, item.Name, stepErr)
		}
		b.logger.Debugf("[%s] %q: %s -> %s", b.site, item.Name, state, next)
		state = next
	}

	b.markAdded(key)
	b.logger.Infof("[%s] Added %q in %v", b.site, item.Name, time.Since(startTime))
	return nil
}

func (b *BaseDriver) step(ctx context.Context, state State, item types.ExportItem) (State, error) {
	switch state {
	case StateIdle:
		return StateSearching, b.search(ctx, item.Name)
	case StateSearching:
		return StateAwaitingSuggestions, b.awaitSuggestions(ctx)
	case StateAwaitingSuggestions:
		return StateQuantitySet, b.setQuantity(ctx, item)
	case StateQuantitySet:
		return StateAddedToCart, b.addToCart(ctx)
	}
	return StateFailed, fmt.Errorf("no transition from %s", state)
}

// search clears the search field, lets the page settle and types the item name
func (b *BaseDriver) search(ctx context.Context, name string) error {
	input, err := b.locateFirst(ctx, b.profile.SearchInputs)
	if err != nil {
		return fmt.Errorf("search input: %w", err)
	}

	if err := b.page.SetValue(ctx, input, ""); err != nil {
		return fmt.Errorf("failed to clear search input: %w", err)
	}
	if err := utils.Sleep(ctx, b.config.SettleDelay); err != nil {
		return err
	}
	if err := b.page.SetValue(ctx, input, name); err != nil {
		return fmt.Errorf("failed to type search: %w", err)
	}
	return nil
}

// setQuantity reconciles the wanted quantity against the first result and applies it.
//
// Package size and controls are both read from the first candidate card only, so the
// quantity always lands on the product whose size was measured. Without a numeric input
// the increment button is clicked target-1 times; with neither the site default of 1 stays.
func (b *BaseDriver) setQuantity(ctx context.Context, item types.ExportItem) error {
	var pkg *types.PackageSize
	html, err := b.page.OuterHTML(ctx, b.profile.CandidateSelector())
	if err != nil {
		b.logger.Debugf("[%s] no markup for candidate of %q: %v", b.site, item.Name, err)
	} else {
		pkg = b.extractor.ExtractHTML(html)
	}

	target := b.reconciler.Reconcile(item.Name, item.Quantity, pkg)
	if pkg != nil {
		b.logger.Debugf("[%s] %q: need %q, package %.0f%s -> %d", b.site, item.Name, item.Quantity, pkg.AmountInBaseUnits, pkg.BaseUnit, target)
	} else {
		b.logger.Debugf("[%s] %q: need %q, no package size -> %d", b.site, item.Name, item.Quantity, target)
	}

	card := b.candidate()

	if b.profile.QuantityInput != "" {
		ok, err := card.Exists(ctx, b.profile.QuantityInput)
		if err != nil {
			return err
		}
		if ok {
			return card.SetValue(ctx, b.profile.QuantityInput, strconv.Itoa(target))
		}
	}

	if b.profile.IncrementButton != "" {
		ok, err := card.Exists(ctx, b.profile.IncrementButton)
		if err != nil {
			return err
		}
		if ok {
			for i := 1; i < target; i++ {
				if err := card.Click(ctx, b.profile.IncrementButton); err != nil {
					return fmt.Errorf("increment %d/%d: %w", i, target-1, err)
				}
				if err := utils.Sleep(ctx, b.config.ClickDelay); err != nil {
					return err
				}
			}
			return nil
		}
	}

	if target > 1 {
		b.logger.Warnf("[%s] %q: no quantity control, adding 1 instead of %d", b.site, item.Name, target)
	}
	return nil
}

// addToCart clicks the candidate's add button and waits for the cart to settle.
// A missing or disabled button fails the item.
func (b *BaseDriver) addToCart(ctx context.Context) error {
	card := b.candidate()
	button := b.profile.AddToCart

	ok, err := card.Exists(ctx, button)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("add to cart: %w: %s", types.ErrElementNotFound, b.profile.Control(button))
	}

	disabled, err := card.Disabled(ctx, button)
	if err != nil {
		return err
	}
	if disabled {
		return fmt.Errorf("add to cart: %w", types.ErrControlDisabled)
	}

	if err := card.Click(ctx, button); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	return utils.Sleep(ctx, b.config.SettleDelay)
}

// candidate returns the page narrowed to the first suggested product card
func (b *BaseDriver) candidate() types.Page {
	return b.page.Within(b.profile.CandidateSelector())
}

// locateFirst returns the first selector present on the page
func (b *BaseDriver) locateFirst(ctx context.Context, selectors []string) (string, error) {
	for _, selector := range selectors {
		ok, err := b.page.Exists(ctx, selector)
		if err != nil {
			return "", err
		}
		if ok {
			return selector, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", types.ErrElementNotFound, strings.Join(selectors, ", "))
}

func (b *BaseDriver) wasAdded(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.added[key]
}

func (b *BaseDriver) markAdded(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.added[key] = true
}

// WaitFor polls until selector exists, at most attempts times, interval apart
func WaitFor(ctx context.Context, page types.Page, selector string, interval time.Duration, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		ok, err := page.Exists(ctx, selector)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if i < attempts-1 {
			if err := utils.Sleep(ctx, interval); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", types.ErrSuggestionsTimeout, selector, attempts)
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
