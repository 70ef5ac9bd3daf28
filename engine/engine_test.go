package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"cart-autofill/internal/pagetest"
	"cart-autofill/internal/types"
	"cart-autofill/messaging"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const migrosPage = `<html><body>
<input id="autocompleteSearchInput" value="">
<div id="autocompleteSearchSuggestions"></div>
</body></html>`

// migrosCards maps search terms to the first suggestion the site shows
var migrosCards = map[string]string{
	"Tomatoes": `<article data-cy="product-suggestion">
<h3>Rispentomaten</h3>
<span class="weight-priceUnit">250 g</span>
<button data-cy="increase-quantity">+</button>
<button data-cy="add-to-cart">In den Warenkorb</button>
</article>`,
	"Milk": `<article data-cy="product-suggestion">
<h3>Vollmilch</h3>
<button data-cy="increase-quantity">+</button>
<button data-cy="add-to-cart">In den Warenkorb</button>
</article>`,
}

type staticTabs struct {
	tabs []types.Tab
}

func (s *staticTabs) Query(context.Context, string) ([]types.Tab, error) { return s.tabs, nil }

func (s *staticTabs) Create(_ context.Context, url string) (types.Tab, error) {
	return types.Tab{ID: 99, URL: url, Status: types.TabLoading}, nil
}

func (s *staticTabs) WaitForLoad(_ context.Context, id int, _ time.Duration) (types.Tab, error) {
	return types.Tab{ID: id, Status: types.TabComplete}, nil
}

func testConfig() *types.Config {
	config := types.DefaultConfig()
	config.SettleDelay = 0
	config.ClickDelay = 0
	config.InterItemDelay = 0
	config.DeliveryBackoff = time.Millisecond
	for site, profile := range config.Sites {
		profile.PollInterval = time.Millisecond
		profile.InitialWait = time.Millisecond
		profile.FallbackTimeout = 10 * time.Millisecond
		config.Sites[site] = profile
	}
	return config
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

// migrosTab fakes the Migros site and counts increment clicks per search term
type migrosTab struct {
	page *pagetest.Page

	mu         sync.Mutex
	term       string
	increments map[string]int
	added      []string
}

func newMigrosTab(t *testing.T) *migrosTab {
	t.Helper()
	page, err := pagetest.New(migrosPage)
	require.NoError(t, err)

	tab := &migrosTab{page: page, increments: make(map[string]int)}
	page.OnInput(func(p *pagetest.Page, selector, value string) {
		if selector != "input#autocompleteSearchInput" {
			return
		}
		tab.mu.Lock()
		tab.term = value
		tab.mu.Unlock()

		p.Empty("#autocompleteSearchSuggestions")
		if card, ok := migrosCards[value]; ok {
			p.Append("#autocompleteSearchSuggestions", card)
		}
	})
	page.OnClick(func(_ *pagetest.Page, selector string) {
		tab.mu.Lock()
		defer tab.mu.Unlock()
		switch selector {
		case `#autocompleteSearchSuggestions [data-cy="product-suggestion"] button[data-cy="increase-quantity"]`:
			tab.increments[tab.term]++
		case `#autocompleteSearchSuggestions [data-cy="product-suggestion"] button[data-cy="add-to-cart"]`:
			tab.added = append(tab.added, tab.term)
		}
	})
	return tab
}

func TestEngine_StartAddsReconciledQuantities(t *testing.T) {
	tabs := &staticTabs{tabs: []types.Tab{{ID: 1, URL: "https://www.migros.ch/de", Status: types.TabComplete}}}
	e := New(testConfig(), testLogger(), tabs)
	defer e.Close()

	site := newMigrosTab(t)
	require.NoError(t, e.Attach(1, types.SiteMigros, site.page))

	items := []types.ExportItem{
		{ID: "1", Name: "Tomatoes", Quantity: "500g"},
		{ID: "2", Name: "Milk", Quantity: "2l"},
	}
	result, err := e.Start(context.Background(), types.AutomationRequest{Site: types.SiteMigros, Items: items})
	require.NoError(t, err)

	assert.Equal(t, items, result.Success)
	assert.Empty(t, result.Failed)
	// 500g of 250g packages is 2; 2l without a label falls back to 150g packages: ceil(2000/150) = 14.
	assert.Equal(t, map[string]int{"Tomatoes": 1, "Milk": 13}, site.increments)
	assert.Equal(t, []string{"Tomatoes", "Milk"}, site.added)

	latest, ok := e.Progress().Latest(types.SiteMigros)
	require.True(t, ok)
	assert.Equal(t, float64(100), latest.Progress)
	assert.False(t, e.Registry().Active(types.SiteMigros))
}

func TestEngine_StartUnknownProductFailsItem(t *testing.T) {
	tabs := &staticTabs{tabs: []types.Tab{{ID: 1, URL: "https://www.migros.ch/de", Status: types.TabComplete}}}
	e := New(testConfig(), testLogger(), tabs)
	defer e.Close()

	site := newMigrosTab(t)
	require.NoError(t, e.Attach(1, types.SiteMigros, site.page))

	items := []types.ExportItem{
		{ID: "1", Name: "Dragonfruit", Quantity: "1"},
		{ID: "2", Name: "Tomatoes", Quantity: "250g"},
	}
	result, err := e.Start(context.Background(), types.AutomationRequest{Site: types.SiteMigros, Items: items})
	require.NoError(t, err)

	assert.Equal(t, items[1:], result.Success)
	assert.Equal(t, items[:1], result.Failed)
}

func TestEngine_StartErrors(t *testing.T) {
	tabs := &staticTabs{tabs: []types.Tab{{ID: 1, URL: "https://www.coop.ch/de/", Status: types.TabComplete}}}
	e := New(testConfig(), testLogger(), tabs)
	defer e.Close()

	items := []types.ExportItem{{ID: "1", Name: "Butter", Quantity: "250g"}}

	_, err := e.Start(context.Background(), types.AutomationRequest{Site: types.SiteCoop, Items: items})
	assert.ErrorIs(t, err, types.ErrDeliveryFailed)

	_, ok := e.Registry().TryAcquire(types.SiteCoop, time.Minute)
	require.True(t, ok)
	_, err = e.Start(context.Background(), types.AutomationRequest{Site: types.SiteCoop, Items: items})
	assert.ErrorIs(t, err, types.ErrAlreadyInProgress)

	_, err = e.Start(context.Background(), types.AutomationRequest{Site: types.SiteCoop})
	assert.EqualError(t, err, types.MsgNoItems)
}

func TestEngine_OnLoadAttachesSupportedSites(t *testing.T) {
	e := New(testConfig(), testLogger(), &staticTabs{})
	defer e.Close()

	page, err := pagetest.New(migrosPage)
	require.NoError(t, err)

	e.OnLoad(types.Tab{ID: 3, URL: "https://www.coop.ch/de/"}, page)
	e.OnLoad(types.Tab{ID: 4, URL: "https://example.com/"}, page)

	_, err = e.bus.Request(context.Background(), messaging.TabAddress(3), messaging.Envelope{Action: messaging.ActionStartAutomation})
	assert.NoError(t, err)
	_, err = e.bus.Request(context.Background(), messaging.TabAddress(4), messaging.Envelope{})
	assert.ErrorIs(t, err, types.ErrNoListener)

	e.Detach(3)
	_, err = e.bus.Request(context.Background(), messaging.TabAddress(3), messaging.Envelope{})
	assert.ErrorIs(t, err, types.ErrNoListener)
}

func TestEngine_SiteFor(t *testing.T) {
	e := New(testConfig(), testLogger(), &staticTabs{})
	defer e.Close()

	tests := []struct {
		url  string
		site types.Site
		ok   bool
	}{
		{url: "https://www.migros.ch/de/search?query=milch", site: types.SiteMigros, ok: true},
		{url: "https://migros.ch", site: types.SiteMigros, ok: true},
		{url: "https://www.coop.ch/de/", site: types.SiteCoop, ok: true},
		{url: "https://notmigros.ch/", ok: false},
		{url: "about:blank", ok: false},
		{url: "::", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			site, ok := e.SiteFor(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.site, site)
		})
	}
}

func TestEngine_AttachUnsupportedSite(t *testing.T) {
	e := New(testConfig(), testLogger(), &staticTabs{})
	defer e.Close()

	page, err := pagetest.New(migrosPage)
	require.NoError(t, err)

	err = e.Attach(1, types.Site("denner"), page)
	assert.ErrorIs(t, err, types.ErrUnsupportedSite)
}
