package adapters

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cart-autofill/internal/pagetest"
	"cart-autofill/internal/types"
	"cart-autofill/quantity"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const migrosShell = `<html><body>
<input id="autocompleteSearchInput" value="">
<div id="autocompleteSearchSuggestions"></div>
</body></html>`

const (
	migrosSearch = "input#autocompleteSearchInput"
	migrosList   = "#autocompleteSearchSuggestions"
)

const migrosCard = `<article data-cy="product-suggestion">
<h3>Rispentomaten</h3>
<span class="weight-priceUnit">250 g</span>
<button data-cy="increase-quantity">+</button>
<button data-cy="add-to-cart">In den Warenkorb</button>
</article>`

func testConfig() *types.Config {
	config := types.DefaultConfig()
	config.SettleDelay = 0
	config.ClickDelay = 0
	config.InterItemDelay = 0
	for site, profile := range config.Sites {
		profile.PollInterval = time.Millisecond
		profile.InitialWait = time.Millisecond
		profile.FallbackTimeout = 5 * time.Millisecond
		config.Sites[site] = profile
	}
	return config
}

// newSuggestingPage renders card into the suggestion list whenever a search term is typed
func newSuggestingPage(t *testing.T, shell, search, list, card string) *pagetest.Page {
	t.Helper()
	page, err := pagetest.New(shell)
	require.NoError(t, err)
	page.OnInput(func(p *pagetest.Page, selector, value string) {
		if selector != search || card == "" {
			return
		}
		p.Empty(list)
		if value != "" {
			p.Append(list, card)
		}
	})
	return page
}

func newMigros(t *testing.T, page types.Page) *MigrosDriver {
	t.Helper()
	config := testConfig()
	d, err := NewMigrosDriver(page, config, logrus.New(), quantity.NewReconcilerFromConfig(config))
	require.NoError(t, err)
	return d
}

func TestMigrosDriver_AddItem_IncrementsToPackageCount(t *testing.T) {
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, migrosCard)
	d := newMigros(t, page)
	profile := d.Profile()

	err := d.AddItem(context.Background(), types.ExportItem{ID: "1", Name: "Tomatoes", Quantity: "500g"})
	require.NoError(t, err)

	assert.Equal(t, 1, page.Clicks(profile.Control(profile.IncrementButton)))
	assert.Equal(t, 1, page.Clicks(profile.Control(profile.AddToCart)))
	assert.Equal(t, "Tomatoes", page.Value("#autocompleteSearchInput"))
	assert.Equal(t, []string{
		`input input#autocompleteSearchInput=""`,
		`change input#autocompleteSearchInput=""`,
		`input input#autocompleteSearchInput="Tomatoes"`,
		`change input#autocompleteSearchInput="Tomatoes"`,
		"click " + profile.Control(profile.IncrementButton),
		"click " + profile.Control(profile.AddToCart),
	}, page.Events())
}

func TestMigrosDriver_AddItem_SetsNumericQuantity(t *testing.T) {
	card := `<article data-cy="product-suggestion">
<span class="weight-priceUnit">250 g</span>
<input data-cy="quantity-input" value="1">
<button data-cy="add-to-cart">Add</button>
</article>`
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, card)
	d := newMigros(t, page)
	profile := d.Profile()

	require.NoError(t, d.AddItem(context.Background(), types.ExportItem{Name: "Mehl", Quantity: "1kg"}))

	assert.Equal(t, "4", page.Value(profile.Control(profile.QuantityInput)))
	assert.Equal(t, 1, page.Clicks(profile.Control(profile.AddToCart)))
}

func TestMigrosDriver_AddItem_NoQuantityControlAddsOne(t *testing.T) {
	card := `<article data-cy="product-suggestion"><button data-cy="add-to-cart">Add</button></article>`
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, card)
	d := newMigros(t, page)
	profile := d.Profile()

	require.NoError(t, d.AddItem(context.Background(), types.ExportItem{Name: "Milk", Quantity: "2l"}))
	assert.Equal(t, 1, page.Clicks(profile.Control(profile.AddToCart)))
}

func TestMigrosDriver_AddItem_MissingSearchInput(t *testing.T) {
	page, err := pagetest.New(`<html><body><div id="autocompleteSearchSuggestions"></div></body></html>`)
	require.NoError(t, err)
	d := newMigros(t, page)

	err = d.AddItem(context.Background(), types.ExportItem{Name: "Milk", Quantity: "1l"})
	assert.ErrorIs(t, err, types.ErrElementNotFound)
	assert.Empty(t, page.Events())
}

func TestMigrosDriver_AddItem_SuggestionsTimeout(t *testing.T) {
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, "")
	counting := &countingPage{Page: page}
	d := newMigros(t, counting)

	err := d.AddItem(context.Background(), types.ExportItem{Name: "Unobtainium", Quantity: "1"})
	assert.ErrorIs(t, err, types.ErrSuggestionsTimeout)
	assert.Equal(t, int32(d.Profile().PollAttempts), counting.candidateChecks.Load())
}

func TestMigrosDriver_AddItem_DisabledAddButton(t *testing.T) {
	card := `<article data-cy="product-suggestion"><button data-cy="add-to-cart" disabled>Sold out</button></article>`
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, card)
	d := newMigros(t, page)

	err := d.AddItem(context.Background(), types.ExportItem{Name: "Spargel", Quantity: "500g"})
	assert.ErrorIs(t, err, types.ErrControlDisabled)
	assert.Zero(t, page.Clicks(d.Profile().Control(d.Profile().AddToCart)))
}

func TestMigrosDriver_AddItem_MissingAddButton(t *testing.T) {
	card := `<article data-cy="product-suggestion"><span>Nicht verfügbar</span></article>`
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, card)
	d := newMigros(t, page)

	err := d.AddItem(context.Background(), types.ExportItem{Name: "Spargel", Quantity: "500g"})
	assert.ErrorIs(t, err, types.ErrElementNotFound)
}

func TestMigrosDriver_AddItem_UsesFirstCardControlsOnly(t *testing.T) {
	cards := `<article data-cy="product-suggestion">
<h3>Rispentomaten</h3>
<span class="weight-priceUnit">250 g</span>
</article>
<article data-cy="product-suggestion">
<h3>Cherrytomaten</h3>
<span class="weight-priceUnit">1 kg</span>
<input data-cy="quantity-input" value="1">
<button data-cy="increase-quantity">+</button>
<button data-cy="add-to-cart">In den Warenkorb</button>
</article>`
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, cards)
	d := newMigros(t, page)
	profile := d.Profile()

	err := d.AddItem(context.Background(), types.ExportItem{Name: "Tomatoes", Quantity: "500g"})
	require.ErrorIs(t, err, types.ErrElementNotFound)

	assert.Zero(t, page.Clicks(profile.Control(profile.IncrementButton)))
	assert.Zero(t, page.Clicks(profile.Control(profile.AddToCart)))
	assert.Equal(t, "1", page.Value(`article:nth-child(2) input[data-cy="quantity-input"]`))
	for _, event := range page.Events() {
		assert.NotContains(t, event, "click")
	}
}

func TestMigrosDriver_AddItem_SkipsRepeatedName(t *testing.T) {
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, migrosCard)
	d := newMigros(t, page)
	ctx := context.Background()

	require.NoError(t, d.AddItem(ctx, types.ExportItem{ID: "1", Name: "Tomatoes", Quantity: "500g"}))
	events := page.Events()

	require.NoError(t, d.AddItem(ctx, types.ExportItem{ID: "2", Name: "  tomatoes ", Quantity: "2kg"}))
	assert.Equal(t, events, page.Events())
	assert.Equal(t, 1, page.Clicks(d.Profile().Control(d.Profile().AddToCart)))
}

func TestMigrosDriver_AddItem_FailedItemIsRetried(t *testing.T) {
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, "")
	d := newMigros(t, page)
	ctx := context.Background()

	require.Error(t, d.AddItem(ctx, types.ExportItem{Name: "Tomatoes", Quantity: "500g"}))

	page.OnInput(func(p *pagetest.Page, selector, value string) {
		if selector == migrosSearch && value != "" {
			p.Append(migrosList, migrosCard)
		}
	})
	assert.NoError(t, d.AddItem(ctx, types.ExportItem{Name: "Tomatoes", Quantity: "500g"}))
}

func TestMigrosDriver_AddItem_RecoversPanic(t *testing.T) {
	d := newMigros(t, panickingPage{})

	var err error
	assert.NotPanics(t, func() {
		err = d.AddItem(context.Background(), types.ExportItem{Name: "Brot"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestMigrosDriver_AddItem_RequiresName(t *testing.T) {
	page, err := pagetest.New(migrosShell)
	require.NoError(t, err)
	d := newMigros(t, page)

	assert.Error(t, d.AddItem(context.Background(), types.ExportItem{ID: "7", Name: "   "}))
}

func TestMigrosDriver_AddItem_CancelledContext(t *testing.T) {
	page := newSuggestingPage(t, migrosShell, migrosSearch, migrosList, migrosCard)
	d := newMigros(t, page)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, d.AddItem(ctx, types.ExportItem{Name: "Tomatoes", Quantity: "500g"}), context.Canceled)
}

func TestWaitFor_AtLeastOneAttempt(t *testing.T) {
	page, err := pagetest.New(`<div id="x"></div>`)
	require.NoError(t, err)

	assert.NoError(t, WaitFor(context.Background(), page, "#x", time.Millisecond, 0))
	assert.ErrorIs(t, WaitFor(context.Background(), page, "#y", time.Millisecond, 0), types.ErrSuggestionsTimeout)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting-suggestions", StateAwaitingSuggestions.String())
	assert.Equal(t, "added-to-cart", StateAddedToCart.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestNewDriver(t *testing.T) {
	config := testConfig()
	reconciler := quantity.NewReconcilerFromConfig(config)
	page, err := pagetest.New(migrosShell)
	require.NoError(t, err)

	d, err := NewDriver(types.SiteMigros, page, config, logrus.New(), reconciler)
	require.NoError(t, err)
	assert.Equal(t, types.SiteMigros, d.Site())
	assert.IsType(t, &MigrosDriver{}, d)

	d, err = NewDriver(types.SiteCoop, page, config, logrus.New(), reconciler)
	require.NoError(t, err)
	assert.Equal(t, types.SiteCoop, d.Site())

	_, err = NewDriver("denner", page, config, logrus.New(), reconciler)
	assert.ErrorIs(t, err, types.ErrUnsupportedSite)
}

func TestNewBaseDriver_UnconfiguredSite(t *testing.T) {
	config := testConfig()
	delete(config.Sites, types.SiteCoop)

	_, err := NewCoopDriver(nil, config, logrus.New(), quantity.NewReconcilerFromConfig(config))
	assert.ErrorIs(t, err, types.ErrUnsupportedSite)
}

// countingPage counts how often the suggestion candidate was looked up
type countingPage struct {
	*pagetest.Page
	candidateChecks atomic.Int32
}

func (c *countingPage) Exists(ctx context.Context, selector string) (bool, error) {
	if selector == types.DefaultSites()[types.SiteMigros].CandidateSelector() {
		c.candidateChecks.Add(1)
	}
	return c.Page.Exists(ctx, selector)
}

type panickingPage struct{}

func (panickingPage) Exists(context.Context, string) (bool, error) { panic("detached node") }
func (panickingPage) SetValue(context.Context, string, string) error { panic("detached node") }
func (panickingPage) Click(context.Context, string) error { panic("detached node") }
func (panickingPage) Disabled(context.Context, string) (bool, error) { panic("detached node") }
func (panickingPage) OuterHTML(context.Context, string) (string, error) { panic("detached node") }
func (p panickingPage) Within(string) types.Page { return p }
