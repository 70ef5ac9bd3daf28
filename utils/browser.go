package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"cart-autofill/internal/types"

	"github.com/chromedp/chromedp"
)

// LoadHook is called once a tab opened by the client finished loading
type LoadHook func(tab types.Tab, page types.Page)

// BrowserClient drives a Chrome instance through chromedp and hands out its tabs
type BrowserClient struct {
	config *types.Config
	logger types.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	startOnce     sync.Once
	startErr      error

	mu     sync.Mutex
	tabs   map[int]*browserTab
	nextID int
	onLoad LoadHook
}

type browserTab struct {
	tab    types.Tab
	ctx    context.Context
	cancel context.CancelFunc
	page   *ChromedpPage
	loaded chan struct{}
}

// NewBrowserClient creates a new browser client. Chrome starts with the first tab.
func NewBrowserClient(config *types.Config, logger types.Logger) *BrowserClient {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.UseHeadlessBrowser),
		chromedp.UserAgent(config.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	// chromedp reports unknown CDP events as errors; they are noise here
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(logger.Debugf))

	return &BrowserClient{
		config:        config,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          make(map[int]*browserTab),
	}
}

// OnLoad registers the hook run after each tab load
func (b *BrowserClient) OnLoad(hook LoadHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onLoad = hook
}

func (b *BrowserClient) start() error {
	b.startOnce.Do(func() {
		if err := chromedp.Run(b.browserCtx); err != nil {
			b.startErr = fmt.Errorf("failed to start browser: %w", err)
		}
	})
	return b.startErr
}

// Query returns the tabs opened by this client whose host belongs to domain
func (b *BrowserClient) Query(ctx context.Context, domain string) ([]types.Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []types.Tab
	for _, t := range b.tabs {
		if HostMatches(t.tab.URL, domain) {
			out = append(out, t.tab)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create opens url in a new tab and starts loading it in the background
func (b *BrowserClient) Create(ctx context.Context, rawURL string) (types.Tab, error) {
	if err := ctx.Err(); err != nil {
		return types.Tab{}, err
	}
	if err := b.start(); err != nil {
		return types.Tab{}, err
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	t, tab := b.register(tabCtx, cancel, rawURL)

	go b.navigate(t, tab.ID, rawURL)

	b.logger.Debugf("Opened tab %d for %s", tab.ID, rawURL)
	return tab, nil
}

// register tracks a new loading tab and returns it with a snapshot taken under the lock.
// Once navigate runs, t.tab may only be read with b.mu held.
func (b *BrowserClient) register(tabCtx context.Context, cancel context.CancelFunc, rawURL string) (*browserTab, types.Tab) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	t := &browserTab{
		tab:    types.Tab{ID: b.nextID, URL: rawURL, Status: types.TabLoading},
		ctx:    tabCtx,
		cancel: cancel,
		page:   NewChromedpPage(tabCtx, b.config.Timeout),
		loaded: make(chan struct{}),
	}
	b.tabs[t.tab.ID] = t
	return t, t.tab
}

func (b *BrowserClient) navigate(t *browserTab, id int, rawURL string) {
	defer close(t.loaded)

	runCtx, cancel := context.WithTimeout(t.ctx, b.config.Timeout)
	defer cancel()

	var location string
	if err := chromedp.Run(runCtx, chromedp.Navigate(rawURL), chromedp.Location(&location)); err != nil {
		b.logger.Warnf("Tab %d failed to load %s: %v", id, rawURL, err)
		return
	}
	b.markLoaded(t, location)
}

// markLoaded records a finished load and runs the load hook outside the lock
func (b *BrowserClient) markLoaded(t *browserTab, location string) {
	b.mu.Lock()
	t.tab.Status = types.TabComplete
	if location != "" {
		t.tab.URL = location
	}
	tab := t.tab
	hook := b.onLoad
	b.mu.Unlock()

	b.logger.Debugf("Tab %d loaded %s", tab.ID, tab.URL)
	if hook != nil {
		hook(tab, t.page)
	}
}

// WaitForLoad blocks until tab id finished loading or timeout elapsed
func (b *BrowserClient) WaitForLoad(ctx context.Context, id int, timeout time.Duration) (types.Tab, error) {
	b.mu.Lock()
	t, ok := b.tabs[id]
	b.mu.Unlock()
	if !ok {
		return types.Tab{}, fmt.Errorf("unknown tab %d", id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.loaded:
	case <-timer.C:
		return types.Tab{}, fmt.Errorf("tab %d not loaded within %v", id, timeout)
	case <-ctx.Done():
		return types.Tab{}, ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t.tab.Status != types.TabComplete {
		return t.tab, fmt.Errorf("tab %d failed to load", id)
	}
	return t.tab, nil
}

// Page returns the page of tab id
func (b *BrowserClient) Page(id int) (*ChromedpPage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[id]
	if !ok {
		return nil, false
	}
	return t.page, true
}

// CloseTab closes tab id
func (b *BrowserClient) CloseTab(id int) {
	b.mu.Lock()
	t, ok := b.tabs[id]
	delete(b.tabs, id)
	b.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// Close shuts the browser down
func (b *BrowserClient) Close() {
	b.mu.Lock()
	for id, t := range b.tabs {
		t.cancel()
		delete(b.tabs, id)
	}
	b.mu.Unlock()

	b.browserCancel()
	b.allocCancel()
}

// HostMatches reports whether rawURL's host is domain or one of its subdomains
func HostMatches(rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || domain == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain = strings.ToLower(domain)
	return host != "" && (host == domain || strings.HasSuffix(host, "."+domain))
}

// ChromedpPage implements types.Page on a chromedp tab
type ChromedpPage struct {
	ctx     context.Context
	timeout time.Duration
	scopes  []string
}

// NewChromedpPage wraps a chromedp tab context
func NewChromedpPage(tabCtx context.Context, timeout time.Duration) *ChromedpPage {
	return &ChromedpPage{ctx: tabCtx, timeout: timeout}
}

const (
	// queryScript resolves sel inside the first match of each scope, or null
	queryScript = `(function(scopes, sel) {
	let root = document;
	for (const scope of scopes) {
		root = root.querySelector(scope);
		if (!root) return null;
	}
	return root.querySelector(sel);
})(%s, %s)`

	existsScript = `%s !== null`

	setValueScript = `(function(el, value) {
	if (!el) return false;
	const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
	if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %s)`

	clickScript = `(function(el) {
	if (!el) return false;
	el.click();
	return true;
})(%s)`

	disabledScript = `(function(el) {
	if (!el) return null;
	return el.disabled === true || el.getAttribute('aria-disabled') === 'true';
})(%s)`

	outerHTMLScript = `(function(el) {
	return el ? { found: true, html: el.outerHTML } : { found: false, html: '' };
})(%s)`
)

// evaluate runs script in the tab, bounded by ctx and the page timeout
func (p *ChromedpPage) evaluate(ctx context.Context, script string, res interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, chromedp.Evaluate(script, res))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// query returns the JS expression for the element selector resolves to
func (p *ChromedpPage) query(selector string) string {
	scopes := p.scopes
	if scopes == nil {
		scopes = []string{}
	}
	b, _ := json.Marshal(scopes)
	return fmt.Sprintf(queryScript, b, jsString(selector))
}

// describe names selector with its scopes for errors
func (p *ChromedpPage) describe(selector string) string {
	return strings.Join(append(append([]string(nil), p.scopes...), selector), " ")
}

// Exists implements types.Page
func (p *ChromedpPage) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	if err := p.evaluate(ctx, fmt.Sprintf(existsScript, p.query(selector)), &ok); err != nil {
		return false, fmt.Errorf("query %s: %w", p.describe(selector), err)
	}
	return ok, nil
}

// SetValue implements types.Page using the native value setter so framework bindings see the change
func (p *ChromedpPage) SetValue(ctx context.Context, selector, value string) error {
	var ok bool
	if err := p.evaluate(ctx, fmt.Sprintf(setValueScript, p.query(selector), jsString(value)), &ok); err != nil {
		return fmt.Errorf("set %s: %w", p.describe(selector), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, p.describe(selector))
	}
	return nil
}

// Click implements types.Page
func (p *ChromedpPage) Click(ctx context.Context, selector string) error {
	var ok bool
	if err := p.evaluate(ctx, fmt.Sprintf(clickScript, p.query(selector)), &ok); err != nil {
		return fmt.Errorf("click %s: %w", p.describe(selector), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, p.describe(selector))
	}
	return nil
}

// Disabled implements types.Page
func (p *ChromedpPage) Disabled(ctx context.Context, selector string) (bool, error) {
	var disabled *bool
	if err := p.evaluate(ctx, fmt.Sprintf(disabledScript, p.query(selector)), &disabled); err != nil {
		return false, fmt.Errorf("inspect %s: %w", p.describe(selector), err)
	}
	if disabled == nil {
		return false, fmt.Errorf("%w: %s", types.ErrElementNotFound, p.describe(selector))
	}
	return *disabled, nil
}

// OuterHTML implements types.Page
func (p *ChromedpPage) OuterHTML(ctx context.Context, selector string) (string, error) {
	var res struct {
		Found bool   `json:"found"`
		HTML  string `json:"html"`
	}
	if err := p.evaluate(ctx, fmt.Sprintf(outerHTMLScript, p.query(selector)), &res); err != nil {
		return "", fmt.Errorf("read %s: %w", p.describe(selector), err)
	}
	if !res.Found {
		return "", fmt.Errorf("%w: %s", types.ErrElementNotFound, p.describe(selector))
	}
	return res.HTML, nil
}

// Within implements types.Page
func (p *ChromedpPage) Within(scope string) types.Page {
	return &ChromedpPage{
		ctx:     p.ctx,
		timeout: p.timeout,
		scopes:  append(append([]string(nil), p.scopes...), scope),
	}
}
