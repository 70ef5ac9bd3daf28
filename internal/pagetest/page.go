// Package pagetest provides an in-memory types.Page backed by a goquery document,
// so site drivers can be exercised without a browser.
package pagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cart-autofill/internal/types"

	"github.com/PuerkitoBio/goquery"
)

// InputHook runs after a value was written to an input
type InputHook func(p *Page, selector, value string)

// ClickHook runs after an element was clicked
type ClickHook func(p *Page, selector string)

// Page is a fake browser tab. Operations act on the first element a selector matches.
type Page struct {
	mu      sync.Mutex
	doc     *goquery.Document
	events  []string
	clicks  map[string]int
	onInput []InputHook
	onClick []ClickHook
}

// New parses html into a page
func New(html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return &Page{
		doc:    doc,
		clicks: make(map[string]int),
	}, nil
}

// OnInput registers a hook fired by SetValue
func (p *Page) OnInput(hook InputHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onInput = append(p.onInput, hook)
}

// OnClick registers a hook fired by Click
func (p *Page) OnClick(hook ClickHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick = append(p.onClick, hook)
}

// Exists implements types.Page
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	return p.exists(ctx, nil, selector)
}

// SetValue implements types.Page
func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	return p.setValue(ctx, nil, selector, value)
}

// Click implements types.Page
func (p *Page) Click(ctx context.Context, selector string) error {
	return p.click(ctx, nil, selector)
}

// Disabled implements types.Page
func (p *Page) Disabled(ctx context.Context, selector string) (bool, error) {
	return p.disabled(ctx, nil, selector)
}

// OuterHTML implements types.Page
func (p *Page) OuterHTML(ctx context.Context, selector string) (string, error) {
	return p.outerHTML(ctx, nil, selector)
}

// Within implements types.Page. Hooks, clicks and events see the scoped
// selector as "scope selector".
func (p *Page) Within(scope string) types.Page {
	return &view{page: p, scopes: []string{scope}}
}

// find resolves selector inside the first match of each scope in turn; callers hold p.mu
func (p *Page) find(scopes []string, selector string) *goquery.Selection {
	root := p.doc.Selection
	for _, scope := range scopes {
		root = root.Find(scope).First()
	}
	return root.Find(selector)
}

func label(scopes []string, selector string) string {
	return strings.Join(append(append([]string(nil), scopes...), selector), " ")
}

func (p *Page) exists(ctx context.Context, scopes []string, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(scopes, selector).Length() > 0, nil
}

func (p *Page) setValue(ctx context.Context, scopes []string, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := label(scopes, selector)

	p.mu.Lock()
	el := p.find(scopes, selector).First()
	if el.Length() == 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, name)
	}
	el.SetAttr("value", value)
	p.events = append(p.events,
		fmt.Sprintf("input %s=%q", name, value),
		fmt.Sprintf("change %s=%q", name, value),
	)
	hooks := append([]InputHook(nil), p.onInput...)
	p.mu.Unlock()

	for _, hook := range hooks {
		hook(p, name, value)
	}
	return nil
}

func (p *Page) click(ctx context.Context, scopes []string, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := label(scopes, selector)

	p.mu.Lock()
	if p.find(scopes, selector).Length() == 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, name)
	}
	p.clicks[name]++
	p.events = append(p.events, "click "+name)
	hooks := append([]ClickHook(nil), p.onClick...)
	p.mu.Unlock()

	for _, hook := range hooks {
		hook(p, name)
	}
	return nil
}

func (p *Page) disabled(ctx context.Context, scopes []string, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	el := p.find(scopes, selector).First()
	if el.Length() == 0 {
		return false, fmt.Errorf("%w: %s", types.ErrElementNotFound, label(scopes, selector))
	}
	if _, ok := el.Attr("disabled"); ok {
		return true, nil
	}
	return el.AttrOr("aria-disabled", "") == "true", nil
}

func (p *Page) outerHTML(ctx context.Context, scopes []string, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	el := p.find(scopes, selector).First()
	if el.Length() == 0 {
		return "", fmt.Errorf("%w: %s", types.ErrElementNotFound, label(scopes, selector))
	}
	return goquery.OuterHtml(el)
}

// view is a Page restricted to the inside of its scopes
type view struct {
	page   *Page
	scopes []string
}

func (v *view) Exists(ctx context.Context, selector string) (bool, error) {
	return v.page.exists(ctx, v.scopes, selector)
}

func (v *view) SetValue(ctx context.Context, selector, value string) error {
	return v.page.setValue(ctx, v.scopes, selector, value)
}

func (v *view) Click(ctx context.Context, selector string) error {
	return v.page.click(ctx, v.scopes, selector)
}

func (v *view) Disabled(ctx context.Context, selector string) (bool, error) {
	return v.page.disabled(ctx, v.scopes, selector)
}

func (v *view) OuterHTML(ctx context.Context, selector string) (string, error) {
	return v.page.outerHTML(ctx, v.scopes, selector)
}

func (v *view) Within(scope string) types.Page {
	return &view{page: v.page, scopes: append(append([]string(nil), v.scopes...), scope)}
}

// Append adds html as the last child of the first element matching selector
func (p *Page) Append(selector, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(selector).First().AppendHtml(html)
}

// Empty removes all children of the elements matching selector
func (p *Page) Empty(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(selector).Empty()
}

// Value returns the value attribute of the first element matching selector
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(selector).First().AttrOr("value", "")
}

// Clicks returns how often selector was clicked
func (p *Page) Clicks(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks[selector]
}

// Events returns the dispatched input, change and click events in order
func (p *Page) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}
