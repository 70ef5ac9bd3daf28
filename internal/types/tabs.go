package types

import (
	"context"
	"time"
)

// Tab load states
const (
	TabLoading  = "loading"
	TabComplete = "complete"
)

// Tab is a browser tab as the background coordinator sees it
type Tab struct {
	ID        int    `json:"id"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	Discarded bool   `json:"discarded"`
}

// Ready reports whether the tab is loaded and not discarded
func (t Tab) Ready() bool {
	return t.Status == TabComplete && !t.Discarded
}

// TabManager finds and opens tabs in the hosting browser
type TabManager interface {
	// Query returns the open tabs whose URL belongs to domain
	Query(ctx context.Context, domain string) ([]Tab, error)

	// Create opens url in a new tab
	Create(ctx context.Context, url string) (Tab, error)

	// WaitForLoad blocks until tab id finished loading or timeout elapsed
	WaitForLoad(ctx context.Context, id int, timeout time.Duration) (Tab, error)
}
