package types

import "errors"

var (
	// ErrUnsupportedSite is returned for a site name outside Sites
	ErrUnsupportedSite = errors.New("unsupported site")

	// ErrElementNotFound is returned when a required control is missing from the page
	ErrElementNotFound = errors.New("element not found")

	// ErrSuggestionsTimeout is returned when no search result shows up in time
	ErrSuggestionsTimeout = errors.New("no search suggestions")

	// ErrControlDisabled is returned when the add-to-cart control cannot be used
	ErrControlDisabled = errors.New("control disabled")

	// ErrNoListener is returned when nothing listens on a message address
	ErrNoListener = errors.New("no listener for address")

	// ErrRequestTimeout is returned when a request gets no reply in time
	ErrRequestTimeout = errors.New("request timed out")

	// ErrAlreadyInProgress is returned when a site already runs an automation
	ErrAlreadyInProgress = errors.New("automation already in progress")

	// ErrDeliveryFailed is returned when the content script stays unreachable
	ErrDeliveryFailed = errors.New("content script unreachable")

	// ErrForbidden is returned to pages outside the allowed origins
	ErrForbidden = errors.New("origin not allowed")

	// ErrRateLimited is returned to clients sending requests too fast
	ErrRateLimited = errors.New("too many requests")
)

// Messages shown to the user as-is.
const (
	MsgAlreadyInProgress = "Automation already in progress for this site"
	MsgConnectFailed     = "Failed to connect to shopping site. Please refresh the page and try again."
	MsgNoItems           = "No items to add"
)
