package types

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Site identifies a supported grocery site
type Site string

const (
	SiteMigros Site = "migros"
	SiteCoop   Site = "coop"
)

// Sites lists every supported site in a stable order
var Sites = []Site{SiteMigros, SiteCoop}

// ParseSite resolves a site name, ignoring case and surrounding space
func ParseSite(name string) (Site, error) {
	switch Site(strings.ToLower(strings.TrimSpace(name))) {
	case SiteMigros:
		return SiteMigros, nil
	case SiteCoop:
		return SiteCoop, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSite, name)
}

// ShoppingItem is an entry of the tracker's shopping list
type ShoppingItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	IsBought bool   `json:"isBought"`
	Category string `json:"category,omitempty"`
}

// ExportItem is the part of a shopping item handed to the automation
type ExportItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Category string `json:"category,omitempty"`
}

// ExportItems converts the items that still need buying
func ExportItems(list []ShoppingItem) []ExportItem {
	items := make([]ExportItem, 0, len(list))
	for _, item := range list {
		if item.IsBought || strings.TrimSpace(item.Name) == "" {
			continue
		}
		items = append(items, ExportItem{
			ID:       item.ID,
			Name:     item.Name,
			Quantity: item.Quantity,
			Category: item.Category,
		})
	}
	return items
}

// ParsedQuantity is a free-text quantity split into amount and unit
type ParsedQuantity struct {
	Amount           float64 `json:"amount"`
	Unit             string  `json:"unit"`
	TotalInBaseUnits float64 `json:"totalInBaseUnits"`
	OriginalText     string  `json:"originalText"`
}

// BaseUnit is the canonical unit of a measured quantity
type BaseUnit string

const (
	BaseUnitGram       BaseUnit = "g"
	BaseUnitMilliliter BaseUnit = "ml"
)

// PackageSize is the content of one retail unit as scraped from a product card
type PackageSize struct {
	AmountInBaseUnits float64  `json:"amountInBaseUnits"`
	BaseUnit          BaseUnit `json:"baseUnit"`
}

// AutomationRequest asks for a list of items to be added to a site's cart
type AutomationRequest struct {
	Site  Site         `json:"site"`
	Items []ExportItem `json:"items"`
}

// AutomationResult partitions the requested items by outcome
type AutomationResult struct {
	Success []ExportItem `json:"success"`
	Failed  []ExportItem `json:"failed"`
}

// NewAutomationResult returns a result with empty, non-nil partitions
func NewAutomationResult() AutomationResult {
	return AutomationResult{
		Success: []ExportItem{},
		Failed:  []ExportItem{},
	}
}

// SiteProfile holds the selectors and wait policy for one site.
// Every control selector is relative to the candidate product card.
type SiteProfile struct {
	HomeURL           string        `mapstructure:"home_url"`
	Domain            string        `mapstructure:"domain"`
	SearchInputs      []string      `mapstructure:"search_inputs"`
	SuggestionList    string        `mapstructure:"suggestion_list"`
	Candidate         string        `mapstructure:"candidate"`
	QuantityInput     string        `mapstructure:"quantity_input"`
	IncrementButton   string        `mapstructure:"increment_button"`
	AddToCart         string        `mapstructure:"add_to_cart"`
	PackageSizeLabels []string      `mapstructure:"package_size_labels"`
	PollAttempts      int           `mapstructure:"poll_attempts"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	InitialWait       time.Duration `mapstructure:"initial_wait"`
	FallbackTimeout   time.Duration `mapstructure:"fallback_timeout"`
}

// CandidateSelector returns the selector of the first suggested product
func (p SiteProfile) CandidateSelector() string {
	return strings.TrimSpace(p.SuggestionList + " " + p.Candidate)
}

// Control describes a control of the candidate card as one selector string.
// It is for logs and reports: the string also matches controls of later cards,
// so drivers resolve controls through Page.Within(CandidateSelector()) instead.
func (p SiteProfile) Control(selector string) string {
	return p.CandidateSelector() + " " + selector
}

// UnitSpec describes a quantity unit: how it converts to base units and what it measures
type UnitSpec struct {
	Multiplier float64 `mapstructure:"multiplier"`
	Family     string  `mapstructure:"family"`
}

// Config holds the configuration for the automation
type Config struct {
	// Browser
	UseHeadlessBrowser bool          `mapstructure:"headless"`
	UserAgent          string        `mapstructure:"user_agent"`
	Timeout            time.Duration `mapstructure:"timeout"`

	// Shopping list fetching
	RequestDelay time.Duration `mapstructure:"request_delay"`
	MaxRetries   int           `mapstructure:"max_retries"`

	// Driver pacing
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	ClickDelay     time.Duration `mapstructure:"click_delay"`
	InterItemDelay time.Duration `mapstructure:"inter_item_delay"`

	// Coordination
	RegistryTTL     time.Duration `mapstructure:"registry_ttl"`
	DeliveryRetries int           `mapstructure:"delivery_retries"`
	DeliveryBackoff time.Duration `mapstructure:"delivery_backoff"`
	TabLoadTimeout  time.Duration `mapstructure:"tab_load_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`

	// HTTP bridge
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RatePerSecond  float64  `mapstructure:"rate_per_second"`
	RateBurst      int      `mapstructure:"rate_burst"`

	// Reconciliation tables; entries extend or override the built-in ones
	FallbackPackageGrams float64             `mapstructure:"fallback_package_grams"`
	DefaultItemGrams     float64             `mapstructure:"default_item_grams"`
	Units                map[string]UnitSpec `mapstructure:"units"`
	ProduceWeights       map[string]float64  `mapstructure:"produce_weights"`

	Sites map[Site]SiteProfile `mapstructure:"sites"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		UseHeadlessBrowser: true,
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timeout:            30 * time.Second,

		RequestDelay: 1 * time.Second,
		MaxRetries:   3,

		SettleDelay:    500 * time.Millisecond,
		ClickDelay:     200 * time.Millisecond,
		InterItemDelay: 2 * time.Second,

		RegistryTTL:     30 * time.Second,
		DeliveryRetries: 3,
		DeliveryBackoff: 1 * time.Second,
		TabLoadTimeout:  15 * time.Second,
		RequestTimeout:  10 * time.Minute,

		Port:           "8080",
		Environment:    "development",
		AllowedOrigins: []string{"http://localhost:5173"},
		RatePerSecond:  1,
		RateBurst:      5,

		FallbackPackageGrams: 150,
		DefaultItemGrams:     150,

		Sites: DefaultSites(),
	}
}

// DefaultSites returns the selectors currently targeted on each site
func DefaultSites() map[Site]SiteProfile {
	return map[Site]SiteProfile{
		SiteMigros: {
			HomeURL: "https://www.migros.ch/de",
			Domain:  "migros.ch",
			SearchInputs: []string{
				"input#autocompleteSearchInput",
				`input[data-cy="autocompleteSearchInput"]`,
				`input[type="search"]`,
			},
			SuggestionList:  "#autocompleteSearchSuggestions",
			Candidate:       `[data-cy="product-suggestion"]`,
			QuantityInput:   `input[data-cy="quantity-input"]`,
			IncrementButton: `button[data-cy="increase-quantity"]`,
			AddToCart:       `button[data-cy="add-to-cart"]`,
			PackageSizeLabels: []string{
				"span.weight-priceUnit",
				`[data-cy="product-quantity"]`,
			},
			PollAttempts: 10,
			PollInterval: 300 * time.Millisecond,
		},
		SiteCoop: {
			HomeURL: "https://www.coop.ch/de/",
			Domain:  "coop.ch",
			SearchInputs: []string{
				"input#searchInput",
				`input[name="text"]`,
			},
			SuggestionList:  "#search-suggestions",
			Candidate:       ".productTile",
			QuantityInput:   `input[name="quantity"]`,
			IncrementButton: "button.quantityStepper__plus",
			AddToCart:       `button[data-testauto="addtocart"]`,
			PackageSizeLabels: []string{
				".productTile-details__name-value",
				".productTile__quantity-text",
			},
			PollInterval:    250 * time.Millisecond,
			InitialWait:     1500 * time.Millisecond,
			FallbackTimeout: 5 * time.Second,
		},
	}
}

// Page is the set of DOM capabilities a site driver needs from a browser tab.
// Selectors follow document.querySelector semantics: operations act on the first match.
type Page interface {
	// Exists reports whether the selector matches an element
	Exists(ctx context.Context, selector string) (bool, error)

	// SetValue writes an input's value and dispatches input and change events
	SetValue(ctx context.Context, selector, value string) error

	// Click clicks the element
	Click(ctx context.Context, selector string) error

	// Disabled reports whether the element is disabled
	Disabled(ctx context.Context, selector string) (bool, error)

	// OuterHTML returns the element's markup
	OuterHTML(ctx context.Context, selector string) (string, error)

	// Within returns a view whose selectors resolve inside the first element
	// matching scope. The scope is looked up again on every call.
	Within(scope string) Page
}

// Driver adds shopping items to one site's cart
type Driver interface {
	// Site returns the site the driver automates
	Site() Site

	// AddItem searches for the item and adds the reconciled quantity to the cart
	AddItem(ctx context.Context, item ExportItem) error
}

// Logger defines the logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
