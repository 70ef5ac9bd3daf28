package extractor

import (
	"regexp"
	"strings"

	"cart-autofill/internal/types"
	"cart-autofill/quantity"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

var (
	// sizePattern matches "250 g", "1,5l", "33cl"; longer units first so "kg" is not read as "g"
	sizePattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kg|g|ml|cl|dl|l)\b`)

	// multipackPattern matches "6 x 1.5l" or "4×125 g"
	multipackPattern = regexp.MustCompile(`(?i)(\d+)\s*[x×]\s*(\d+(?:[.,]\d+)?)\s*(kg|g|ml|cl|dl|l)\b`)
)

// Extractor reads the package size printed on a product card
type Extractor struct {
	labelSelectors []string
	table          quantity.Table
}

// New creates an extractor that looks for the size in the given label selectors
func New(labelSelectors []string, table quantity.Table) *Extractor {
	return &Extractor{
		labelSelectors: labelSelectors,
		table:          table,
	}
}

// ExtractHTML parses a product card's markup and extracts its package size
func (e *Extractor) ExtractHTML(html string) *types.PackageSize {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return e.Extract(doc.Selection)
}

// Extract returns the card's package size in grams or milliliters.
//
// Only the configured label nodes are read, in order. The rest of the card holds
// prices, unit-price bases ("0.70/100 g") and product names, none of which is the
// package size. It returns nil when no label carries a usable size; callers treat
// that as no signal and fall back to their own estimate.
func (e *Extractor) Extract(card *goquery.Selection) *types.PackageSize {
	if card == nil || card.Length() == 0 {
		return nil
	}

	for _, selector := range e.labelSelectors {
		label := card.Find(selector).First()
		if label.Length() == 0 {
			continue
		}
		if size := e.parse(label.Text()); size != nil {
			return size
		}
	}
	return nil
}

func (e *Extractor) parse(text string) *types.PackageSize {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	count := decimal.NewFromInt(1)
	var amountText, unit string

	if m := multipackPattern.FindStringSubmatch(text); m != nil {
		n, err := decimal.NewFromString(m[1])
		if err != nil {
			return nil
		}
		count, amountText, unit = n, m[2], m[3]
	} else if m := sizePattern.FindStringSubmatch(text); m != nil {
		amountText, unit = m[1], m[2]
	} else {
		return nil
	}

	amount, err := decimal.NewFromString(strings.Replace(amountText, ",", ".", 1))
	if err != nil {
		return nil
	}

	unit = strings.ToLower(unit)
	total := amount.Mul(count).Mul(e.table.Multiplier(unit))
	if !total.IsPositive() {
		return nil
	}

	base := types.BaseUnitGram
	if e.table.Family(unit) == quantity.FamilyVolume {
		base = types.BaseUnitMilliliter
	}

	return &types.PackageSize{
		AmountInBaseUnits: total.InexactFloat64(),
		BaseUnit:          base,
	}
}
