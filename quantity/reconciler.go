package quantity

import (
	"math"
	"sort"
	"strings"

	"cart-autofill/internal/types"

	"github.com/shopspring/decimal"
)

// WeightEntry is the typical weight of one piece of produce whose name contains Keyword
type WeightEntry struct {
	Keyword string
	Grams   float64
}

// WeightTable is searched in order; longer keywords come first so "eggplant" wins over "egg"
type WeightTable []WeightEntry

var builtinWeights = map[string]float64{
	"banana":    120,
	"banane":    120,
	"apple":     180,
	"apfel":     180,
	"äpfel":     180,
	"pear":      180,
	"birne":     180,
	"orange":    200,
	"lemon":     100,
	"zitrone":   100,
	"kiwi":      75,
	"mango":     300,
	"avocado":   200,
	"tomato":    120,
	"tomate":    120,
	"cucumber":  400,
	"gurke":     400,
	"potato":    150,
	"kartoffel": 150,
	"onion":     110,
	"zwiebel":   110,
	"carrot":    60,
	"karotte":   60,
	"rüebli":    60,
	"pepper":    160,
	"paprika":   160,
	"zucchini":  250,
	"eggplant":  300,
	"aubergine": 300,
	"broccoli":  400,
	"brokkoli":  400,
	"lettuce":   300,
	"salat":     300,
	"garlic":    50,
	"knoblauch": 50,
	"egg":       60,
}

// DefaultWeights returns the built-in produce weights
func DefaultWeights() WeightTable {
	return NewWeightTable(nil)
}

// NewWeightTable returns the built-in weights extended by overrides
func NewWeightTable(overrides map[string]float64) WeightTable {
	merged := make(map[string]float64, len(builtinWeights)+len(overrides))
	for k, v := range builtinWeights {
		merged[k] = v
	}
	for k, v := range overrides {
		if v <= 0 {
			continue
		}
		merged[strings.ToLower(strings.TrimSpace(k))] = v
	}

	table := make(WeightTable, 0, len(merged))
	for k, v := range merged {
		table = append(table, WeightEntry{Keyword: k, Grams: v})
	}
	sort.Slice(table, func(i, j int) bool {
		if len(table[i].Keyword) != len(table[j].Keyword) {
			return len(table[i].Keyword) > len(table[j].Keyword)
		}
		return table[i].Keyword < table[j].Keyword
	})
	return table
}

// Lookup returns the weight of the first entry contained in name, or fallback
func (w WeightTable) Lookup(name string, fallback float64) float64 {
	lower := strings.ToLower(name)
	for _, entry := range w {
		if strings.Contains(lower, entry.Keyword) {
			return entry.Grams
		}
	}
	return fallback
}

// Reconciler computes how many packages cover a required quantity
type Reconciler struct {
	table           Table
	weights         WeightTable
	fallbackPackage decimal.Decimal
	defaultItem     decimal.Decimal
}

// NewReconciler creates a reconciler. Non-positive weights fall back to 150 g.
func NewReconciler(table Table, weights WeightTable, fallbackPackageGrams, defaultItemGrams float64) *Reconciler {
	if fallbackPackageGrams <= 0 {
		fallbackPackageGrams = 150
	}
	if defaultItemGrams <= 0 {
		defaultItemGrams = 150
	}
	return &Reconciler{
		table:           table,
		weights:         weights,
		fallbackPackage: decimal.NewFromFloat(fallbackPackageGrams),
		defaultItem:     decimal.NewFromFloat(defaultItemGrams),
	}
}

// NewReconcilerFromConfig builds a reconciler from the configured tables
func NewReconcilerFromConfig(config *types.Config) *Reconciler {
	return NewReconciler(
		NewTable(config.Units),
		NewWeightTable(config.ProduceWeights),
		config.FallbackPackageGrams,
		config.DefaultItemGrams,
	)
}

// Table returns the unit table the reconciler parses with
func (r *Reconciler) Table() Table {
	return r.table
}

// Reconcile returns the number of packages to buy, always at least 1.
//
// A package size in the same family as the required unit is used directly.
// Anything else is estimated from the item's typical piece weight against
// the package size, or against the fallback package weight if none is known.
func (r *Reconciler) Reconcile(itemName, requiredText string, pkg *types.PackageSize) int {
	amount, unit := r.table.parse(requiredText)
	required := amount.Mul(r.table.Multiplier(unit))
	family := r.table.Family(unit)

	hasPackage := pkg != nil && pkg.AmountInBaseUnits > 0 && !math.IsInf(pkg.AmountInBaseUnits, 1)
	if hasPackage && family != FamilyCount && family == FamilyOf(pkg.BaseUnit) {
		return packagesFor(required, decimal.NewFromFloat(pkg.AmountInBaseUnits))
	}

	estimated := required
	if family == FamilyCount {
		weight := decimal.NewFromFloat(r.weights.Lookup(itemName, r.defaultItem.InexactFloat64()))
		estimated = amount.Mul(weight)
	}

	packageWeight := r.fallbackPackage
	if hasPackage {
		packageWeight = decimal.NewFromFloat(pkg.AmountInBaseUnits)
	}
	return packagesFor(estimated, packageWeight)
}

// MaxPackages caps a reconciled count
const MaxPackages = 99

var maxPackages = decimal.NewFromInt(MaxPackages)

// packagesFor rounds required/pkg up, with a floor of one package and a ceiling of MaxPackages
func packagesFor(required, pkg decimal.Decimal) int {
	if !required.IsPositive() || !pkg.IsPositive() {
		return 1
	}
	if required.LessThanOrEqual(pkg) {
		return 1
	}
	n := required.Div(pkg).Ceil()
	if n.GreaterThan(maxPackages) {
		return MaxPackages
	}
	if n.LessThan(decimal.NewFromInt(1)) {
		return 1
	}
	return int(n.IntPart())
}
