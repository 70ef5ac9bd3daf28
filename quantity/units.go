// Package quantity turns free-text shopping quantities into base-unit amounts
// and works out how many retail packages cover them.
package quantity

import (
	"regexp"
	"strings"

	"cart-autofill/internal/types"

	"github.com/shopspring/decimal"
)

// Family is the dimension a unit measures
type Family string

const (
	FamilyWeight Family = "weight"
	FamilyVolume Family = "volume"
	FamilyCount  Family = "count"
)

// UnitPiece is the unit assumed when a quantity names none
const UnitPiece = "piece"

// quantityPattern matches the first number, with either decimal separator, and an optional unit word
var quantityPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(\p{L}+)?`)

var builtinUnits = map[string]types.UnitSpec{
	// weight, grams
	"mg":    {Multiplier: 0.001, Family: string(FamilyWeight)},
	"g":     {Multiplier: 1, Family: string(FamilyWeight)},
	"gr":    {Multiplier: 1, Family: string(FamilyWeight)},
	"gram":  {Multiplier: 1, Family: string(FamilyWeight)},
	"grams": {Multiplier: 1, Family: string(FamilyWeight)},
	"gramm": {Multiplier: 1, Family: string(FamilyWeight)},
	"kg":    {Multiplier: 1000, Family: string(FamilyWeight)},
	"kilo":  {Multiplier: 1000, Family: string(FamilyWeight)},

	// volume, milliliters
	"ml":     {Multiplier: 1, Family: string(FamilyVolume)},
	"cl":     {Multiplier: 10, Family: string(FamilyVolume)},
	"dl":     {Multiplier: 100, Family: string(FamilyVolume)},
	"l":      {Multiplier: 1000, Family: string(FamilyVolume)},
	"liter":  {Multiplier: 1000, Family: string(FamilyVolume)},
	"litre":  {Multiplier: 1000, Family: string(FamilyVolume)},
	"litres": {Multiplier: 1000, Family: string(FamilyVolume)},

	// count
	"piece":   {Multiplier: 1, Family: string(FamilyCount)},
	"pieces":  {Multiplier: 1, Family: string(FamilyCount)},
	"pc":      {Multiplier: 1, Family: string(FamilyCount)},
	"pcs":     {Multiplier: 1, Family: string(FamilyCount)},
	"st":      {Multiplier: 1, Family: string(FamilyCount)},
	"stk":     {Multiplier: 1, Family: string(FamilyCount)},
	"stück":   {Multiplier: 1, Family: string(FamilyCount)},
	"pack":    {Multiplier: 1, Family: string(FamilyCount)},
	"packung": {Multiplier: 1, Family: string(FamilyCount)},
	"box":     {Multiplier: 1, Family: string(FamilyCount)},
	"bund":    {Multiplier: 1, Family: string(FamilyCount)},
	"dose":    {Multiplier: 1, Family: string(FamilyCount)},
	"flasche": {Multiplier: 1, Family: string(FamilyCount)},
	"glas":    {Multiplier: 1, Family: string(FamilyCount)},
	"becher":  {Multiplier: 1, Family: string(FamilyCount)},
	"beutel":  {Multiplier: 1, Family: string(FamilyCount)},
}

// Table maps unit names to their multiplier and family
type Table struct {
	units map[string]types.UnitSpec
}

var defaultTable = NewTable(nil)

// DefaultTable returns the built-in unit table
func DefaultTable() Table {
	return defaultTable
}

// NewTable returns the built-in table extended by overrides.
// Override entries with a non-positive multiplier are ignored.
func NewTable(overrides map[string]types.UnitSpec) Table {
	units := make(map[string]types.UnitSpec, len(builtinUnits)+len(overrides))
	for name, spec := range builtinUnits {
		units[name] = spec
	}
	for name, spec := range overrides {
		if spec.Multiplier <= 0 {
			continue
		}
		if spec.Family == "" {
			spec.Family = string(FamilyCount)
		}
		units[strings.ToLower(strings.TrimSpace(name))] = spec
	}
	return Table{units: units}
}

// Multiplier returns the factor converting one unit to base units; unknown units count as 1
func (t Table) Multiplier(unit string) decimal.Decimal {
	spec, ok := t.units[strings.ToLower(unit)]
	if !ok {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(spec.Multiplier)
}

// Family returns what the unit measures; unknown units are counts
func (t Table) Family(unit string) Family {
	spec, ok := t.units[strings.ToLower(unit)]
	if !ok {
		return FamilyCount
	}
	return Family(spec.Family)
}

// ParseQuantity reads the first number and unit of text.
// Text without a number yields one piece; it never fails.
func (t Table) ParseQuantity(text string) types.ParsedQuantity {
	amount, unit := t.parse(text)
	return types.ParsedQuantity{
		Amount:           amount.InexactFloat64(),
		Unit:             unit,
		TotalInBaseUnits: amount.Mul(t.Multiplier(unit)).InexactFloat64(),
		OriginalText:     text,
	}
}

// ConvertToBaseUnits converts an amount of unit to grams, milliliters or pieces
func (t Table) ConvertToBaseUnits(amount float64, unit string) float64 {
	return decimal.NewFromFloat(amount).Mul(t.Multiplier(unit)).InexactFloat64()
}

func (t Table) parse(text string) (decimal.Decimal, string) {
	one := decimal.NewFromInt(1)

	m := quantityPattern.FindStringSubmatch(text)
	if m == nil {
		return one, UnitPiece
	}

	amount, err := decimal.NewFromString(strings.Replace(m[1], ",", ".", 1))
	if err != nil {
		return one, UnitPiece
	}

	unit := strings.ToLower(m[2])
	if unit == "" {
		unit = UnitPiece
	}
	return amount, unit
}

// ParseQuantity parses text with the built-in table
func ParseQuantity(text string) types.ParsedQuantity {
	return defaultTable.ParseQuantity(text)
}

// ConvertToBaseUnits converts with the built-in table
func ConvertToBaseUnits(amount float64, unit string) float64 {
	return defaultTable.ConvertToBaseUnits(amount, unit)
}

// FamilyOf returns the family of a package's base unit
func FamilyOf(unit types.BaseUnit) Family {
	switch unit {
	case types.BaseUnitGram:
		return FamilyWeight
	case types.BaseUnitMilliliter:
		return FamilyVolume
	}
	return FamilyCount
}
