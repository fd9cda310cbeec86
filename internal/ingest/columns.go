// Package ingest reads price lists (CSV, XLSX, JSON) and base-model catalogs
// (JSON) into model types.
package ingest

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// Field names recognized in price-list headers.
const (
	FieldModelCode = "model_code"
	FieldBrand     = "brand"
	FieldModelYear = "model_year"
	FieldModel     = "model"
	FieldPackage   = "package"
	FieldEngine    = "engine"
	FieldTrack     = "track"
	FieldStarter   = "starter"
	FieldColor     = "color"
	FieldPrice     = "price"
	FieldCurrency  = "currency"
	FieldMarket    = "market"
)

var headerAliases = map[string]string{
	"model_code":   FieldModelCode,
	"modelcode":    FieldModelCode,
	"code":         FieldModelCode,
	"sku":          FieldModelCode,
	"article":      FieldModelCode,
	"brand":        FieldBrand,
	"make":         FieldBrand,
	"manufacturer": FieldBrand,
	"model_year":   FieldModelYear,
	"year":         FieldModelYear,
	"my":           FieldModelYear,
	"model":        FieldModel,
	"model_name":   FieldModel,
	"description":  FieldModel,
	"package":      FieldPackage,
	"trim":         FieldPackage,
	"engine":       FieldEngine,
	"motor":        FieldEngine,
	"track":        FieldTrack,
	"starter":      FieldStarter,
	"start":        FieldStarter,
	"color":        FieldColor,
	"colour":       FieldColor,
	"price":        FieldPrice,
	"msrp":         FieldPrice,
	"retail_price": FieldPrice,
	"currency":     FieldCurrency,
	"market":       FieldMarket,
}

// Defaults fill identity fields a price list carries in its title rather
// than per line.
type Defaults struct {
	Brand     string
	ModelYear int
	Currency  string
	Market    string
}

// Columns maps canonical field names to row positions.
type Columns map[string]int

// NewColumns resolves a header row. model_code and price columns are required.
func NewColumns(header []string) (Columns, error) {
	cols := make(Columns, len(header))
	for i, h := range header {
		key := headerKey(h)
		if field, ok := headerAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	for _, req := range []string{FieldModelCode, FieldPrice} {
		if _, ok := cols[req]; !ok {
			return nil, eris.Errorf("ingest: header missing %s column", req)
		}
	}
	return cols, nil
}

func headerKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	}), "_")
}

func (c Columns) get(row []string, field string) string {
	i, ok := c[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Entry builds a price-list entry from row. Unparseable numbers are left
// zero so that validation rejects the line instead of the whole file.
func (c Columns) Entry(lineIndex int, row []string, d Defaults) model.PriceListEntry {
	e := model.PriceListEntry{
		LineIndex: lineIndex,
		ModelCode: c.get(row, FieldModelCode),
		Brand:     c.get(row, FieldBrand),
		Model:     c.get(row, FieldModel),
		Package:   c.get(row, FieldPackage),
		Engine:    c.get(row, FieldEngine),
		Track:     c.get(row, FieldTrack),
		Starter:   c.get(row, FieldStarter),
		Color:     c.get(row, FieldColor),
		Currency:  c.get(row, FieldCurrency),
		Market:    c.get(row, FieldMarket),
	}
	if y, err := strconv.Atoi(c.get(row, FieldModelYear)); err == nil {
		e.ModelYear = y
	}
	if p, err := ParsePrice(c.get(row, FieldPrice)); err == nil {
		e.Price = p
	}
	applyDefaults(&e, d)
	return e
}

func applyDefaults(e *model.PriceListEntry, d Defaults) {
	if e.Brand == "" {
		e.Brand = d.Brand
	}
	if e.ModelYear == 0 {
		e.ModelYear = d.ModelYear
	}
	if e.Currency == "" {
		e.Currency = d.Currency
	}
	if e.Market == "" {
		e.Market = d.Market
	}
}

// ParsePrice parses a printed price such as "$18,499.00", "18 499,00 €" or
// "kr 189.900". When both separators appear the last one is decimal. A lone
// separator followed by one or two digits is decimal; three trailing digits
// read as a thousands group.
func ParsePrice(s string) (float64, error) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	raw := b.String()
	if raw == "" {
		return 0, eris.Errorf("ingest: no digits in price %q", s)
	}

	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")
	decimal := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal = max(lastDot, lastComma)
	case lastDot >= 0 && strings.Count(raw, ".") == 1 && fraction(raw, lastDot):
		decimal = lastDot
	case lastComma >= 0 && strings.Count(raw, ",") == 1 && fraction(raw, lastComma):
		decimal = lastComma
	}

	var out strings.Builder
	for i, r := range raw {
		switch {
		case i == decimal:
			out.WriteByte('.')
		case r == '.' || r == ',':
		default:
			out.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(out.String(), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: parse price %q", s)
	}
	return v, nil
}

// fraction reports whether the separator at i is followed by one or two digits.
func fraction(raw string, i int) bool {
	n := len(raw) - i - 1
	return n == 1 || n == 2
}
