// Package record turns search results into the flat text rows stored in the
// dataset file.
package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-product-collector/models"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultCurrency is assumed when a result carries no currency code.
const DefaultCurrency = "INR"

// TopRatedLabel replaces the ratings count of unranked top sellers.
const TopRatedLabel = "Number 1 Top-Rated"

var indianPrinter = message.NewPrinter(language.MustParse("en-IN"))

var symbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// FromResult projects a search result into a record.
func FromResult(r models.SearchResult, source string) models.Record {
	return models.Record{
		Title:    r.Title,
		Price:    FormatPrice(r.Currency, r.Price),
		Rating:   FormatRating(r.Stars),
		Ratings:  FormatRatings(r.TotalRatings),
		URL:      r.URL,
		ImageURL: r.Images.Small,
		Source:   source,
	}
}

// FromResults projects results in order.
func FromResults(results []models.SearchResult, source string) []models.Record {
	out := make([]models.Record, 0, len(results))
	for _, r := range results {
		out = append(out, FromResult(r, source))
	}
	return out
}

// FormatPrice prefixes the currency symbol and groups digits the Indian way
// (1,23,456.5), keeping at most three fraction digits.
func FormatPrice(code string, amount decimal.Decimal) string {
	return CurrencySymbol(code) + GroupIndian(amount)
}

// GroupIndian formats amount with en-IN digit grouping.
func GroupIndian(amount decimal.Decimal) string {
	f, _ := amount.Round(3).Float64()
	return indianPrinter.Sprintf("%v", number.Decimal(f, number.MaxFractionDigits(3)))
}

// CurrencySymbol maps an ISO 4217 code to its display prefix.
func CurrencySymbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	if sym, ok := symbols[code]; ok {
		return sym
	}
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String() + " "
	}
	return code + " "
}

// FormatRating renders the star rating in its shortest decimal form.
func FormatRating(stars float64) string {
	return strconv.FormatFloat(stars, 'f', -1, 64)
}

// FormatRatings renders the ratings count for display.
func FormatRatings(n int) string {
	switch {
	case n == models.TopRatedSentinel:
		return TopRatedLabel
	case n < 1000:
		return fmt.Sprintf("(%d)", n)
	case n < 1000000:
		return fmt.Sprintf("(%.1fK)", float64(n)/1000)
	default:
		return fmt.Sprintf("(%.1fM)", float64(n)/1000000)
	}
}

// EscapeField quotes a field containing a comma, a double quote or a
// newline, doubling any inner quotes.
func EscapeField(field string) string {
	if !strings.ContainsAny(field, ",\"\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// Line renders a record as one CSV line without the trailing newline.
func Line(r models.Record) string {
	fields := r.Fields()
	for i, f := range fields {
		fields[i] = EscapeField(f)
	}
	return strings.Join(fields, ",")
}

// Lines renders records in order.
func Lines(records []models.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, Line(r))
	}
	return out
}
