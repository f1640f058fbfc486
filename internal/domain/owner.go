package domain

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var nameFolder = cases.Fold()

// NormalizeEmail lower-cases and trims an email key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NameKey folds a full name into a comparison key: NFKC, case folded, single spaced.
func NameKey(fullName string) string {
	trimmed := strings.TrimSpace(fullName)
	if trimmed == "" {
		return ""
	}
	folded := nameFolder.String(norm.NFKC.String(trimmed))
	return strings.Join(strings.Fields(folded), " ")
}

// Matches reports whether any supplied key of query identifies the owner.
func (o OwnerRef) Matches(query OwnerRef) bool {
	if id := strings.TrimSpace(query.UserID); id != "" && id == strings.TrimSpace(o.UserID) {
		return true
	}
	if email := NormalizeEmail(query.Email); email != "" && email == NormalizeEmail(o.Email) {
		return true
	}
	if name := NameKey(query.FullName); name != "" && name == NameKey(o.FullName) {
		return true
	}
	return false
}

// legacy product documents spelled the price field in several ways
var priceFields = []string{"price", "Price", "unitPrice", "productPrice", "price_value"}

// NormalizePrice reads a price in minor units from a raw product document. Integer values are
// taken as minor units; floating point values and numeric strings as major units.
func NormalizePrice(data map[string]any) (int64, bool) {
	for _, field := range priceFields {
		raw, ok := data[field]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		case float64:
			return int64(math.Round(v * 100)), true
		case string:
			cleaned := strings.TrimSpace(strings.NewReplacer(",", "", "$", "", "₱", "").Replace(v))
			if cleaned == "" {
				continue
			}
			f, err := strconv.ParseFloat(cleaned, 64)
			if err != nil {
				continue
			}
			return int64(math.Round(f * 100)), true
		}
	}
	return 0, false
}
