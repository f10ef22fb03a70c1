package orders

import "strings"

// Matcher decides whether a webshop item name refers to a catalog product.
// Webshop names carry package size and marketing suffixes the catalog does
// not, so exact comparison is useless.
type Matcher interface {
	Match(itemName, productName string) bool
}

// SubstringMatcher matches case-insensitively in either direction: the
// catalog name contained in the webshop name or vice versa.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(itemName, productName string) bool {
	item := strings.ToLower(strings.TrimSpace(itemName))
	product := strings.ToLower(strings.TrimSpace(productName))
	if item == "" || product == "" {
		return false
	}
	return strings.Contains(item, product) || strings.Contains(product, item)
}
