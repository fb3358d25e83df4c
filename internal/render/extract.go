package render

// Fixed extraction contract: listing containers are div.listing elements
// and the listing identifier lives in their data-id attribute. Elements
// without an identifier yield an empty string and are dropped.
const (
	listingSelector = "div.listing"
	listingIDAttr   = "data-id"
)

const extractScript = `Array.from(document.querySelectorAll('` + listingSelector + `'))` +
	`.map(e => e.getAttribute('` + listingIDAttr + `') || '')`

// dropEmptyIDs removes empty identifiers while preserving document order.
func dropEmptyIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	return out
}
