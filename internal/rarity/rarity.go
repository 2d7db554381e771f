// Package rarity maps stored rarity codes to display labels.
package rarity

const Unknown = "Unknown/Other"

// Code 5 has no label.
var labels = map[int]string{
	1: "Bronze",
	2: "Silver",
	3: "Gold",
	4: "Diamond",
	6: "Platinum",
	7: "Mythical",
}

// Label returns the display label for code, or Unknown.
func Label(code int) string {
	if l, ok := labels[code]; ok {
		return l
	}
	return Unknown
}
