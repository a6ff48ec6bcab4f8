// Package palette picks display colors for child profiles.
package palette

import (
	"crypto/rand"
	"math/big"
)

// Colors is the set of child color tags offered by default
var Colors = []string{
	"#E2574C", "#F29C1F", "#F2C94C", "#6FCF97", "#27AE60", "#2D9CDB",
	"#4A90E2", "#9B51E0", "#BB6BD9", "#EB5E9B", "#56CCF2", "#8D6E63",
}

// PickColorTag returns a random palette color not already in use.
// Once every color is taken it picks from the whole palette.
func PickColorTag(used []string) (string, error) {
	taken := make(map[string]bool, len(used))
	for _, c := range used {
		taken[c] = true
	}

	var free []string
	for _, c := range Colors {
		if !taken[c] {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		free = Colors
	}
	return randomElement(free)
}

// randomElement picks a random element from a string slice
func randomElement(slice []string) (string, error) {
	if len(slice) == 0 {
		return "", nil
	}

	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(slice))))
	if err != nil {
		return "", err
	}

	return slice[num.Int64()], nil
}
