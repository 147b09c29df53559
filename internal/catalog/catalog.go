// Package catalog maps wine labels onto the two dispenser categories.
package catalog

// Category is a coarse grouping served by one dispensing counter.
type Category string

const (
	Premium  Category = "premium"
	Standard Category = "standard"
)

// Labels exactly as customers submit them.
const (
	VinoDeLaCasa   = "VINO DE LA CASA"
	GranCapitana   = "GRAN CAPITANA"
	PequenaCrianza = "PEQUEÑA CRIANZA"
	LaTrucha       = "LA TRUCHA"
)

var labels = map[string]Category{
	VinoDeLaCasa:   Premium,
	GranCapitana:   Premium,
	PequenaCrianza: Standard,
	LaTrucha:       Standard,
}

// CategoryOf returns the category for label. Unknown labels report false.
func CategoryOf(label string) (Category, bool) {
	c, ok := labels[label]
	return c, ok
}

// Line is a single (label, quantity) pair of an order.
type Line struct {
	Label    string
	Quantity int
}

// Totals holds per-category quantities for one order.
type Totals struct {
	Premium  int
	Standard int
}

// Sum adds up quantities per category. Lines with unknown labels count
// towards neither total.
func Sum(lines []Line) Totals {
	var t Totals
	for _, l := range lines {
		c, ok := CategoryOf(l.Label)
		if !ok {
			continue
		}
		switch c {
		case Premium:
			t.Premium += l.Quantity
		case Standard:
			t.Standard += l.Quantity
		}
	}
	return t
}
