package render

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Palette maps class names to box colours.
type Palette map[string]color.Color

// FallbackColor is used for classes missing from the palette.
var FallbackColor color.Color = mustHex("#0000FF")

// DefaultPalette returns the dashboard colours of the droppings classes.
func DefaultPalette() Palette {
	return Palette{
		"Healthy":          mustHex("#4A7F2C"),
		"Salmonella-like":  mustHex("#FFC107"),
		"NCD-like":         mustHex("#F44336"),
		"Coccidiosis-like": mustHex("#0288D1"),
	}
}

// ParsePalette builds a palette from "#rrggbb" strings.
func ParsePalette(hexes map[string]string) (Palette, error) {
	p := make(Palette, len(hexes))
	for class, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, err
		}
		p[class] = c
	}
	return p, nil
}

// Color returns the colour of class.
func (p Palette) Color(class string) color.Color {
	if c, ok := p[class]; ok {
		return c
	}
	return FallbackColor
}

func mustHex(h string) colorful.Color {
	c, err := colorful.Hex(h)
	if err != nil {
		panic(err)
	}
	return c
}
