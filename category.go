package refine

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Category names the physical sub-model a parameterisation describes.
// The order of the constants is the order of the global parameter vector.
type Category int

const (
	Detector           Category = iota + 1 // Detector pose.
	Beam                                   // Incident beam direction and wavelength.
	CrystalOrientation                     // Crystal U matrix.
	CrystalUnitCell                        // Crystal B matrix.
)

// Categories lists every category in assembly order.
var Categories = [...]Category{Detector, Beam, CrystalOrientation, CrystalUnitCell}

var (
	categoryNames = [...]string{
		Detector:           "Detector",
		Beam:               "Beam",
		CrystalOrientation: "CrystalOrientation",
		CrystalUnitCell:    "CrystalUnitCell",
	}
	categoryByName = map[string]Category{
		"Detector":           Detector,
		"Beam":               Beam,
		"CrystalOrientation": CrystalOrientation,
		"CrystalUnitCell":    CrystalUnitCell,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Category(0)
	_ json.Marshaler           = Category(0)
	_ json.Unmarshaler         = (*Category)(nil)
	_ encoding.TextMarshaler   = Category(0)
	_ encoding.TextUnmarshaler = (*Category)(nil)
)

// IsValid reports whether c is one of the four categories.
func (c Category) IsValid() bool {
	return c >= Detector && c <= CrystalUnitCell
}

// String returns the category name. For invalid values it returns "Category(n)".
func (c Category) String() string {
	if c.IsValid() {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("refine: invalid category: %d", int(c))
	}
	return []byte(categoryNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	v, ok := categoryByName[string(text)]
	if !ok {
		return fmt.Errorf("refine: invalid category: %q", text)
	}
	*c = v
	return nil
}

// MarshalJSON implements json.Marshaler. Category serializes as a JSON string.
func (c Category) MarshalJSON() ([]byte, error) {
	text, err := c.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("refine: invalid category: %s", data)
	}
	return c.UnmarshalText([]byte(s))
}
