package refine

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// ComposePolicy selects how scan-varying crystal models are evaluated.
type ComposePolicy int

const (
	// PerReflection composes the crystal models at every reflection's exact
	// observed image number.
	PerReflection ComposePolicy = iota
	// PerFrame composes once per integer image and broadcasts the state to
	// every reflection whose floored image number matches. Within an image
	// the state is piecewise constant.
	PerFrame
)

var (
	policyNames  = [...]string{PerReflection: "PerReflection", PerFrame: "PerFrame"}
	policyByName = map[string]ComposePolicy{
		"PerReflection": PerReflection,
		"PerFrame":      PerFrame,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = ComposePolicy(0)
	_ json.Marshaler           = ComposePolicy(0)
	_ json.Unmarshaler         = (*ComposePolicy)(nil)
	_ encoding.TextMarshaler   = ComposePolicy(0)
	_ encoding.TextUnmarshaler = (*ComposePolicy)(nil)
)

func (p ComposePolicy) isValid() bool {
	return p >= PerReflection && p <= PerFrame
}

// String returns the name of the policy ("PerReflection", "PerFrame").
// For invalid values it returns "ComposePolicy(n)".
func (p ComposePolicy) String() string {
	if p.isValid() {
		return policyNames[p]
	}
	return fmt.Sprintf("ComposePolicy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p ComposePolicy) MarshalText() ([]byte, error) {
	if !p.isValid() {
		return nil, fmt.Errorf("%w: compose policy %d", ErrInvalidConfig, int(p))
	}
	return []byte(policyNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ComposePolicy) UnmarshalText(text []byte) error {
	v, ok := policyByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: compose policy %q", ErrInvalidConfig, text)
	}
	*p = v
	return nil
}

// MarshalJSON implements json.Marshaler. ComposePolicy serializes as a JSON string.
func (p ComposePolicy) MarshalJSON() ([]byte, error) {
	text, err := p.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (p *ComposePolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: compose policy %s", ErrInvalidConfig, data)
	}
	return p.UnmarshalText([]byte(s))
}
