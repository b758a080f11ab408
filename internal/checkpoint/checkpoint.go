// Package checkpoint defines the immutable observations fed to the analyzers
// and the parsers that build them from recognized text.
package checkpoint

import "time"

// Kind identifies a tracked game resource.
type Kind int

const (
	KindExp Kind = iota
	KindHP
	KindMP
)

// Kinds lists every tracked resource in display order.
var Kinds = []Kind{KindExp, KindHP, KindMP}

func (k Kind) String() string {
	switch k {
	case KindExp:
		return "exp"
	case KindHP:
		return "hp"
	case KindMP:
		return "mp"
	default:
		return "unknown"
	}
}

// ParseKind maps "exp", "hp" or "mp" to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Exp is one experience observation.
type Exp struct {
	Level int
	// Exp is the experience accumulated since the start of Level.
	Exp int64
	// Ratio is Exp divided by the experience required for Level, in [0,1].
	Ratio     float64
	Timestamp time.Time
}

// ImpliedTotal returns Exp/Ratio, the experience required for Level as
// implied by this observation. ok is false when Ratio is not positive.
func (c Exp) ImpliedTotal() (total float64, ok bool) {
	if c.Ratio <= 0 {
		return 0, false
	}
	return float64(c.Exp) / c.Ratio, true
}

// Gauge is one health or mana observation.
type Gauge struct {
	Current   int64
	Total     int64
	Timestamp time.Time
}
