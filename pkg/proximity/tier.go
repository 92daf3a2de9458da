package proximity

import "fmt"

// Tier is a distance-based danger level, ordered by severity.
type Tier int

const (
	TierSafe Tier = iota
	TierWarning
	TierDanger
	TierDeparted
)

func (t Tier) String() string {
	switch t {
	case TierSafe:
		return "safe"
	case TierWarning:
		return "warning"
	case TierDanger:
		return "danger"
	case TierDeparted:
		return "departed"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// clampTier forces a server supplied level into the known range.
func clampTier(v int) Tier {
	switch {
	case v < int(TierSafe):
		return TierSafe
	case v > int(TierDeparted):
		return TierDeparted
	default:
		return Tier(v)
	}
}

// Classify maps a distance onto a tier. Boundaries are exclusive: a distance
// equal to a threshold stays in the lower tier.
func Classify(distance float64, t Thresholds) Tier {
	switch {
	case distance > t.Danger:
		return TierDeparted
	case distance > t.Warning:
		return TierDanger
	case distance > t.Safe:
		return TierWarning
	default:
		return TierSafe
	}
}
