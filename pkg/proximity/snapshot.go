package proximity

import (
	"encoding/json"

	"github.com/grovetools/tether/pkg/models"
	"github.com/mitchellh/mapstructure"
)

// SelfKey identifies the single tracked entry of a member view.
const SelfKey = "self"

// UnknownName replaces a missing member name.
const UnknownName = "Unknown"

// Position is a WGS84 coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MemberStatus is one tracked member within a snapshot.
type MemberStatus struct {
	Name     string   `json:"name"`
	Position Position `json:"position"`
	Distance float64  `json:"distance"`
	Tier     Tier     `json:"tier"`
}

// Snapshot is the normalised proximity state for one view. A host view lists
// every member; a member view holds exactly one entry keyed by SelfKey.
// Thresholds is the triple the tiers were classified with; Reported is false
// when the payload carried no valid triple and a fallback was used.
type Snapshot struct {
	Role       models.Role    `json:"role"`
	Host       Position       `json:"host"`
	Thresholds Thresholds     `json:"thresholds"`
	Reported   bool           `json:"thresholds_reported"`
	Members    []MemberStatus `json:"members"`
}

// Self returns the member view's own entry.
func (s Snapshot) Self() (MemberStatus, bool) {
	for _, m := range s.Members {
		if m.Name == SelfKey {
			return m, true
		}
	}
	return MemberStatus{}, false
}

// MaxTier returns the most severe tier in the snapshot.
func (s Snapshot) MaxTier() Tier {
	max := TierSafe
	for _, m := range s.Members {
		if m.Tier > max {
			max = m.Tier
		}
	}
	return max
}

type rawPosition struct {
	Lat float64 `mapstructure:"lat"`
	Lon float64 `mapstructure:"lon"`
}

type rawThresholds struct {
	Safe    float64 `mapstructure:"safe"`
	Warning float64 `mapstructure:"warning"`
	Danger  float64 `mapstructure:"danger"`
}

type rawMember struct {
	MemberName string  `mapstructure:"memberName"`
	Lat        float64 `mapstructure:"lat"`
	Lon        float64 `mapstructure:"lon"`
	Distance   float64 `mapstructure:"distance"`
	Danger     *int    `mapstructure:"danger"`
}

type rawHostPayload struct {
	Host         rawPosition   `mapstructure:"host"`
	DistanceInfo rawThresholds `mapstructure:"distanceInfo"`
}

type rawMemberPayload struct {
	Danger       *int          `mapstructure:"danger"`
	Distance     float64       `mapstructure:"distance"`
	DistanceInfo rawThresholds `mapstructure:"distanceInfo"`
	Host         rawPosition   `mapstructure:"host"`
	Member       rawPosition   `mapstructure:"member"`
}

// Decode normalises a raw realtime payload for role. It never fails: invalid
// JSON, missing objects and non-numeric values all decode as zero. Distances
// without a server level are classified with the payload's thresholds, or with
// fallback when those are missing or invalid. An invalid fallback is replaced
// by DefaultThresholds.
func Decode(role models.Role, payload []byte, fallback Thresholds) Snapshot {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		doc = map[string]interface{}{}
	}
	return DecodeMap(role, doc, fallback)
}

// DecodeMap is Decode for an already parsed document.
func DecodeMap(role models.Role, doc map[string]interface{}, fallback Thresholds) Snapshot {
	if ValidateThresholds(fallback) != nil {
		fallback = DefaultThresholds
	}
	if role == models.RoleMember {
		return decodeMember(doc, fallback)
	}
	return decodeHost(doc, fallback)
}

// effectiveThresholds returns the payload triple when it is valid.
func effectiveThresholds(raw rawThresholds, fallback Thresholds) (Thresholds, bool) {
	if t := Thresholds(raw); ValidateThresholds(t) == nil {
		return t, true
	}
	return fallback, false
}

func decodeHost(doc map[string]interface{}, fallback Thresholds) Snapshot {
	var raw rawHostPayload
	weakDecode(doc, &raw)

	snap := Snapshot{
		Role:    models.RoleHost,
		Host:    Position(raw.Host),
		Members: []MemberStatus{},
	}
	snap.Thresholds, snap.Reported = effectiveThresholds(raw.DistanceInfo, fallback)

	items, _ := doc["members"].([]interface{})
	for _, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var m rawMember
		weakDecode(fields, &m)
		if m.MemberName == "" {
			m.MemberName = UnknownName
		}
		snap.Members = append(snap.Members, MemberStatus{
			Name:     m.MemberName,
			Position: Position{Lat: m.Lat, Lon: m.Lon},
			Distance: m.Distance,
			Tier:     tierOf(m.Danger, m.Distance, snap.Thresholds),
		})
	}
	return snap
}

func decodeMember(doc map[string]interface{}, fallback Thresholds) Snapshot {
	var raw rawMemberPayload
	weakDecode(doc, &raw)

	snap := Snapshot{
		Role: models.RoleMember,
		Host: Position(raw.Host),
	}
	snap.Thresholds, snap.Reported = effectiveThresholds(raw.DistanceInfo, fallback)
	snap.Members = []MemberStatus{{
		Name:     SelfKey,
		Position: Position(raw.Member),
		Distance: raw.Distance,
		Tier:     tierOf(raw.Danger, raw.Distance, snap.Thresholds),
	}}
	return snap
}

// tierOf prefers the server's level and derives one from the distance otherwise.
func tierOf(level *int, distance float64, t Thresholds) Tier {
	if level != nil {
		return clampTier(*level)
	}
	return Classify(distance, t)
}

// weakDecode fills target from input, accepting numeric strings. Fields that
// cannot be converted are left at their zero value.
func weakDecode(input interface{}, target interface{}) {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return
	}
	_ = decoder.Decode(input)
}
