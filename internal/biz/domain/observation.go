package domain

import (
	"math"
	"time"
)

const (
	// MaxQualityAttribute is the highest value a single quality attribute can take
	MaxQualityAttribute = 15

	// MissingQualityScore is returned by QualityScore when any attribute is unknown
	MissingQualityScore = -1.0

	qualityAttributeTotal = 3 * MaxQualityAttribute
)

// RawObservation represents one sighting read from the observation store
type RawObservation struct {
	EntityID        uint32  // Species id, 0 is never a real entity
	Attack          *uint16 // Quality attributes, nil when not scanned
	Defense         *uint16
	Stamina         *uint16
	Shiny           bool
	ExpireTimestamp int64 // Unix seconds
}

// IsComplete reports whether all three quality attributes are present
func (o *RawObservation) IsComplete() bool {
	return o.Attack != nil && o.Defense != nil && o.Stamina != nil
}

// QualityScore returns the attribute sum scaled to 0-100, rounded to one decimal
func (o *RawObservation) QualityScore() float64 {
	if !o.IsComplete() {
		return MissingQualityScore
	}
	sum := float64(*o.Attack) + float64(*o.Defense) + float64(*o.Stamina)
	return math.Round(sum*100/qualityAttributeTotal*10) / 10
}

// IsPerfect reports whether every quality attribute is at its maximum
func (o *RawObservation) IsPerfect() bool {
	return o.IsComplete() &&
		*o.Attack == MaxQualityAttribute &&
		*o.Defense == MaxQualityAttribute &&
		*o.Stamina == MaxQualityAttribute
}

// ExpiresAt returns the expiry timestamp as time
func (o *RawObservation) ExpiresAt() time.Time {
	return time.Unix(o.ExpireTimestamp, 0)
}

// InWindow reports whether the observation falls in [from, to]
func (o *RawObservation) InWindow(from, to time.Time) bool {
	return o.ExpireTimestamp >= from.Unix() && o.ExpireTimestamp <= to.Unix()
}
