package domain

import (
	"sort"
	"time"
)

// TotalEntityID is reserved for the synthetic grand total
const TotalEntityID uint32 = 0

// CategoryStat holds the metrics of one entity for one category
type CategoryStat struct {
	EntityID  uint32
	Primary   uint64 // Rows matching the category predicate
	Secondary uint64 // All sightings of the entity in the window
}

// Ratio returns floor(Secondary / Primary), 0 when either metric is 0
func (s CategoryStat) Ratio() uint64 {
	return Ratio(s.Primary, s.Secondary)
}

// Ratio returns floor(secondary / primary). A result of 0 means insufficient data.
func Ratio(primary, secondary uint64) uint64 {
	if primary == 0 || secondary == 0 {
		return 0
	}
	return secondary / primary
}

// AggregateResult is an id-ordered set of CategoryStat that always carries the total entry
type AggregateResult struct {
	From, To time.Time // Window the rows were aggregated over

	stats map[uint32]CategoryStat
	ids   []uint32 // ascending, real entities only
}

// Total returns the synthetic grand total (entity id 0)
func (r *AggregateResult) Total() CategoryStat {
	return r.stats[TotalEntityID]
}

// Get returns the stat for an entity id
func (r *AggregateResult) Get(id uint32) (CategoryStat, bool) {
	s, ok := r.stats[id]
	return s, ok
}

// Entities returns real entity stats in ascending id order
func (r *AggregateResult) Entities() []CategoryStat {
	out := make([]CategoryStat, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.stats[id])
	}
	return out
}

// IDs returns every id in ascending order, starting with the total entry
func (r *AggregateResult) IDs() []uint32 {
	out := make([]uint32, 0, len(r.ids)+1)
	out = append(out, TotalEntityID)
	return append(out, r.ids...)
}

// Len returns the number of real entities
func (r *AggregateResult) Len() int {
	return len(r.ids)
}

// Aggregate counts rows inside [now-window, now] per entity.
// Secondary counts every sighting of an entity, Primary those matching sel.
// Only entities with at least one matching row are listed; the total sums the listed entities.
func Aggregate(rows []RawObservation, sel Selector, window time.Duration, now time.Time) *AggregateResult {
	from := now.Add(-window)

	counts := make(map[uint32]*CategoryStat)
	for i := range rows {
		o := &rows[i]
		if o.EntityID == TotalEntityID || !o.InWindow(from, now) {
			continue
		}
		stat, ok := counts[o.EntityID]
		if !ok {
			stat = &CategoryStat{EntityID: o.EntityID}
			counts[o.EntityID] = stat
		}
		stat.Secondary++
		if sel.Match(o) {
			stat.Primary++
		}
	}

	result := &AggregateResult{
		From:  from,
		To:    now,
		stats: map[uint32]CategoryStat{TotalEntityID: {EntityID: TotalEntityID}},
	}
	total := CategoryStat{EntityID: TotalEntityID}
	for id, stat := range counts {
		if stat.Primary == 0 {
			continue
		}
		result.stats[id] = *stat
		result.ids = append(result.ids, id)
		total.Primary += stat.Primary
		total.Secondary += stat.Secondary
	}
	result.stats[TotalEntityID] = total
	sort.Slice(result.ids, func(i, j int) bool { return result.ids[i] < result.ids[j] })

	return result
}
