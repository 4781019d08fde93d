package models

// Distance is a race category (5K, 10K, ...) with its own bib-prefix and
// capacity configuration. Read-mostly reference data owned by event setup;
// the allocation pipeline only reads it.
type Distance struct {
	ID              int64  `json:"id" db:"id"`
	EventID         int64  `json:"event_id" db:"event_id"`
	Name            string `json:"name" db:"name"`
	BibPrefix       string `json:"bib_prefix" db:"bib_prefix"`
	MaxParticipants int    `json:"max_participants" db:"max_participants"`
	BaseAmount      int64  `json:"base_amount" db:"base_amount"`
}

// Goal is an optional sub-grouping within a distance (e.g. a target finish
// time) with its own bib-prefix and a price adjustment on top of the
// distance base amount.
type Goal struct {
	ID              int64  `json:"id" db:"id"`
	DistanceID      int64  `json:"distance_id" db:"distance_id"`
	Name            string `json:"name" db:"name"`
	BibPrefix       string `json:"bib_prefix" db:"bib_prefix"`
	PriceAdjustment int64  `json:"price_adjustment" db:"price_adjustment"`
}
