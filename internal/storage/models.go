package storage

import (
	"time"
)

// SpreadRow is one persisted per-venue observation.
type SpreadRow struct {
	TakenAt  time.Time
	Pair     string
	Venue    string
	DexPrice float64
	CexBid   *float64
	CexAsk   *float64
	Direct   *float64
	Reverse  *float64
}

// AlertRow captures an emitted alert for auditing.
type AlertRow struct {
	ID        int64
	TakenAt   time.Time
	Pair      string
	Venue     string
	Direction string
	Value     float64
	Threshold float64
	CreatedAt time.Time
}
