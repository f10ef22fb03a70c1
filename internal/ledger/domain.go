// Package ledger owns roast batch stock: creation and same-day merging of
// roast batches, manual adjustments with an append-only audit trail, and
// per-product availability aggregates. All weights are grams.
package ledger

import (
	"time"

	"github.com/cafetiko/roastledger/internal/lot"
	"github.com/cafetiko/roastledger/internal/shared"
)

// RoastBatch is the atomic stock unit: beans roasted together under one
// recipe, date and level. available_weight_g moves; the rest is fixed at
// creation (weights grow only through same-day merges).
type RoastBatch struct {
	ID                int64
	Lot               string
	ProductID         int64
	RoastDate         time.Time
	Level             lot.Level
	DaySequence       int
	GreenWeightG      float64
	RoastedWeightG    float64
	AvailableWeightG  float64
	WeightLossPercent float64
	Telemetry         *RoastTelemetry
	Notes             string
	CreatedAt         time.Time
}

// RoastTelemetry carries optional sensor readings imported from RoastTime.
type RoastTelemetry struct {
	RoastTimeUID      string
	PreheatTempC      float64
	ChargeTempC       float64
	FirstCrackSeconds int
	FirstCrackTempC   float64
	DropTempC         float64
	TotalRoastSeconds int
	AmbientTempC      float64
	Humidity          float64
}

// AdjustmentType enumerates manual correction kinds.
type AdjustmentType string

const (
	AdjustmentAdd        AdjustmentType = "add"
	AdjustmentSubtract   AdjustmentType = "subtract"
	AdjustmentSet        AdjustmentType = "set"
	AdjustmentCorrection AdjustmentType = "correction"
)

// ParseAdjustmentType validates an adjustment kind.
func ParseAdjustmentType(s string) (AdjustmentType, error) {
	switch t := AdjustmentType(s); t {
	case AdjustmentAdd, AdjustmentSubtract, AdjustmentSet, AdjustmentCorrection:
		return t, nil
	}
	return "", shared.Validationf("adjustment_type", "must be add, subtract, set or correction, got %q", s)
}

// Adjustment is one append-only audit row. Rows are never mutated or deleted.
type Adjustment struct {
	ID             int64
	ProductID      int64
	BatchID        *int64
	Type           AdjustmentType
	AmountG        float64
	PreviousTotalG float64
	NewTotalG      float64
	Comment        string
	CreatedAt      time.Time
}

// ProductSummary aggregates availability across a product's batches.
type ProductSummary struct {
	ProductID       int64   `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Level           string  `json:"roast_level"`
	TotalAvailableG float64 `json:"total_available_g"`
	BatchCount      int     `json:"batch_count"`
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	ProductID     int64
	OnlyAvailable bool
	Order         BatchOrder
}

// BatchOrder controls the walk direction over a product's batches.
type BatchOrder int

const (
	// OldestFirst walks roast_date ascending (FIFO consumption).
	OldestFirst BatchOrder = iota
	// NewestFirst walks roast_date descending (credits go to the
	// most recent roast).
	NewestFirst
)

// LowStockThresholdG is the default per-product alert threshold.
const LowStockThresholdG = 300
