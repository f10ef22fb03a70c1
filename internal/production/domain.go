// Package production turns roasted stock into sellable output: retail
// packages, drip bags, bulk draws for cold brew, markets and sampling, and
// multi-batch advent calendar runs. Every run consumes available weight
// from specific roast batches atomically.
package production

import (
	"time"

	"github.com/cafetiko/roastledger/internal/lot"
	"github.com/cafetiko/roastledger/internal/shared"
)

// Kind enumerates production run types.
type Kind string

const (
	KindWholeBean16  Kind = "whole_bean_16"
	KindWholeBean70  Kind = "whole_bean_70"
	KindWholeBean250 Kind = "whole_bean_250"
	KindDrip11       Kind = "drip_11"
	KindColdBrew     Kind = "cold_brew"
	KindMarket       Kind = "market"
	KindSampling     Kind = "sampling"
	KindAdvent       Kind = "advent"
)

// packageSizes maps packaged kinds to grams per unit. Kinds absent from
// the map are bulk: the caller supplies total grams directly.
var packageSizes = map[Kind]float64{
	KindWholeBean16:  16,
	KindWholeBean70:  70,
	KindWholeBean250: 250,
	KindDrip11:       11,
}

// ParseKind validates a production kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindWholeBean16, KindWholeBean70, KindWholeBean250, KindDrip11,
		KindColdBrew, KindMarket, KindSampling, KindAdvent:
		return k, nil
	}
	return "", shared.Validationf("kind", "unknown production kind %q", s)
}

// Packaged reports whether the kind is unit-based.
func (k Kind) Packaged() bool {
	_, ok := packageSizes[k]
	return ok
}

// UnitWeightG returns grams per unit for packaged kinds, 0 for bulk.
func (k Kind) UnitWeightG() float64 {
	return packageSizes[k]
}

// Batch is one production run.
type Batch struct {
	ID           int64     `json:"id"`
	Lot          string    `json:"lot_number"`
	Kind         Kind      `json:"kind"`
	ProductID    int64     `json:"product_id,omitempty"`
	Quantity     int       `json:"quantity,omitempty"`
	UnitWeightG  float64   `json:"unit_weight_g,omitempty"`
	TotalWeightG float64   `json:"total_weight_g"`
	ProducedOn   time.Time `json:"produced_on"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Source records how much one roast batch contributed to a run. Advent
// runs have several; everything else has exactly one.
type Source struct {
	ID                int64   `json:"id"`
	ProductionBatchID int64   `json:"production_batch_id"`
	RoastBatchID      int64   `json:"roast_batch_id"`
	RoastLot          string  `json:"roast_lot,omitempty"`
	WeightG           float64 `json:"weight_g"`
}

// SourceBatch is the roast-batch view production needs: identity plus
// what is left to draw from.
type SourceBatch struct {
	ID               int64
	Lot              string
	ProductID        int64
	Level            lot.Level
	RoastDate        time.Time
	AvailableWeightG float64
}

// BatchFilter narrows production listings.
type BatchFilter struct {
	Kind      Kind
	ProductID int64
	Limit     int
}
