// Package orders links webshop order items to the roast batches that
// fulfil them. Each order item has numbered slots (an item of quantity 3
// has slots 1..3) and every slot maps to exactly one roast batch.
// Assigning a slot consumes stock; releasing it puts the stock back.
package orders

import "time"

// DefaultUnitWeightG is the assumed package weight when the order item
// does not carry one.
const DefaultUnitWeightG = 250

// Assignment binds one order item slot to stock: either a roast batch
// (loose weight) or a production batch (packaged units). Exactly one of
// RoastBatchID and ProductionBatchID is set.
type Assignment struct {
	ID                int64     `json:"id"`
	WCOrderID         int64     `json:"wc_order_id"`
	WCOrderItemID     int64     `json:"wc_order_item_id"`
	SlotNumber        int       `json:"slot_number"`
	RoastBatchID      int64     `json:"roast_batch_id,omitempty"`
	RoastLot          string    `json:"roast_lot,omitempty"`
	ProductionBatchID int64     `json:"production_batch_id,omitempty"`
	ProductionLot     string    `json:"production_lot,omitempty"`
	Units             int       `json:"units,omitempty"`
	WeightG           float64   `json:"weight_g,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// SlotKey identifies one slot of one order item.
type SlotKey struct {
	WCOrderID     int64
	WCOrderItemID int64
	SlotNumber    int
}

// ProductRef is the catalog view used for name matching.
type ProductRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Level string `json:"roast_level"`
}
