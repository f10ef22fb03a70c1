package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cafetiko/roastledger/internal/platform/db"
	"github.com/cafetiko/roastledger/internal/shared"
)

// ErrAssignmentNotFound indicates a missing assignment row.
var ErrAssignmentNotFound = errors.New("orders: assignment not found")

// ErrRoastBatchNotFound indicates a missing roast batch row.
var ErrRoastBatchNotFound = errors.New("orders: roast batch not found")

// ErrProductionBatchNotFound indicates a missing production batch row.
var ErrProductionBatchNotFound = errors.New("orders: production batch not found")

// ErrSlotTaken indicates a concurrent insert won the unique constraint on
// (wc_order_id, wc_order_item_id, slot_number).
var ErrSlotTaken = errors.New("orders: slot already assigned")

// StockBatch is the roast-batch view orders need.
type StockBatch struct {
	ID               int64
	Lot              string
	ProductID        int64
	AvailableWeightG float64
}

// UnitBatch is the production-batch view orders need: packaged units
// remaining for fulfillment.
type UnitBatch struct {
	ID        int64
	Lot       string
	ProductID int64
	Quantity  int
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListOrderAssignments(ctx context.Context, wcOrderID int64) ([]Assignment, error)
	ListProducts(ctx context.Context) ([]ProductRef, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetAssignmentForUpdate(ctx context.Context, key SlotKey) (Assignment, error)
	InsertAssignment(ctx context.Context, a Assignment) (int64, error)
	DeleteAssignment(ctx context.Context, id int64) error
	GetRoastBatchForUpdate(ctx context.Context, id int64) (StockBatch, error)
	DecrementRoastAvailable(ctx context.Context, roastBatchID int64, weightG float64) error
	RestoreRoastAvailable(ctx context.Context, roastBatchID int64, weightG float64) error
	GetProductionBatchForUpdate(ctx context.Context, id int64) (UnitBatch, error)
	DecrementProductionQuantity(ctx context.Context, productionBatchID int64, units int) error
	RestoreProductionQuantity(ctx context.Context, productionBatchID int64, units int) error
}

// Repository persists order assignments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const assignmentColumns = `ola.id, ola.wc_order_id, ola.wc_order_item_id, ola.slot_number,
COALESCE(ola.roast_batch_id, 0), COALESCE(rb.lot_number, ''),
COALESCE(ola.production_batch_id, 0), COALESCE(pb.lot_number, ''),
ola.units, ola.weight_g, ola.created_at`

const assignmentJoins = `FROM order_lot_assignments ola
LEFT JOIN roast_batches rb ON rb.id = ola.roast_batch_id
LEFT JOIN production_batches pb ON pb.id = ola.production_batch_id`

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.WCOrderID, &a.WCOrderItemID, &a.SlotNumber,
		&a.RoastBatchID, &a.RoastLot, &a.ProductionBatchID, &a.ProductionLot,
		&a.Units, &a.WeightG, &a.CreatedAt)
	return a, err
}

func (r *Repository) ListOrderAssignments(ctx context.Context, wcOrderID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+`
`+assignmentJoins+`
WHERE ola.wc_order_id = $1
ORDER BY ola.wc_order_item_id, ola.slot_number`, wcOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (r *Repository) ListProducts(ctx context.Context) ([]ProductRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, roast_level FROM coffee_products WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []ProductRef
	for rows.Next() {
		var p ProductRef
		if err := rows.Scan(&p.ID, &p.Name, &p.Level); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *txRepository) GetAssignmentForUpdate(ctx context.Context, key SlotKey) (Assignment, error) {
	a, err := scanAssignment(r.tx.QueryRow(ctx, `SELECT `+assignmentColumns+`
`+assignmentJoins+`
WHERE ola.wc_order_id=$1 AND ola.wc_order_item_id=$2 AND ola.slot_number=$3
FOR UPDATE OF ola`, key.WCOrderID, key.WCOrderItemID, key.SlotNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, ErrAssignmentNotFound
	}
	return a, err
}

func (r *txRepository) InsertAssignment(ctx context.Context, a Assignment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_lot_assignments
(wc_order_id, wc_order_item_id, slot_number, roast_batch_id, production_batch_id, units, weight_g, created_at)
VALUES ($1,$2,$3,NULLIF($4,0),NULLIF($5,0),$6,$7,NOW()) RETURNING id`,
		a.WCOrderID, a.WCOrderItemID, a.SlotNumber, a.RoastBatchID, a.ProductionBatchID, a.Units, a.WeightG).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrSlotTaken
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) DeleteAssignment(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM order_lot_assignments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (r *txRepository) GetRoastBatchForUpdate(ctx context.Context, id int64) (StockBatch, error) {
	var b StockBatch
	err := r.tx.QueryRow(ctx, `SELECT id, lot_number, product_id, available_weight_g
FROM roast_batches WHERE id=$1 FOR UPDATE`, id).
		Scan(&b.ID, &b.Lot, &b.ProductID, &b.AvailableWeightG)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockBatch{}, ErrRoastBatchNotFound
	}
	return b, err
}

func (r *txRepository) DecrementRoastAvailable(ctx context.Context, roastBatchID int64, weightG float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE roast_batches
SET available_weight_g = available_weight_g - $2
WHERE id = $1 AND available_weight_g >= $2`, roastBatchID, weightG)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.InsufficientStockError{RequestedG: weightG}
	}
	return nil
}

func (r *txRepository) RestoreRoastAvailable(ctx context.Context, roastBatchID int64, weightG float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE roast_batches
SET available_weight_g = available_weight_g + $2,
    roasted_weight_g = GREATEST(roasted_weight_g, available_weight_g + $2)
WHERE id = $1`, roastBatchID, weightG)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoastBatchNotFound
	}
	return nil
}

func (r *txRepository) GetProductionBatchForUpdate(ctx context.Context, id int64) (UnitBatch, error) {
	var b UnitBatch
	err := r.tx.QueryRow(ctx, `SELECT id, lot_number, COALESCE(product_id, 0), quantity
FROM production_batches WHERE id=$1 FOR UPDATE`, id).
		Scan(&b.ID, &b.Lot, &b.ProductID, &b.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return UnitBatch{}, ErrProductionBatchNotFound
	}
	return b, err
}

// DecrementProductionQuantity takes units off a production batch with a
// guard in the WHERE clause so quantity can never go below zero.
func (r *txRepository) DecrementProductionQuantity(ctx context.Context, productionBatchID int64, units int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_batches
SET quantity = quantity - $2
WHERE id = $1 AND quantity >= $2`, productionBatchID, units)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.InsufficientStockError{RequestedG: float64(units)}
	}
	return nil
}

func (r *txRepository) RestoreProductionQuantity(ctx context.Context, productionBatchID int64, units int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_batches
SET quantity = quantity + $2
WHERE id = $1`, productionBatchID, units)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductionBatchNotFound
	}
	return nil
}
