package production

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cafetiko/roastledger/internal/platform/db"
	"github.com/cafetiko/roastledger/internal/shared"
)

// ErrRoastBatchNotFound indicates a missing roast batch row.
var ErrRoastBatchNotFound = errors.New("production: roast batch not found")

// ErrStockRace indicates the guarded decrement found less stock than the
// locked read promised. Only reachable if locking is bypassed.
var ErrStockRace = errors.New("production: stock changed under decrement")

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, id int64) (Batch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error)
	Sources(ctx context.Context, batchID int64) ([]Source, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetRoastBatchForUpdate(ctx context.Context, id int64) (SourceBatch, error)
	DecrementRoastAvailable(ctx context.Context, roastBatchID int64, weightG float64) error
	ListProductionLotsByPrefix(ctx context.Context, prefix string) ([]string, error)
	InsertBatch(ctx context.Context, b Batch) (int64, error)
	InsertSource(ctx context.Context, s Source) (int64, error)
}

// Repository persists production data in PostgreSQL.
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
		return errors.New("production repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const batchColumns = `id, lot_number, kind, COALESCE(product_id, 0), quantity, unit_weight_g, total_weight_g, produced_on, notes, created_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.Lot, &b.Kind, &b.ProductID, &b.Quantity,
		&b.UnitWeightG, &b.TotalWeightG, &b.ProducedOn, &b.Notes, &b.CreatedAt)
	return b, err
}

func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM production_batches WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, &shared.NotFoundError{Entity: "production batch", Key: fmt.Sprint(id)}
	}
	return b, err
}

func (r *Repository) ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM production_batches
WHERE ($1 = '' OR kind = $1) AND ($2 = 0 OR product_id = $2)
ORDER BY produced_on DESC, id DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query += fmt.Sprintf(` LIMIT %d`, limit)
	rows, err := r.pool.Query(ctx, query, string(filter.Kind), filter.ProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *Repository) Sources(ctx context.Context, batchID int64) ([]Source, error) {
	rows, err := r.pool.Query(ctx, `SELECT ps.id, ps.production_batch_id, ps.roast_batch_id, rb.lot_number, ps.weight_g
FROM production_sources ps
JOIN roast_batches rb ON rb.id = ps.roast_batch_id
WHERE ps.production_batch_id = $1
ORDER BY ps.id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.ProductionBatchID, &s.RoastBatchID, &s.RoastLot, &s.WeightG); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *txRepository) GetRoastBatchForUpdate(ctx context.Context, id int64) (SourceBatch, error) {
	var b SourceBatch
	err := r.tx.QueryRow(ctx, `SELECT id, lot_number, product_id, roast_level, roast_date, available_weight_g
FROM roast_batches WHERE id=$1 FOR UPDATE`, id).
		Scan(&b.ID, &b.Lot, &b.ProductID, &b.Level, &b.RoastDate, &b.AvailableWeightG)
	if errors.Is(err, pgx.ErrNoRows) {
		return SourceBatch{}, ErrRoastBatchNotFound
	}
	return b, err
}

// DecrementRoastAvailable subtracts weightG with an availability guard in
// the WHERE clause so available_weight_g can never go negative.
func (r *txRepository) DecrementRoastAvailable(ctx context.Context, roastBatchID int64, weightG float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE roast_batches
SET available_weight_g = available_weight_g - $2
WHERE id = $1 AND available_weight_g >= $2`, roastBatchID, weightG)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockRace
	}
	return nil
}

func (r *txRepository) ListProductionLotsByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT lot_number FROM production_batches WHERE lot_number LIKE $1 || '%'`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

func (r *txRepository) InsertBatch(ctx context.Context, b Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_batches (
lot_number, kind, product_id, quantity, unit_weight_g, total_weight_g, produced_on, notes, created_at
) VALUES ($1,$2,NULLIF($3,0),$4,$5,$6,$7,$8,NOW())
RETURNING id`,
		b.Lot, string(b.Kind), b.ProductID, b.Quantity, b.UnitWeightG,
		b.TotalWeightG, b.ProducedOn, b.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, shared.Validationf("lot_number", "production lot %s already exists", b.Lot)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) InsertSource(ctx context.Context, s Source) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_sources (production_batch_id, roast_batch_id, weight_g)
VALUES ($1,$2,$3) RETURNING id`, s.ProductionBatchID, s.RoastBatchID, s.WeightG).Scan(&id)
	return id, err
}
