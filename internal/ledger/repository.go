package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cafetiko/roastledger/internal/lot"
	"github.com/cafetiko/roastledger/internal/platform/db"
	"github.com/cafetiko/roastledger/internal/shared"
)

// ErrBatchNotFound indicates a missing roast batch row. The service maps it
// to shared.NotFoundError on user-facing paths; inside create-or-merge it
// just means "insert a new batch".
var ErrBatchNotFound = errors.New("ledger: roast batch not found")

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, id int64) (RoastBatch, error)
	GetBatchByLot(ctx context.Context, lotNumber string) (RoastBatch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]RoastBatch, error)
	ProductSummaries(ctx context.Context) ([]ProductSummary, error)
	GetProductSummary(ctx context.Context, productID int64) (ProductSummary, error)
	Adjustments(ctx context.Context, productID int64, limit int) ([]Adjustment, error)
}

// TxRepository exposes the transactional operations used by the service.
// Every *ForUpdate method takes a row lock so concurrent mutations of the
// same product serialise instead of interleaving.
type TxRepository interface {
	FindMergeTargetForUpdate(ctx context.Context, productID int64, level lot.Level, date time.Time) (RoastBatch, error)
	GetBatchForUpdate(ctx context.Context, id int64) (RoastBatch, error)
	ListProductBatchesForUpdate(ctx context.Context, productID int64, order BatchOrder) ([]RoastBatch, error)
	InsertBatch(ctx context.Context, b RoastBatch) (int64, error)
	AddBatchWeights(ctx context.Context, id int64, greenG, roastedG, availableG float64) error
	SetBatchAvailable(ctx context.Context, id int64, availableG float64) error
	ListLotsByPrefix(ctx context.Context, prefix string) ([]string, error)
	CountLotsByPrefix(ctx context.Context, prefix string) (int, error)
	ProductAvailable(ctx context.Context, productID int64) (float64, error)
	ProductLevel(ctx context.Context, productID int64) (lot.Level, error)
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
}

// Repository persists ledger data in PostgreSQL.
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
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const batchColumns = `id, lot_number, product_id, roast_date, roast_level, day_sequence,
green_weight_g, roasted_weight_g, available_weight_g, COALESCE(weight_loss_percent, 0),
roasttime_uid, preheat_temp, charge_temp, first_crack_time, first_crack_temp,
drop_temp, total_roast_time, ambient_temp, humidity, COALESCE(notes, ''), created_at`

func scanBatch(row pgx.Row) (RoastBatch, error) {
	var (
		b        RoastBatch
		uid      *string
		preheat  *float64
		charge   *float64
		fcTime   *int
		fcTemp   *float64
		dropTemp *float64
		total    *int
		ambient  *float64
		humidity *float64
	)
	err := row.Scan(&b.ID, &b.Lot, &b.ProductID, &b.RoastDate, &b.Level, &b.DaySequence,
		&b.GreenWeightG, &b.RoastedWeightG, &b.AvailableWeightG, &b.WeightLossPercent,
		&uid, &preheat, &charge, &fcTime, &fcTemp,
		&dropTemp, &total, &ambient, &humidity, &b.Notes, &b.CreatedAt)
	if err != nil {
		return RoastBatch{}, err
	}
	if uid != nil && *uid != "" {
		t := &RoastTelemetry{RoastTimeUID: *uid}
		if preheat != nil {
			t.PreheatTempC = *preheat
		}
		if charge != nil {
			t.ChargeTempC = *charge
		}
		if fcTime != nil {
			t.FirstCrackSeconds = *fcTime
		}
		if fcTemp != nil {
			t.FirstCrackTempC = *fcTemp
		}
		if dropTemp != nil {
			t.DropTempC = *dropTemp
		}
		if total != nil {
			t.TotalRoastSeconds = *total
		}
		if ambient != nil {
			t.AmbientTempC = *ambient
		}
		if humidity != nil {
			t.Humidity = *humidity
		}
		b.Telemetry = t
	}
	return b, nil
}

func (r *Repository) GetBatch(ctx context.Context, id int64) (RoastBatch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM roast_batches WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return RoastBatch{}, &shared.NotFoundError{Entity: "roast batch", Key: fmt.Sprint(id)}
	}
	return b, err
}

func (r *Repository) GetBatchByLot(ctx context.Context, lotNumber string) (RoastBatch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM roast_batches WHERE lot_number=$1`, lotNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return RoastBatch{}, &shared.NotFoundError{Entity: "roast batch", Key: lotNumber}
	}
	return b, err
}

func (r *Repository) ListBatches(ctx context.Context, filter BatchFilter) ([]RoastBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM roast_batches WHERE ($1 = 0 OR product_id = $1)`
	if filter.OnlyAvailable {
		query += ` AND available_weight_g > 0`
	}
	dir := "DESC"
	if filter.Order == OldestFirst {
		dir = "ASC"
	}
	query += ` ORDER BY roast_date ` + dir + `, id ` + dir + ` LIMIT 200`
	rows, err := r.pool.Query(ctx, query, filter.ProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []RoastBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *Repository) ProductSummaries(ctx context.Context) ([]ProductSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT cp.id, cp.name, cp.roast_level,
COALESCE(SUM(rb.available_weight_g), 0), COUNT(rb.id) FILTER (WHERE rb.available_weight_g > 0)
FROM coffee_products cp
LEFT JOIN roast_batches rb ON rb.product_id = cp.id
WHERE cp.active
GROUP BY cp.id
ORDER BY COALESCE(SUM(rb.available_weight_g), 0) ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var summaries []ProductSummary
	for rows.Next() {
		var s ProductSummary
		if err := rows.Scan(&s.ProductID, &s.ProductName, &s.Level, &s.TotalAvailableG, &s.BatchCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *Repository) GetProductSummary(ctx context.Context, productID int64) (ProductSummary, error) {
	var s ProductSummary
	err := r.pool.QueryRow(ctx, `SELECT cp.id, cp.name, cp.roast_level,
COALESCE(SUM(rb.available_weight_g), 0), COUNT(rb.id) FILTER (WHERE rb.available_weight_g > 0)
FROM coffee_products cp
LEFT JOIN roast_batches rb ON rb.product_id = cp.id
WHERE cp.id = $1
GROUP BY cp.id`, productID).
		Scan(&s.ProductID, &s.ProductName, &s.Level, &s.TotalAvailableG, &s.BatchCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductSummary{}, &shared.NotFoundError{Entity: "product", Key: fmt.Sprint(productID)}
	}
	return s, err
}

func (r *Repository) Adjustments(ctx context.Context, productID int64, limit int) ([]Adjustment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, batch_id, adjustment_type, amount_g,
previous_total_g, new_total_g, comment, created_at
FROM inventory_adjustments
WHERE ($1 = 0 OR product_id = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var adjustments []Adjustment
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.ProductID, &a.BatchID, &a.Type, &a.AmountG,
			&a.PreviousTotalG, &a.NewTotalG, &a.Comment, &a.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

func (r *txRepository) FindMergeTargetForUpdate(ctx context.Context, productID int64, level lot.Level, date time.Time) (RoastBatch, error) {
	b, err := scanBatch(r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM roast_batches
WHERE product_id=$1 AND roast_level=$2 AND roast_date=$3
ORDER BY id ASC LIMIT 1 FOR UPDATE`, productID, string(level), date))
	if errors.Is(err, pgx.ErrNoRows) {
		return RoastBatch{}, ErrBatchNotFound
	}
	return b, err
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, id int64) (RoastBatch, error) {
	b, err := scanBatch(r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM roast_batches WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return RoastBatch{}, ErrBatchNotFound
	}
	return b, err
}

func (r *txRepository) ListProductBatchesForUpdate(ctx context.Context, productID int64, order BatchOrder) ([]RoastBatch, error) {
	dir := "ASC"
	if order == NewestFirst {
		dir = "DESC"
	}
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM roast_batches
WHERE product_id=$1 ORDER BY roast_date `+dir+`, id `+dir+` FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []RoastBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *txRepository) InsertBatch(ctx context.Context, b RoastBatch) (int64, error) {
	t := b.Telemetry
	if t == nil {
		t = &RoastTelemetry{}
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO roast_batches (
lot_number, product_id, roast_date, roast_level, day_sequence,
green_weight_g, roasted_weight_g, available_weight_g, weight_loss_percent,
roasttime_uid, preheat_temp, charge_temp, first_crack_time, first_crack_temp,
drop_temp, total_roast_time, ambient_temp, humidity, notes, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,$12,$13,$14,$15,$16,$17,$18,$19,NOW())
RETURNING id`,
		b.Lot, b.ProductID, b.RoastDate, string(b.Level), b.DaySequence,
		b.GreenWeightG, b.RoastedWeightG, b.AvailableWeightG, b.WeightLossPercent,
		t.RoastTimeUID, t.PreheatTempC, t.ChargeTempC, t.FirstCrackSeconds, t.FirstCrackTempC,
		t.DropTempC, t.TotalRoastSeconds, t.AmbientTempC, t.Humidity, b.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, shared.Validationf("lot_number", "lot %s already exists", b.Lot)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) AddBatchWeights(ctx context.Context, id int64, greenG, roastedG, availableG float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE roast_batches
SET green_weight_g = green_weight_g + $2,
    roasted_weight_g = roasted_weight_g + $3,
    available_weight_g = available_weight_g + $4
WHERE id = $1`, id, greenG, roastedG, availableG)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// SetBatchAvailable writes a new available weight. Manual credits may push
// a batch above its recorded roasted weight; roasted_weight_g is raised
// alongside so available <= roasted holds for every batch at all times.
func (r *txRepository) SetBatchAvailable(ctx context.Context, id int64, availableG float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE roast_batches
SET available_weight_g = $2,
    roasted_weight_g = GREATEST(roasted_weight_g, $2)
WHERE id = $1`, id, availableG)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *txRepository) ListLotsByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT lot_number FROM roast_batches WHERE lot_number LIKE $1 || '%'`, prefix)
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

func (r *txRepository) CountLotsByPrefix(ctx context.Context, prefix string) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM roast_batches WHERE lot_number LIKE $1 || '%'`, prefix).Scan(&n)
	return n, err
}

func (r *txRepository) ProductAvailable(ctx context.Context, productID int64) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(available_weight_g), 0) FROM roast_batches WHERE product_id=$1`, productID).Scan(&total)
	return total, err
}

func (r *txRepository) ProductLevel(ctx context.Context, productID int64) (lot.Level, error) {
	var level string
	err := r.tx.QueryRow(ctx, `SELECT roast_level FROM coffee_products WHERE id=$1`, productID).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &shared.NotFoundError{Entity: "product", Key: fmt.Sprint(productID)}
	}
	if err != nil {
		return "", err
	}
	return lot.ParseLevel(level)
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_adjustments (
product_id, batch_id, adjustment_type, amount_g, previous_total_g, new_total_g, comment, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		adj.ProductID, adj.BatchID, string(adj.Type), adj.AmountG,
		adj.PreviousTotalG, adj.NewTotalG, adj.Comment).Scan(&id)
	return id, err
}
