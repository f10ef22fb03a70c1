package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cafetiko/roastledger/internal/lot"
	"github.com/cafetiko/roastledger/internal/shared"
)

// AuditPort abstracts operator-level audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort abstracts the domain counters.
type MetricsPort interface {
	RoastRecorded(merged bool)
	AdjustmentRecorded(kind string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThresholdG float64
}

// Service coordinates roast batch stock and manual adjustments.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	cache     *SummaryCache
	metrics   MetricsPort
	logger    *slog.Logger
	lowStockG float64
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache *SummaryCache, metrics MetricsPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	threshold := cfg.LowStockThresholdG
	if threshold <= 0 {
		threshold = LowStockThresholdG
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, metrics: metrics, logger: logger, lowStockG: threshold, now: time.Now}
}

// CreateRoastInput describes a new roast entry.
type CreateRoastInput struct {
	ProductID      int64
	Level          string
	RoastDate      time.Time
	GreenWeightG   float64
	RoastedWeightG float64
	CustomSequence *int
	Telemetry      *RoastTelemetry
	Notes          string
}

// CreateOrMergeRoast records a roast. When the same product was already
// roasted at the same level on the same day the weights are merged into
// that batch and its LOT is returned unchanged; otherwise a new batch is
// inserted under the next free same-day sequence (or the caller-supplied
// one). Returns the batch and whether it was a merge.
func (s *Service) CreateOrMergeRoast(ctx context.Context, in CreateRoastInput) (RoastBatch, bool, error) {
	level, err := lot.ParseLevel(in.Level)
	if err != nil {
		return RoastBatch{}, false, shared.Validationf("roast_level", "must be V, K or S, got %q", in.Level)
	}
	if in.ProductID <= 0 {
		return RoastBatch{}, false, shared.Validationf("product_id", "is required")
	}
	if in.RoastDate.IsZero() {
		return RoastBatch{}, false, shared.Validationf("roast_date", "is required")
	}
	if in.RoastedWeightG <= 0 {
		return RoastBatch{}, false, shared.Validationf("roasted_weight_g", "must be positive")
	}
	if in.GreenWeightG < 0 {
		return RoastBatch{}, false, shared.Validationf("green_weight_g", "must not be negative")
	}
	if in.CustomSequence != nil && *in.CustomSequence < 1 {
		return RoastBatch{}, false, shared.Validationf("custom_sequence", "must be >= 1")
	}

	day := dateOnly(in.RoastDate)
	var (
		batch  RoastBatch
		merged bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		target, err := tx.FindMergeTargetForUpdate(ctx, in.ProductID, level, day)
		switch {
		case err == nil:
			if err := tx.AddBatchWeights(ctx, target.ID, in.GreenWeightG, in.RoastedWeightG, in.RoastedWeightG); err != nil {
				return err
			}
			target.GreenWeightG += in.GreenWeightG
			target.RoastedWeightG += in.RoastedWeightG
			target.AvailableWeightG += in.RoastedWeightG
			batch = target
			merged = true
			return nil
		case !errors.Is(err, ErrBatchNotFound):
			return err
		}

		seq := 0
		if in.CustomSequence != nil {
			seq = *in.CustomSequence
		} else {
			prefix := fmt.Sprintf("%s/%s/", level, lot.FormatDatePart(day))
			lots, err := tx.ListLotsByPrefix(ctx, prefix)
			if err != nil {
				return err
			}
			seq = NextSequence(lots)
		}

		loss := 0.0
		if in.GreenWeightG > 0 {
			loss = (in.GreenWeightG - in.RoastedWeightG) / in.GreenWeightG * 100
		}
		b := RoastBatch{
			Lot:               lot.EncodeRoast(level, day, seq),
			ProductID:         in.ProductID,
			RoastDate:         day,
			Level:             level,
			DaySequence:       seq,
			GreenWeightG:      in.GreenWeightG,
			RoastedWeightG:    in.RoastedWeightG,
			AvailableWeightG:  in.RoastedWeightG,
			WeightLossPercent: loss,
			Telemetry:         in.Telemetry,
			Notes:             in.Notes,
		}
		id, err := tx.InsertBatch(ctx, b)
		if err != nil {
			return err
		}
		b.ID = id
		batch = b
		return nil
	})
	if err != nil {
		return RoastBatch{}, false, s.wrapConcurrency("ledger.create_roast", err)
	}

	s.recordAudit(ctx, "ledger:roast", "roast_batch", batch.Lot, map[string]any{
		"product_id": in.ProductID,
		"green_g":    in.GreenWeightG,
		"roasted_g":  in.RoastedWeightG,
		"merged":     merged,
	})
	s.invalidateSummary(ctx, in.ProductID)
	if s.metrics != nil {
		s.metrics.RoastRecorded(merged)
	}
	return batch, merged, nil
}

// AdjustInput describes a manual correction.
type AdjustInput struct {
	ProductID int64
	BatchID   *int64
	Type      string
	AmountG   float64
	Comment   string
}

// AdjustResult reports the snapshotted totals of one adjustment.
type AdjustResult struct {
	AdjustmentID   int64   `json:"adjustment_id"`
	PreviousTotalG float64 `json:"previous_total_g"`
	NewTotalG      float64 `json:"new_total_g"`
}

// Adjust applies a manual correction and appends exactly one audit row.
// With a batch id the change is batch-scoped (subtract clamps at zero).
// Without one: add credits the most recent batch, subtract debits oldest
// batches first (FIFO), set/correction move the product total to the target
// by adjusting the newest batch. A synthetic ADJ batch is created when a
// credit has no batch to land on.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (AdjustResult, error) {
	typ, err := ParseAdjustmentType(in.Type)
	if err != nil {
		return AdjustResult{}, err
	}
	comment := strings.TrimSpace(in.Comment)
	if comment == "" {
		return AdjustResult{}, shared.Validationf("comment", "is required for the audit trail")
	}
	if in.ProductID <= 0 {
		return AdjustResult{}, shared.Validationf("product_id", "is required")
	}
	if in.AmountG < 0 {
		return AdjustResult{}, shared.Validationf("amount_g", "must not be negative")
	}
	if (typ == AdjustmentAdd || typ == AdjustmentSubtract) && in.AmountG == 0 {
		return AdjustResult{}, shared.Validationf("amount_g", "must be positive")
	}

	var res AdjustResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.BatchID != nil {
			return s.adjustBatch(ctx, tx, in, typ, comment, &res)
		}
		return s.adjustProduct(ctx, tx, in, typ, comment, &res)
	})
	if err != nil {
		return AdjustResult{}, s.wrapConcurrency("ledger.adjust", err)
	}

	s.recordAudit(ctx, "ledger:adjust:"+string(typ), "product", fmt.Sprint(in.ProductID), map[string]any{
		"amount_g":   in.AmountG,
		"previous_g": res.PreviousTotalG,
		"new_g":      res.NewTotalG,
		"comment":    comment,
	})
	s.invalidateSummary(ctx, in.ProductID)
	if s.metrics != nil {
		s.metrics.AdjustmentRecorded(string(typ))
	}
	return res, nil
}

func (s *Service) adjustBatch(ctx context.Context, tx TxRepository, in AdjustInput, typ AdjustmentType, comment string, res *AdjustResult) error {
	b, err := tx.GetBatchForUpdate(ctx, *in.BatchID)
	if errors.Is(err, ErrBatchNotFound) {
		return &shared.NotFoundError{Entity: "roast batch", Key: fmt.Sprint(*in.BatchID)}
	}
	if err != nil {
		return err
	}
	if b.ProductID != in.ProductID {
		return &shared.NotFoundError{Entity: "roast batch", Key: fmt.Sprintf("%d for product %d", *in.BatchID, in.ProductID)}
	}

	prev := b.AvailableWeightG
	var next float64
	switch typ {
	case AdjustmentAdd:
		next = prev + in.AmountG
	case AdjustmentSubtract:
		next = math.Max(0, prev-in.AmountG)
	case AdjustmentSet, AdjustmentCorrection:
		next = in.AmountG
	}
	if err := tx.SetBatchAvailable(ctx, b.ID, next); err != nil {
		return err
	}
	res.PreviousTotalG = prev
	res.NewTotalG = next
	return s.appendAdjustment(ctx, tx, in, typ, comment, res)
}

func (s *Service) adjustProduct(ctx context.Context, tx TxRepository, in AdjustInput, typ AdjustmentType, comment string, res *AdjustResult) error {
	prev, err := tx.ProductAvailable(ctx, in.ProductID)
	if err != nil {
		return err
	}

	switch typ {
	case AdjustmentAdd:
		err = s.creditNewest(ctx, tx, in.ProductID, in.AmountG, comment)
	case AdjustmentSubtract:
		err = s.debitOldest(ctx, tx, in.ProductID, in.AmountG)
	case AdjustmentSet, AdjustmentCorrection:
		err = s.applyTarget(ctx, tx, in.ProductID, in.AmountG, prev, comment)
	}
	if err != nil {
		return err
	}

	next, err := tx.ProductAvailable(ctx, in.ProductID)
	if err != nil {
		return err
	}
	res.PreviousTotalG = prev
	res.NewTotalG = next
	return s.appendAdjustment(ctx, tx, in, typ, comment, res)
}

func (s *Service) appendAdjustment(ctx context.Context, tx TxRepository, in AdjustInput, typ AdjustmentType, comment string, res *AdjustResult) error {
	id, err := tx.InsertAdjustment(ctx, Adjustment{
		ProductID:      in.ProductID,
		BatchID:        in.BatchID,
		Type:           typ,
		AmountG:        in.AmountG,
		PreviousTotalG: res.PreviousTotalG,
		NewTotalG:      res.NewTotalG,
		Comment:        comment,
	})
	if err != nil {
		return err
	}
	res.AdjustmentID = id
	return nil
}

func (s *Service) creditNewest(ctx context.Context, tx TxRepository, productID int64, amountG float64, comment string) error {
	batches, err := tx.ListProductBatchesForUpdate(ctx, productID, NewestFirst)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		_, err := s.synthesizeAdjustmentBatch(ctx, tx, productID, amountG, comment)
		return err
	}
	newest := batches[0]
	return tx.SetBatchAvailable(ctx, newest.ID, newest.AvailableWeightG+amountG)
}

// debitOldest is true FIFO: takes min(remaining, available) per batch
// walking roast_date ascending, never driving a single batch negative.
// Any amount beyond the product's total stock is simply exhausted.
func (s *Service) debitOldest(ctx context.Context, tx TxRepository, productID int64, amountG float64) error {
	batches, err := tx.ListProductBatchesForUpdate(ctx, productID, OldestFirst)
	if err != nil {
		return err
	}
	remaining := amountG
	for _, b := range batches {
		if remaining <= 0 {
			break
		}
		if b.AvailableWeightG <= 0 {
			continue
		}
		take := math.Min(remaining, b.AvailableWeightG)
		if err := tx.SetBatchAvailable(ctx, b.ID, b.AvailableWeightG-take); err != nil {
			return err
		}
		remaining -= take
	}
	return nil
}

// applyTarget moves the product total to targetG by offsetting the newest
// batch. With no batches and a non-positive target there is nothing to
// move, so the batch side is a no-op (the audit row is still written).
func (s *Service) applyTarget(ctx context.Context, tx TxRepository, productID int64, targetG, prevTotalG float64, comment string) error {
	batches, err := tx.ListProductBatchesForUpdate(ctx, productID, NewestFirst)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		if targetG <= 0 {
			return nil
		}
		_, err := s.synthesizeAdjustmentBatch(ctx, tx, productID, targetG, comment)
		return err
	}
	newest := batches[0]
	delta := targetG - prevTotalG
	next := math.Max(0, newest.AvailableWeightG+delta)
	return tx.SetBatchAvailable(ctx, newest.ID, next)
}

// synthesizeAdjustmentBatch creates a stand-in batch so a manual credit has
// somewhere to live. Its LOT uses the ADJ- prefix namespace so it can never
// collide with a real roast LOT.
func (s *Service) synthesizeAdjustmentBatch(ctx context.Context, tx TxRepository, productID int64, weightG float64, comment string) (int64, error) {
	level, err := tx.ProductLevel(ctx, productID)
	if err != nil {
		return 0, err
	}
	today := dateOnly(s.now())
	prefix := "ADJ-" + today.Format("060102")
	n, err := tx.CountLotsByPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return tx.InsertBatch(ctx, RoastBatch{
		Lot:              fmt.Sprintf("%s-%d", prefix, n+1),
		ProductID:        productID,
		RoastDate:        today,
		Level:            level,
		DaySequence:      1,
		GreenWeightG:     weightG,
		RoastedWeightG:   weightG,
		AvailableWeightG: weightG,
		Notes:            "Manual inventory adjustment: " + comment,
	})
}

// GetBatch returns one batch by id.
func (s *Service) GetBatch(ctx context.Context, id int64) (RoastBatch, error) {
	return s.repo.GetBatch(ctx, id)
}

// GetBatchByLot returns one batch by its LOT string.
func (s *Service) GetBatchByLot(ctx context.Context, lotNumber string) (RoastBatch, error) {
	return s.repo.GetBatchByLot(ctx, lotNumber)
}

// ListBatches lists batches, newest roast first.
func (s *Service) ListBatches(ctx context.Context, filter BatchFilter) ([]RoastBatch, error) {
	return s.repo.ListBatches(ctx, filter)
}

// DecodeLot exposes the codec to the request layer.
func (s *Service) DecodeLot(lotNumber string) (lot.Components, error) {
	return lot.Decode(lotNumber)
}

// ProductSummary returns the availability aggregate for one product,
// served from the summary cache when possible.
func (s *Service) ProductSummary(ctx context.Context, productID int64) (ProductSummary, error) {
	return s.cache.Get(ctx, productID, func(ctx context.Context) (ProductSummary, error) {
		return s.repo.GetProductSummary(ctx, productID)
	})
}

// LowStock returns active products whose total availability is below the
// configured threshold, most depleted first.
func (s *Service) LowStock(ctx context.Context) ([]ProductSummary, error) {
	summaries, err := s.repo.ProductSummaries(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]ProductSummary, 0, len(summaries))
	for _, sum := range summaries {
		if sum.TotalAvailableG < s.lowStockG {
			low = append(low, sum)
		}
	}
	return low, nil
}

// History lists adjustment rows for a product, newest first.
func (s *Service) History(ctx context.Context, productID int64, limit int) ([]Adjustment, error) {
	return s.repo.Adjustments(ctx, productID, limit)
}

func (s *Service) recordAudit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["event_id"] = uuid.NewString()
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidateSummary(ctx context.Context, productID int64) {
	if err := s.cache.Invalidate(ctx, productID); err != nil {
		s.logger.Warn("summary cache invalidation failed", slog.Int64("product_id", productID), slog.Any("error", err))
	}
}

func (s *Service) wrapConcurrency(op string, err error) error {
	if shared.IsSerializationFailure(err) {
		return &shared.ConcurrencyError{Op: op, Err: err}
	}
	return err
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
