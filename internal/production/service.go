package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cafetiko/roastledger/internal/ledger"
	"github.com/cafetiko/roastledger/internal/lot"
	"github.com/cafetiko/roastledger/internal/shared"
)

// AuditPort abstracts operator-level audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort lets clients retry a submission without double-consuming
// stock. Optional: a nil port skips the check.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// InvalidatorPort drops stale availability aggregates after stock moves.
type InvalidatorPort interface {
	Invalidate(ctx context.Context, productID int64) error
}

// MetricsPort abstracts the domain counters.
type MetricsPort interface {
	ProductionRecorded(kind string)
}

// Service coordinates production runs against roast stock.
type Service struct {
	repo    RepositoryPort
	idem    IdempotencyPort
	audit   AuditPort
	cache   InvalidatorPort
	metrics MetricsPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, idem IdempotencyPort, audit AuditPort, cache InvalidatorPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, idem: idem, audit: audit, cache: cache, metrics: metrics, logger: logger}
}

// RunInput describes a single-source production run.
type RunInput struct {
	Kind         string
	RoastBatchID int64
	Units        int
	WeightG      float64
	ProducedOn   time.Time
	Notes        string
	Code         string
}

// RecordRun consumes stock from one roast batch and records a production
// batch with its source link, all in one transaction. Packaged kinds
// (units x fixed gram size) keep the roast LOT on the output; drip runs
// mint a TG/ LOT and cold brew a CB/ LOT of their own. When the batch
// holds less than the run needs, nothing is written and
// InsufficientStockError reports both numbers.
func (s *Service) RecordRun(ctx context.Context, in RunInput) (Batch, error) {
	kind, err := ParseKind(in.Kind)
	if err != nil {
		return Batch{}, err
	}
	if kind == KindAdvent {
		return Batch{}, shared.Validationf("kind", "advent runs go through the advent endpoint")
	}
	if in.RoastBatchID <= 0 {
		return Batch{}, shared.Validationf("roast_batch_id", "is required")
	}

	var needed float64
	if kind.Packaged() {
		if in.Units <= 0 {
			return Batch{}, shared.Validationf("units", "must be positive for %s", kind)
		}
		needed = float64(in.Units) * kind.UnitWeightG()
	} else {
		if in.WeightG <= 0 {
			return Batch{}, shared.Validationf("weight_g", "must be positive for %s", kind)
		}
		needed = in.WeightG
	}
	producedOn := in.ProducedOn
	if producedOn.IsZero() {
		producedOn = time.Now().UTC()
	}
	producedOn = dateOnly(producedOn)

	code := strings.TrimSpace(in.Code)
	if code != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, code, "production"); err != nil {
			return Batch{}, err
		}
	}

	var (
		batch     Batch
		productID int64
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.GetRoastBatchForUpdate(ctx, in.RoastBatchID)
		if errors.Is(err, ErrRoastBatchNotFound) {
			return &shared.NotFoundError{Entity: "roast batch", Key: fmt.Sprint(in.RoastBatchID)}
		}
		if err != nil {
			return err
		}
		if source.AvailableWeightG < needed {
			return &shared.InsufficientStockError{RequestedG: needed, AvailableG: source.AvailableWeightG}
		}
		productID = source.ProductID

		lotNumber, err := s.outputLot(ctx, tx, kind, source, producedOn)
		if err != nil {
			return err
		}

		b := Batch{
			Lot:          lotNumber,
			Kind:         kind,
			ProductID:    source.ProductID,
			Quantity:     in.Units,
			UnitWeightG:  kind.UnitWeightG(),
			TotalWeightG: needed,
			ProducedOn:   producedOn,
			Notes:        in.Notes,
		}
		id, err := tx.InsertBatch(ctx, b)
		if err != nil {
			return err
		}
		b.ID = id
		if _, err := tx.InsertSource(ctx, Source{ProductionBatchID: id, RoastBatchID: source.ID, WeightG: needed}); err != nil {
			return err
		}
		if err := tx.DecrementRoastAvailable(ctx, source.ID, needed); err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		s.releaseCode(ctx, code)
		return Batch{}, s.wrapConcurrency("production.record_run", err)
	}

	s.recordAudit(ctx, "production:"+string(kind), batch.Lot, map[string]any{
		"roast_batch_id": in.RoastBatchID,
		"units":          in.Units,
		"total_g":        needed,
	})
	s.invalidate(ctx, productID)
	if s.metrics != nil {
		s.metrics.ProductionRecorded(string(kind))
	}
	return batch, nil
}

// outputLot decides the LOT on the production batch. Whole-bean packages
// and bulk market/sampling draws carry the roast LOT through unchanged so
// a bag traces straight back to its roast. Drip and cold brew are distinct
// physical products and get their own namespaces.
func (s *Service) outputLot(ctx context.Context, tx TxRepository, kind Kind, source SourceBatch, producedOn time.Time) (string, error) {
	switch kind {
	case KindDrip11:
		prefix := fmt.Sprintf("TG/%s/%s/", source.Level, lot.FormatDatePart(producedOn))
		seq, err := s.nextSequence(ctx, tx, prefix)
		if err != nil {
			return "", err
		}
		return lot.EncodeDrip(source.Level, producedOn, seq), nil
	case KindColdBrew:
		prefix := "CB/" + lot.FormatDatePart(producedOn) + "/"
		seq, err := s.nextSequence(ctx, tx, prefix)
		if err != nil {
			return "", err
		}
		return lot.EncodeColdBrew(producedOn, seq), nil
	default:
		return source.Lot, nil
	}
}

// AdventItem names one roast batch and how much to draw from it.
type AdventItem struct {
	RoastBatchID int64
	WeightG      float64
}

// AdventInput describes an advent calendar run.
type AdventInput struct {
	Items      []AdventItem
	ProducedOn time.Time
	Notes      string
	Code       string
}

// RecordAdvent records a multi-batch advent calendar run under a fresh
// AK/ LOT. The run is all-or-nothing: the first batch that cannot cover
// its draw aborts the whole transaction and no stock moves.
func (s *Service) RecordAdvent(ctx context.Context, in AdventInput) (Batch, error) {
	if len(in.Items) == 0 {
		return Batch{}, shared.Validationf("items", "at least one source batch is required")
	}
	seen := make(map[int64]bool, len(in.Items))
	for i, item := range in.Items {
		if item.RoastBatchID <= 0 {
			return Batch{}, shared.Validationf("items", "item %d: roast_batch_id is required", i)
		}
		if item.WeightG <= 0 {
			return Batch{}, shared.Validationf("items", "item %d: weight_g must be positive", i)
		}
		if seen[item.RoastBatchID] {
			return Batch{}, shared.Validationf("items", "roast batch %d listed twice", item.RoastBatchID)
		}
		seen[item.RoastBatchID] = true
	}
	producedOn := in.ProducedOn
	if producedOn.IsZero() {
		producedOn = time.Now().UTC()
	}
	producedOn = dateOnly(producedOn)

	code := strings.TrimSpace(in.Code)
	if code != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, code, "production"); err != nil {
			return Batch{}, err
		}
	}

	var (
		batch    Batch
		products []int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		total := 0.0
		sources := make([]SourceBatch, 0, len(in.Items))
		for _, item := range in.Items {
			source, err := tx.GetRoastBatchForUpdate(ctx, item.RoastBatchID)
			if errors.Is(err, ErrRoastBatchNotFound) {
				return &shared.NotFoundError{Entity: "roast batch", Key: fmt.Sprint(item.RoastBatchID)}
			}
			if err != nil {
				return err
			}
			if source.AvailableWeightG < item.WeightG {
				return &shared.InsufficientStockError{RequestedG: item.WeightG, AvailableG: source.AvailableWeightG}
			}
			sources = append(sources, source)
			total += item.WeightG
		}

		prefix := "AK/" + lot.FormatDatePart(producedOn) + "/"
		seq, err := s.nextSequence(ctx, tx, prefix)
		if err != nil {
			return err
		}
		b := Batch{
			Lot:          lot.EncodeAdvent(producedOn, seq),
			Kind:         KindAdvent,
			TotalWeightG: total,
			ProducedOn:   producedOn,
			Notes:        in.Notes,
		}
		id, err := tx.InsertBatch(ctx, b)
		if err != nil {
			return err
		}
		b.ID = id

		for i, item := range in.Items {
			if _, err := tx.InsertSource(ctx, Source{ProductionBatchID: id, RoastBatchID: item.RoastBatchID, WeightG: item.WeightG}); err != nil {
				return err
			}
			if err := tx.DecrementRoastAvailable(ctx, item.RoastBatchID, item.WeightG); err != nil {
				return err
			}
			products = append(products, sources[i].ProductID)
		}
		batch = b
		return nil
	})
	if err != nil {
		s.releaseCode(ctx, code)
		return Batch{}, s.wrapConcurrency("production.record_advent", err)
	}

	s.recordAudit(ctx, "production:advent", batch.Lot, map[string]any{
		"sources": len(in.Items),
		"total_g": batch.TotalWeightG,
	})
	for _, productID := range products {
		s.invalidate(ctx, productID)
	}
	if s.metrics != nil {
		s.metrics.ProductionRecorded(string(KindAdvent))
	}
	return batch, nil
}

// GetBatch returns one production batch by id.
func (s *Service) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListBatches lists production runs, newest first.
func (s *Service) ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error) {
	return s.repo.ListBatches(ctx, filter)
}

// Sources lists the roast batches one run consumed.
func (s *Service) Sources(ctx context.Context, batchID int64) ([]Source, error) {
	return s.repo.Sources(ctx, batchID)
}

func (s *Service) nextSequence(ctx context.Context, tx TxRepository, prefix string) (int, error) {
	lots, err := tx.ListProductionLotsByPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return ledger.NextSequence(lots), nil
}

func (s *Service) releaseCode(ctx context.Context, code string) {
	if code == "" || s.idem == nil {
		return
	}
	if err := s.idem.Delete(ctx, code); err != nil {
		s.logger.Warn("idempotency release failed", slog.String("code", code), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["event_id"] = uuid.NewString()
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "production_batch", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, productID int64) {
	if s.cache == nil || productID == 0 {
		return
	}
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
