package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cafetiko/roastledger/internal/shared"
)

// AuditPort abstracts operator-level audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort drops stale availability aggregates after stock moves.
type InvalidatorPort interface {
	Invalidate(ctx context.Context, productID int64) error
}

// MetricsPort abstracts the domain counters.
type MetricsPort interface {
	SlotAssigned()
	SlotReleased()
}

// Service coordinates order slot assignments.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   InvalidatorPort
	metrics MetricsPort
	matcher Matcher
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache InvalidatorPort, metrics MetricsPort, matcher Matcher, logger *slog.Logger) *Service {
	if matcher == nil {
		matcher = SubstringMatcher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, metrics: metrics, matcher: matcher, logger: logger}
}

// AssignInput describes a slot assignment. Exactly one of RoastBatchID
// and ProductionBatchID must be set: roast batches consume loose weight,
// production batches consume packaged units.
type AssignInput struct {
	Key               SlotKey
	RoastBatchID      int64
	WeightG           float64
	ProductionBatchID int64
	Units             int
}

// AssignSlot binds a slot to stock and consumes from it: package weight
// off a roast batch, or units off a production batch. Reassigning an
// occupied slot first restores whatever the previous assignment consumed,
// so repeating an assignment never consumes stock twice. The whole
// exchange is one transaction.
func (s *Service) AssignSlot(ctx context.Context, in AssignInput) (Assignment, error) {
	if err := validateKey(in.Key); err != nil {
		return Assignment{}, err
	}
	switch {
	case in.RoastBatchID <= 0 && in.ProductionBatchID <= 0:
		return Assignment{}, shared.Validationf("roast_batch_id", "either roast_batch_id or production_batch_id is required")
	case in.RoastBatchID > 0 && in.ProductionBatchID > 0:
		return Assignment{}, shared.Validationf("production_batch_id", "must not be combined with roast_batch_id")
	}
	weight := in.WeightG
	units := in.Units
	if in.RoastBatchID > 0 {
		if weight == 0 {
			weight = DefaultUnitWeightG
		}
		if weight < 0 {
			return Assignment{}, shared.Validationf("weight_g", "must not be negative")
		}
	} else {
		if units == 0 {
			units = 1
		}
		if units < 0 {
			return Assignment{}, shared.Validationf("units", "must not be negative")
		}
	}

	var (
		assignment Assignment
		products   []int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		previous, err := tx.GetAssignmentForUpdate(ctx, in.Key)
		switch {
		case err == nil:
			productID, err := restoreAssignment(ctx, tx, previous)
			if err != nil {
				return err
			}
			if err := tx.DeleteAssignment(ctx, previous.ID); err != nil {
				return err
			}
			products = append(products, productID)
		case !errors.Is(err, ErrAssignmentNotFound):
			return err
		}

		a := Assignment{
			WCOrderID:     in.Key.WCOrderID,
			WCOrderItemID: in.Key.WCOrderItemID,
			SlotNumber:    in.Key.SlotNumber,
		}
		if in.RoastBatchID > 0 {
			batch, err := tx.GetRoastBatchForUpdate(ctx, in.RoastBatchID)
			if errors.Is(err, ErrRoastBatchNotFound) {
				return &shared.NotFoundError{Entity: "roast batch", Key: fmt.Sprint(in.RoastBatchID)}
			}
			if err != nil {
				return err
			}
			if batch.AvailableWeightG < weight {
				return &shared.InsufficientStockError{RequestedG: weight, AvailableG: batch.AvailableWeightG}
			}
			if err := tx.DecrementRoastAvailable(ctx, in.RoastBatchID, weight); err != nil {
				return err
			}
			a.RoastBatchID = in.RoastBatchID
			a.RoastLot = batch.Lot
			a.WeightG = weight
			products = append(products, batch.ProductID)
		} else {
			batch, err := tx.GetProductionBatchForUpdate(ctx, in.ProductionBatchID)
			if errors.Is(err, ErrProductionBatchNotFound) {
				return &shared.NotFoundError{Entity: "production batch", Key: fmt.Sprint(in.ProductionBatchID)}
			}
			if err != nil {
				return err
			}
			if batch.Quantity < units {
				return &shared.InsufficientStockError{RequestedG: float64(units), AvailableG: float64(batch.Quantity)}
			}
			if err := tx.DecrementProductionQuantity(ctx, in.ProductionBatchID, units); err != nil {
				return err
			}
			a.ProductionBatchID = in.ProductionBatchID
			a.ProductionLot = batch.Lot
			a.Units = units
		}

		id, err := tx.InsertAssignment(ctx, a)
		if errors.Is(err, ErrSlotTaken) {
			return &shared.ConcurrencyError{Op: "orders.assign_slot", Err: err}
		}
		if err != nil {
			return err
		}
		a.ID = id
		assignment = a
		return nil
	})
	if err != nil {
		return Assignment{}, s.wrapConcurrency("orders.assign_slot", err)
	}

	s.recordAudit(ctx, "orders:assign", assignment, nil)
	for _, productID := range products {
		s.invalidate(ctx, productID)
	}
	if s.metrics != nil {
		s.metrics.SlotAssigned()
	}
	return assignment, nil
}

// ReleaseSlot removes an assignment and restores what it consumed: weight
// to the roast batch, or units to the production batch. Releasing a slot
// that is not assigned returns NotFoundError, which is what makes a double
// release restore stock exactly once.
func (s *Service) ReleaseSlot(ctx context.Context, key SlotKey) error {
	if err := validateKey(key); err != nil {
		return err
	}

	var (
		released  Assignment
		productID int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		assignment, err := tx.GetAssignmentForUpdate(ctx, key)
		if errors.Is(err, ErrAssignmentNotFound) {
			return &shared.NotFoundError{
				Entity: "slot assignment",
				Key:    fmt.Sprintf("order %d item %d slot %d", key.WCOrderID, key.WCOrderItemID, key.SlotNumber),
			}
		}
		if err != nil {
			return err
		}
		productID, err = restoreAssignment(ctx, tx, assignment)
		if err != nil {
			return err
		}
		if err := tx.DeleteAssignment(ctx, assignment.ID); err != nil {
			return err
		}
		released = assignment
		return nil
	})
	if err != nil {
		return s.wrapConcurrency("orders.release_slot", err)
	}

	s.recordAudit(ctx, "orders:release", released, nil)
	s.invalidate(ctx, productID)
	if s.metrics != nil {
		s.metrics.SlotReleased()
	}
	return nil
}

// ListOrderAssignments lists every slot assignment of one webshop order.
func (s *Service) ListOrderAssignments(ctx context.Context, wcOrderID int64) ([]Assignment, error) {
	return s.repo.ListOrderAssignments(ctx, wcOrderID)
}

// Suggest returns catalog products whose names match the webshop item name.
func (s *Service) Suggest(ctx context.Context, itemName string) ([]ProductRef, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	var matched []ProductRef
	for _, p := range products {
		if s.matcher.Match(itemName, p.Name) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// restoreAssignment puts back whatever one assignment consumed and returns
// the product the change touched (0 when the production batch has none).
func restoreAssignment(ctx context.Context, tx TxRepository, a Assignment) (int64, error) {
	if a.ProductionBatchID > 0 {
		batch, err := tx.GetProductionBatchForUpdate(ctx, a.ProductionBatchID)
		if err != nil {
			return 0, err
		}
		if err := tx.RestoreProductionQuantity(ctx, a.ProductionBatchID, a.Units); err != nil {
			return 0, err
		}
		return batch.ProductID, nil
	}
	batch, err := tx.GetRoastBatchForUpdate(ctx, a.RoastBatchID)
	if err != nil {
		return 0, err
	}
	if err := tx.RestoreRoastAvailable(ctx, a.RoastBatchID, a.WeightG); err != nil {
		return 0, err
	}
	return batch.ProductID, nil
}

func validateKey(key SlotKey) error {
	if key.WCOrderID <= 0 {
		return shared.Validationf("wc_order_id", "is required")
	}
	if key.WCOrderItemID <= 0 {
		return shared.Validationf("wc_order_item_id", "is required")
	}
	if key.SlotNumber < 1 {
		return shared.Validationf("slot_number", "must be >= 1")
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, a Assignment, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["event_id"] = uuid.NewString()
	if a.ProductionBatchID > 0 {
		meta["production_lot"] = a.ProductionLot
		meta["units"] = a.Units
	} else {
		meta["roast_lot"] = a.RoastLot
		meta["weight_g"] = a.WeightG
	}
	entityID := fmt.Sprintf("%d/%d/%d", a.WCOrderID, a.WCOrderItemID, a.SlotNumber)
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "slot_assignment", EntityID: entityID, Meta: meta}); err != nil {
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
