package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cafetiko/roastledger/internal/shared"
)

type memoryRepo struct {
	roasts      map[int64]*StockBatch
	productions map[int64]*UnitBatch
	assignments map[SlotKey]*Assignment
	products    []ProductRef
	nextID      int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roasts:      make(map[int64]*StockBatch),
		productions: make(map[int64]*UnitBatch),
		assignments: make(map[SlotKey]*Assignment),
	}
}

func (r *memoryRepo) addRoast(id int64, lotNumber string, productID int64, availableG float64) {
	r.roasts[id] = &StockBatch{ID: id, Lot: lotNumber, ProductID: productID, AvailableWeightG: availableG}
}

func (r *memoryRepo) addProduction(id int64, lotNumber string, productID int64, quantity int) {
	r.productions[id] = &UnitBatch{ID: id, Lot: lotNumber, ProductID: productID, Quantity: quantity}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListOrderAssignments(ctx context.Context, wcOrderID int64) ([]Assignment, error) {
	var out []Assignment
	for _, a := range r.assignments {
		if a.WCOrderID == wcOrderID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context) ([]ProductRef, error) {
	return r.products, nil
}

func (tx *memoryTx) GetAssignmentForUpdate(ctx context.Context, key SlotKey) (Assignment, error) {
	if a, ok := tx.repo.assignments[key]; ok {
		return *a, nil
	}
	return Assignment{}, ErrAssignmentNotFound
}

func (tx *memoryTx) InsertAssignment(ctx context.Context, a Assignment) (int64, error) {
	key := SlotKey{WCOrderID: a.WCOrderID, WCOrderItemID: a.WCOrderItemID, SlotNumber: a.SlotNumber}
	if _, ok := tx.repo.assignments[key]; ok {
		return 0, ErrSlotTaken
	}
	tx.repo.nextID++
	a.ID = tx.repo.nextID
	a.CreatedAt = time.Now()
	tx.repo.assignments[key] = &a
	return a.ID, nil
}

func (tx *memoryTx) DeleteAssignment(ctx context.Context, id int64) error {
	for key, a := range tx.repo.assignments {
		if a.ID == id {
			delete(tx.repo.assignments, key)
			return nil
		}
	}
	return ErrAssignmentNotFound
}

func (tx *memoryTx) GetRoastBatchForUpdate(ctx context.Context, id int64) (StockBatch, error) {
	if b, ok := tx.repo.roasts[id]; ok {
		return *b, nil
	}
	return StockBatch{}, ErrRoastBatchNotFound
}

func (tx *memoryTx) DecrementRoastAvailable(ctx context.Context, roastBatchID int64, weightG float64) error {
	b, ok := tx.repo.roasts[roastBatchID]
	if !ok || b.AvailableWeightG < weightG {
		return &shared.InsufficientStockError{RequestedG: weightG}
	}
	b.AvailableWeightG -= weightG
	return nil
}

func (tx *memoryTx) RestoreRoastAvailable(ctx context.Context, roastBatchID int64, weightG float64) error {
	b, ok := tx.repo.roasts[roastBatchID]
	if !ok {
		return ErrRoastBatchNotFound
	}
	b.AvailableWeightG += weightG
	return nil
}

func (tx *memoryTx) GetProductionBatchForUpdate(ctx context.Context, id int64) (UnitBatch, error) {
	if b, ok := tx.repo.productions[id]; ok {
		return *b, nil
	}
	return UnitBatch{}, ErrProductionBatchNotFound
}

func (tx *memoryTx) DecrementProductionQuantity(ctx context.Context, productionBatchID int64, units int) error {
	b, ok := tx.repo.productions[productionBatchID]
	if !ok || b.Quantity < units {
		return &shared.InsufficientStockError{RequestedG: float64(units)}
	}
	b.Quantity -= units
	return nil
}

func (tx *memoryTx) RestoreProductionQuantity(ctx context.Context, productionBatchID int64, units int) error {
	b, ok := tx.repo.productions[productionBatchID]
	if !ok {
		return ErrProductionBatchNotFound
	}
	b.Quantity += units
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil, nil, nil)
}

func TestAssignSlotConsumesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "V/2025NOV01/1", 1, 600)
	svc := newTestService(repo)
	ctx := context.Background()

	key := SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: 1}
	a, err := svc.AssignSlot(ctx, AssignInput{Key: key, RoastBatchID: 1})
	require.NoError(t, err)
	require.Equal(t, "V/2025NOV01/1", a.RoastLot)
	require.InDelta(t, float64(DefaultUnitWeightG), a.WeightG, 0.0001)
	require.InDelta(t, 350.0, repo.roasts[1].AvailableWeightG, 0.0001)
}

func TestAssignSlotReassignRestoresPrevious(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "V/2025NOV01/1", 1, 600)
	repo.addRoast(2, "V/2025NOV03/1", 1, 300)
	svc := newTestService(repo)
	ctx := context.Background()

	key := SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: 1}
	_, err := svc.AssignSlot(ctx, AssignInput{Key: key, RoastBatchID: 1})
	require.NoError(t, err)

	// Moving the slot to another batch gives the old batch its weight back.
	a, err := svc.AssignSlot(ctx, AssignInput{Key: key, RoastBatchID: 2})
	require.NoError(t, err)
	require.Equal(t, int64(2), a.RoastBatchID)
	require.InDelta(t, 600.0, repo.roasts[1].AvailableWeightG, 0.0001)
	require.InDelta(t, 50.0, repo.roasts[2].AvailableWeightG, 0.0001)

	// Re-running the same assignment is stock-neutral.
	_, err = svc.AssignSlot(ctx, AssignInput{Key: key, RoastBatchID: 2})
	require.NoError(t, err)
	require.InDelta(t, 50.0, repo.roasts[2].AvailableWeightG, 0.0001)
}

func TestAssignSlotInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "V/2025NOV01/1", 1, 100)
	svc := newTestService(repo)
	ctx := context.Background()

	key := SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: 1}
	_, err := svc.AssignSlot(ctx, AssignInput{Key: key, RoastBatchID: 1})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.InDelta(t, 100.0, stockErr.AvailableG, 0.0001)
	require.InDelta(t, 100.0, repo.roasts[1].AvailableWeightG, 0.0001)
}

func TestReleaseSlotRestoresOnce(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "V/2025NOV01/1", 1, 600)
	svc := newTestService(repo)
	ctx := context.Background()

	key := SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: 1}
	_, err := svc.AssignSlot(ctx, AssignInput{Key: key, RoastBatchID: 1})
	require.NoError(t, err)
	require.InDelta(t, 350.0, repo.roasts[1].AvailableWeightG, 0.0001)

	require.NoError(t, svc.ReleaseSlot(ctx, key))
	require.InDelta(t, 600.0, repo.roasts[1].AvailableWeightG, 0.0001)

	// Second release finds no assignment row: stock cannot be restored twice.
	err = svc.ReleaseSlot(ctx, key)
	var nfErr *shared.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	require.InDelta(t, 600.0, repo.roasts[1].AvailableWeightG, 0.0001)
}

func TestAssignSlotConsumesProductionUnits(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduction(10, "V/2025NOV01/1", 1, 5)
	svc := newTestService(repo)
	ctx := context.Background()

	key := SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: 1}
	a, err := svc.AssignSlot(ctx, AssignInput{Key: key, ProductionBatchID: 10})
	require.NoError(t, err)
	require.Equal(t, int64(10), a.ProductionBatchID)
	require.Equal(t, "V/2025NOV01/1", a.ProductionLot)
	require.Equal(t, 1, a.Units)
	require.Zero(t, a.RoastBatchID)
	require.Equal(t, 4, repo.productions[10].Quantity)
}

func TestAssignSlotProductionQuantityFloor(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduction(10, "V/2025NOV01/1", 1, 2)
	svc := newTestService(repo)
	ctx := context.Background()

	// Slot-by-slot fulfillment drains the batch to zero, never below.
	for slot := 1; slot <= 2; slot++ {
		_, err := svc.AssignSlot(ctx, AssignInput{
			Key: SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: slot}, ProductionBatchID: 10,
		})
		require.NoError(t, err)
	}
	require.Equal(t, 0, repo.productions[10].Quantity)

	_, err := svc.AssignSlot(ctx, AssignInput{
		Key: SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: 3}, ProductionBatchID: 10,
	})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.InDelta(t, 1.0, stockErr.RequestedG, 0.0001)
	require.InDelta(t, 0.0, stockErr.AvailableG, 0.0001)
	require.Equal(t, 0, repo.productions[10].Quantity)
}

func TestReleaseSlotRestoresProductionUnitsOnce(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduction(10, "V/2025NOV01/1", 1, 3)
	svc := newTestService(repo)
	ctx := context.Background()

	key := SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: 1}
	_, err := svc.AssignSlot(ctx, AssignInput{Key: key, ProductionBatchID: 10, Units: 2})
	require.NoError(t, err)
	require.Equal(t, 1, repo.productions[10].Quantity)

	require.NoError(t, svc.ReleaseSlot(ctx, key))
	require.Equal(t, 3, repo.productions[10].Quantity)

	// Second release finds no assignment row: units cannot come back twice.
	err = svc.ReleaseSlot(ctx, key)
	var nfErr *shared.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	require.Equal(t, 3, repo.productions[10].Quantity)
}

func TestAssignSlotMoveBetweenProductionAndRoast(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduction(10, "V/2025NOV01/1", 1, 5)
	repo.addRoast(1, "V/2025NOV03/1", 1, 600)
	svc := newTestService(repo)
	ctx := context.Background()

	key := SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: 1}
	_, err := svc.AssignSlot(ctx, AssignInput{Key: key, ProductionBatchID: 10})
	require.NoError(t, err)
	require.Equal(t, 4, repo.productions[10].Quantity)

	// Moving the slot to a roast batch gives the production batch its unit back.
	a, err := svc.AssignSlot(ctx, AssignInput{Key: key, RoastBatchID: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), a.RoastBatchID)
	require.Equal(t, 5, repo.productions[10].Quantity)
	require.InDelta(t, 350.0, repo.roasts[1].AvailableWeightG, 0.0001)
}

func TestAssignSlotRejectsAmbiguousTarget(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	key := SlotKey{WCOrderID: 100, WCOrderItemID: 1, SlotNumber: 1}
	_, err := svc.AssignSlot(ctx, AssignInput{Key: key})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.AssignSlot(ctx, AssignInput{Key: key, RoastBatchID: 1, ProductionBatchID: 10})
	require.ErrorAs(t, err, &vErr)
}

func TestSuggestMatchesByName(t *testing.T) {
	repo := newMemoryRepo()
	repo.products = []ProductRef{
		{ID: 1, Name: "Etiópia Yirgacheffe", Level: "V"},
		{ID: 2, Name: "Brazil Santos", Level: "K"},
	}
	svc := newTestService(repo)
	ctx := context.Background()

	matches, err := svc.Suggest(ctx, "Etiópia Yirgacheffe szemes kávé 250g")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, int64(1), matches[0].ID)

	matches, err = svc.Suggest(ctx, "ajándékutalvány")
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestSubstringMatcher(t *testing.T) {
	m := SubstringMatcher{}
	require.True(t, m.Match("BRAZIL santos 250g", "Brazil Santos 250g"))
	require.True(t, m.Match("Brazil", "Brazil Santos"))
	require.False(t, m.Match("", "Brazil Santos"))
	require.False(t, m.Match("Kenya AA", "Brazil Santos"))
}
