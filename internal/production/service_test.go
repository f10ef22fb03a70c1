package production

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cafetiko/roastledger/internal/lot"
	"github.com/cafetiko/roastledger/internal/shared"
	_ "github.com/cafetiko/roastledger/testing"
)

type memoryRepo struct {
	roasts      map[int64]*SourceBatch
	batches     map[int64]*Batch
	sources     []Source
	nextBatchID int64
	nextSrcID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roasts:  make(map[int64]*SourceBatch),
		batches: make(map[int64]*Batch),
	}
}

func (r *memoryRepo) addRoast(id int64, lotNumber string, productID int64, level lot.Level, availableG float64) {
	r.roasts[id] = &SourceBatch{
		ID: id, Lot: lotNumber, ProductID: productID, Level: level,
		RoastDate: time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC),
		AvailableWeightG: availableG,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Snapshot so a failing callback leaves state untouched, matching
	// transaction rollback.
	roasts := make(map[int64]*SourceBatch, len(r.roasts))
	for id, b := range r.roasts {
		copied := *b
		roasts[id] = &copied
	}
	batches := make(map[int64]*Batch, len(r.batches))
	for id, b := range r.batches {
		copied := *b
		batches[id] = &copied
	}
	sources := append([]Source(nil), r.sources...)
	nextBatch, nextSrc := r.nextBatchID, r.nextSrcID

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.roasts, r.batches, r.sources = roasts, batches, sources
		r.nextBatchID, r.nextSrcID = nextBatch, nextSrc
		return err
	}
	return nil
}

func (r *memoryRepo) GetBatch(ctx context.Context, id int64) (Batch, error) {
	if b, ok := r.batches[id]; ok {
		return *b, nil
	}
	return Batch{}, &shared.NotFoundError{Entity: "production batch", Key: "missing"}
}

func (r *memoryRepo) ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error) {
	var out []Batch
	for _, b := range r.batches {
		if filter.Kind != "" && b.Kind != filter.Kind {
			continue
		}
		if filter.ProductID != 0 && b.ProductID != filter.ProductID {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (r *memoryRepo) Sources(ctx context.Context, batchID int64) ([]Source, error) {
	var out []Source
	for _, s := range r.sources {
		if s.ProductionBatchID == batchID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetRoastBatchForUpdate(ctx context.Context, id int64) (SourceBatch, error) {
	if b, ok := tx.repo.roasts[id]; ok {
		return *b, nil
	}
	return SourceBatch{}, ErrRoastBatchNotFound
}

func (tx *memoryTx) DecrementRoastAvailable(ctx context.Context, roastBatchID int64, weightG float64) error {
	b, ok := tx.repo.roasts[roastBatchID]
	if !ok || b.AvailableWeightG < weightG {
		return ErrStockRace
	}
	b.AvailableWeightG -= weightG
	return nil
}

func (tx *memoryTx) ListProductionLotsByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var lots []string
	for _, b := range tx.repo.batches {
		if strings.HasPrefix(b.Lot, prefix) {
			lots = append(lots, b.Lot)
		}
	}
	return lots, nil
}

func (tx *memoryTx) InsertBatch(ctx context.Context, b Batch) (int64, error) {
	tx.repo.nextBatchID++
	b.ID = tx.repo.nextBatchID
	b.CreatedAt = time.Now()
	tx.repo.batches[b.ID] = &b
	return b.ID, nil
}

func (tx *memoryTx) InsertSource(ctx context.Context, s Source) (int64, error) {
	tx.repo.nextSrcID++
	s.ID = tx.repo.nextSrcID
	tx.repo.sources = append(tx.repo.sources, s)
	return s.ID, nil
}

type memoryIdem struct {
	keys map[string]bool
}

func (i *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if i.keys == nil {
		i.keys = map[string]bool{}
	}
	if i.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	i.keys[key] = true
	return nil
}

func (i *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(i.keys, key)
	return nil
}

func newTestService(repo *memoryRepo, idem IdempotencyPort) *Service {
	return NewService(repo, idem, nil, nil, nil, nil)
}

func TestRecordRunPackagedConsumesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "V/2025NOV01/1", 1, lot.LevelLight, 800)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	batch, err := svc.RecordRun(ctx, RunInput{Kind: "whole_bean_250", RoastBatchID: 1, Units: 3})
	require.NoError(t, err)
	require.Equal(t, "V/2025NOV01/1", batch.Lot)
	require.InDelta(t, 750.0, batch.TotalWeightG, 0.0001)
	require.InDelta(t, 50.0, repo.roasts[1].AvailableWeightG, 0.0001)

	sources, err := svc.Sources(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.InDelta(t, 750.0, sources[0].WeightG, 0.0001)
}

func TestRecordRunInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "V/2025NOV01/1", 1, lot.LevelLight, 800)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.RecordRun(ctx, RunInput{Kind: "whole_bean_250", RoastBatchID: 1, Units: 4})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.InDelta(t, 1000.0, stockErr.RequestedG, 0.0001)
	require.InDelta(t, 800.0, stockErr.AvailableG, 0.0001)

	// Nothing moved.
	require.InDelta(t, 800.0, repo.roasts[1].AvailableWeightG, 0.0001)
	require.Empty(t, repo.batches)
}

func TestRecordRunDripMintsOwnLot(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "K/2025NOV01/1", 1, lot.LevelMedium, 500)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	producedOn := time.Date(2025, time.November, 5, 0, 0, 0, 0, time.UTC)
	first, err := svc.RecordRun(ctx, RunInput{Kind: "drip_11", RoastBatchID: 1, Units: 10, ProducedOn: producedOn})
	require.NoError(t, err)
	require.Equal(t, "TG/K/2025NOV05/1", first.Lot)
	require.InDelta(t, 110.0, first.TotalWeightG, 0.0001)

	second, err := svc.RecordRun(ctx, RunInput{Kind: "drip_11", RoastBatchID: 1, Units: 5, ProducedOn: producedOn})
	require.NoError(t, err)
	require.Equal(t, "TG/K/2025NOV05/2", second.Lot)
}

func TestRecordRunColdBrewBulk(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "S/2025NOV01/1", 2, lot.LevelDark, 2000)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	producedOn := time.Date(2025, time.November, 6, 0, 0, 0, 0, time.UTC)
	batch, err := svc.RecordRun(ctx, RunInput{Kind: "cold_brew", RoastBatchID: 1, WeightG: 600, ProducedOn: producedOn})
	require.NoError(t, err)
	require.Equal(t, "CB/2025NOV06/1", batch.Lot)
	require.InDelta(t, 1400.0, repo.roasts[1].AvailableWeightG, 0.0001)

	_, err = svc.RecordRun(ctx, RunInput{Kind: "cold_brew", RoastBatchID: 1})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "weight_g", verr.Field)
}

func TestRecordRunIdempotencyCode(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "V/2025NOV01/1", 1, lot.LevelLight, 800)
	idem := &memoryIdem{}
	svc := newTestService(repo, idem)
	ctx := context.Background()

	_, err := svc.RecordRun(ctx, RunInput{Kind: "whole_bean_70", RoastBatchID: 1, Units: 2, Code: "run-42"})
	require.NoError(t, err)

	_, err = svc.RecordRun(ctx, RunInput{Kind: "whole_bean_70", RoastBatchID: 1, Units: 2, Code: "run-42"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.InDelta(t, 660.0, repo.roasts[1].AvailableWeightG, 0.0001)

	// A failed run releases its code so the client can retry.
	_, err = svc.RecordRun(ctx, RunInput{Kind: "whole_bean_250", RoastBatchID: 1, Units: 100, Code: "run-43"})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.False(t, idem.keys["run-43"])
}

func TestRecordAdventAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	repo.addRoast(1, "V/2025NOV01/1", 1, lot.LevelLight, 500)
	repo.addRoast(2, "S/2025NOV01/1", 2, lot.LevelDark, 100)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	producedOn := time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC)
	_, err := svc.RecordAdvent(ctx, AdventInput{
		Items: []AdventItem{
			{RoastBatchID: 1, WeightG: 200},
			{RoastBatchID: 2, WeightG: 150},
		},
		ProducedOn: producedOn,
	})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.InDelta(t, 150.0, stockErr.RequestedG, 0.0001)
	require.InDelta(t, 100.0, stockErr.AvailableG, 0.0001)

	// First batch untouched even though it could have covered its draw.
	require.InDelta(t, 500.0, repo.roasts[1].AvailableWeightG, 0.0001)

	batch, err := svc.RecordAdvent(ctx, AdventInput{
		Items: []AdventItem{
			{RoastBatchID: 1, WeightG: 200},
			{RoastBatchID: 2, WeightG: 100},
		},
		ProducedOn: producedOn,
	})
	require.NoError(t, err)
	require.Equal(t, "AK/2025NOV10/1", batch.Lot)
	require.InDelta(t, 300.0, batch.TotalWeightG, 0.0001)
	require.InDelta(t, 300.0, repo.roasts[1].AvailableWeightG, 0.0001)
	require.InDelta(t, 0.0, repo.roasts[2].AvailableWeightG, 0.0001)

	sources, err := svc.Sources(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
}

func TestRecordAdventValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()

	var verr *shared.ValidationError
	_, err := svc.RecordAdvent(ctx, AdventInput{})
	require.ErrorAs(t, err, &verr)

	_, err = svc.RecordAdvent(ctx, AdventInput{Items: []AdventItem{
		{RoastBatchID: 1, WeightG: 10},
		{RoastBatchID: 1, WeightG: 20},
	}})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "items", verr.Field)
}
