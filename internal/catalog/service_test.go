package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cafetiko/roastledger/internal/shared"
)

type memoryRepo struct {
	greens   map[int64]GreenCoffee
	products map[int64]CoffeeProduct
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{greens: map[int64]GreenCoffee{}, products: map[int64]CoffeeProduct{}}
}

func (r *memoryRepo) CreateGreenCoffee(ctx context.Context, g GreenCoffee) (int64, error) {
	r.nextID++
	g.ID = r.nextID
	g.CreatedAt = time.Now()
	r.greens[g.ID] = g
	return g.ID, nil
}

func (r *memoryRepo) UpdateGreenCoffee(ctx context.Context, g GreenCoffee) error {
	existing, ok := r.greens[g.ID]
	if !ok {
		return &shared.NotFoundError{Entity: "green coffee", Key: fmt.Sprint(g.ID)}
	}
	g.CreatedAt = existing.CreatedAt
	r.greens[g.ID] = g
	return nil
}

func (r *memoryRepo) GetGreenCoffee(ctx context.Context, id int64) (GreenCoffee, error) {
	if g, ok := r.greens[id]; ok {
		return g, nil
	}
	return GreenCoffee{}, &shared.NotFoundError{Entity: "green coffee", Key: fmt.Sprint(id)}
}

func (r *memoryRepo) ListGreenCoffees(ctx context.Context, includeInactive bool) ([]GreenCoffee, error) {
	var out []GreenCoffee
	for _, g := range r.greens {
		if includeInactive || g.Active {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p CoffeeProduct) (int64, error) {
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Now()
	r.products[p.ID] = p
	return p.ID, nil
}

func (r *memoryRepo) UpdateProduct(ctx context.Context, p CoffeeProduct) error {
	existing, ok := r.products[p.ID]
	if !ok {
		return &shared.NotFoundError{Entity: "coffee product", Key: fmt.Sprint(p.ID)}
	}
	p.CreatedAt = existing.CreatedAt
	r.products[p.ID] = p
	return nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id int64) (CoffeeProduct, error) {
	if p, ok := r.products[id]; ok {
		return p, nil
	}
	return CoffeeProduct{}, &shared.NotFoundError{Entity: "coffee product", Key: fmt.Sprint(id)}
}

func (r *memoryRepo) ListProducts(ctx context.Context, includeInactive bool) ([]CoffeeProduct, error) {
	var out []CoffeeProduct
	for _, p := range r.products {
		if includeInactive || p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestCreateProductValidatesLevelAndGreen(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	var verr *shared.ValidationError
	_, err := svc.CreateProduct(ctx, ProductInput{Name: "Brazil Santos", Level: "X"})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "roast_level", verr.Field)

	var nfErr *shared.NotFoundError
	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Brazil Santos", Level: "K", GreenCoffeeID: 99})
	require.ErrorAs(t, err, &nfErr)

	green, err := svc.CreateGreenCoffee(ctx, GreenCoffeeInput{Name: "Brazil Santos NY2", Origin: "Brazília"})
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Brazil Santos", Level: "K", GreenCoffeeID: green.ID})
	require.NoError(t, err)
	require.True(t, p.Active)
	require.Equal(t, "K", p.Level)
}

func TestListProductsHungarianOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for _, name := range []string{"Óriás pörkölés", "Zimbabwe AA", "Etiópia Sidamo", "Észak keverék"} {
		_, err := svc.CreateProduct(ctx, ProductInput{Name: name, Level: "V"})
		require.NoError(t, err)
	}

	products, err := svc.ListProducts(ctx, false)
	require.NoError(t, err)
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}
	// Hungarian collation: É sorts with E, Ó with O, not after Z.
	require.Equal(t, []string{"Észak keverék", "Etiópia Sidamo", "Óriás pörkölés", "Zimbabwe AA"}, names)
}

func TestDeactivateInsteadOfDelete(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Kenya AA", Level: "V"})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, p.ID, ProductInput{Name: "Kenya AA", Level: "V", Active: false})
	require.NoError(t, err)
	require.False(t, updated.Active)

	active, err := svc.ListProducts(ctx, false)
	require.NoError(t, err)
	require.Empty(t, active)
	all, err := svc.ListProducts(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
