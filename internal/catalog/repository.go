package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cafetiko/roastledger/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	CreateGreenCoffee(ctx context.Context, g GreenCoffee) (int64, error)
	UpdateGreenCoffee(ctx context.Context, g GreenCoffee) error
	GetGreenCoffee(ctx context.Context, id int64) (GreenCoffee, error)
	ListGreenCoffees(ctx context.Context, includeInactive bool) ([]GreenCoffee, error)

	CreateProduct(ctx context.Context, p CoffeeProduct) (int64, error)
	UpdateProduct(ctx context.Context, p CoffeeProduct) error
	GetProduct(ctx context.Context, id int64) (CoffeeProduct, error)
	ListProducts(ctx context.Context, includeInactive bool) ([]CoffeeProduct, error)
}

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateGreenCoffee(ctx context.Context, g GreenCoffee) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO green_coffees (name, origin, organic, active, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`, g.Name, g.Origin, g.Organic, g.Active).Scan(&id)
	if err != nil {
		return 0, mapUniqueName(err, g.Name)
	}
	return id, nil
}

func (r *Repository) UpdateGreenCoffee(ctx context.Context, g GreenCoffee) error {
	tag, err := r.pool.Exec(ctx, `UPDATE green_coffees SET name=$2, origin=$3, organic=$4, active=$5 WHERE id=$1`,
		g.ID, g.Name, g.Origin, g.Organic, g.Active)
	if err != nil {
		return mapUniqueName(err, g.Name)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "green coffee", Key: fmt.Sprint(g.ID)}
	}
	return nil
}

func (r *Repository) GetGreenCoffee(ctx context.Context, id int64) (GreenCoffee, error) {
	var g GreenCoffee
	err := r.pool.QueryRow(ctx, `SELECT id, name, origin, organic, active, created_at FROM green_coffees WHERE id=$1`, id).
		Scan(&g.ID, &g.Name, &g.Origin, &g.Organic, &g.Active, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GreenCoffee{}, &shared.NotFoundError{Entity: "green coffee", Key: fmt.Sprint(id)}
	}
	return g, err
}

func (r *Repository) ListGreenCoffees(ctx context.Context, includeInactive bool) ([]GreenCoffee, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, origin, organic, active, created_at
FROM green_coffees WHERE $1 OR active ORDER BY id`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var coffees []GreenCoffee
	for rows.Next() {
		var g GreenCoffee
		if err := rows.Scan(&g.ID, &g.Name, &g.Origin, &g.Organic, &g.Active, &g.CreatedAt); err != nil {
			return nil, err
		}
		coffees = append(coffees, g)
	}
	return coffees, rows.Err()
}

func (r *Repository) CreateProduct(ctx context.Context, p CoffeeProduct) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO coffee_products (name, green_coffee_id, roast_level, active, created_at)
VALUES ($1,NULLIF($2,0),$3,$4,NOW()) RETURNING id`, p.Name, p.GreenCoffeeID, p.Level, p.Active).Scan(&id)
	if err != nil {
		return 0, mapUniqueName(err, p.Name)
	}
	return id, nil
}

func (r *Repository) UpdateProduct(ctx context.Context, p CoffeeProduct) error {
	tag, err := r.pool.Exec(ctx, `UPDATE coffee_products
SET name=$2, green_coffee_id=NULLIF($3,0), roast_level=$4, active=$5 WHERE id=$1`,
		p.ID, p.Name, p.GreenCoffeeID, p.Level, p.Active)
	if err != nil {
		return mapUniqueName(err, p.Name)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "coffee product", Key: fmt.Sprint(p.ID)}
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (CoffeeProduct, error) {
	var p CoffeeProduct
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(green_coffee_id, 0), roast_level, active, created_at
FROM coffee_products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.GreenCoffeeID, &p.Level, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CoffeeProduct{}, &shared.NotFoundError{Entity: "coffee product", Key: fmt.Sprint(id)}
	}
	return p, err
}

func (r *Repository) ListProducts(ctx context.Context, includeInactive bool) ([]CoffeeProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(green_coffee_id, 0), roast_level, active, created_at
FROM coffee_products WHERE $1 OR active ORDER BY id`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []CoffeeProduct
	for rows.Next() {
		var p CoffeeProduct
		if err := rows.Scan(&p.ID, &p.Name, &p.GreenCoffeeID, &p.Level, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func mapUniqueName(err error, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.Validationf("name", "%q already exists", name)
	}
	return err
}
