package catalog

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/cafetiko/roastledger/internal/lot"
	"github.com/cafetiko/roastledger/internal/shared"
)

// Service owns catalog master data. Listings come back in Hungarian
// collation order, which the database's C locale cannot produce (É, Ö and
// friends sort after Z there).
type Service struct {
	repo     RepositoryPort
	collator *collate.Collator
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, collator: collate.New(language.Hungarian, collate.IgnoreCase)}
}

// GreenCoffeeInput describes a green coffee create or update.
type GreenCoffeeInput struct {
	Name    string
	Origin  string
	Organic bool
	Active  bool
}

func (s *Service) CreateGreenCoffee(ctx context.Context, in GreenCoffeeInput) (GreenCoffee, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return GreenCoffee{}, shared.Validationf("name", "is required")
	}
	g := GreenCoffee{Name: name, Origin: strings.TrimSpace(in.Origin), Organic: in.Organic, Active: true}
	id, err := s.repo.CreateGreenCoffee(ctx, g)
	if err != nil {
		return GreenCoffee{}, err
	}
	return s.repo.GetGreenCoffee(ctx, id)
}

func (s *Service) UpdateGreenCoffee(ctx context.Context, id int64, in GreenCoffeeInput) (GreenCoffee, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return GreenCoffee{}, shared.Validationf("name", "is required")
	}
	if err := s.repo.UpdateGreenCoffee(ctx, GreenCoffee{
		ID: id, Name: name, Origin: strings.TrimSpace(in.Origin), Organic: in.Organic, Active: in.Active,
	}); err != nil {
		return GreenCoffee{}, err
	}
	return s.repo.GetGreenCoffee(ctx, id)
}

func (s *Service) GetGreenCoffee(ctx context.Context, id int64) (GreenCoffee, error) {
	return s.repo.GetGreenCoffee(ctx, id)
}

func (s *Service) ListGreenCoffees(ctx context.Context, includeInactive bool) ([]GreenCoffee, error) {
	coffees, err := s.repo.ListGreenCoffees(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(coffees, func(i, j int) bool {
		return s.collator.CompareString(coffees[i].Name, coffees[j].Name) < 0
	})
	return coffees, nil
}

// ProductInput describes a coffee product create or update.
type ProductInput struct {
	Name          string
	GreenCoffeeID int64
	Level         string
	Active        bool
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (CoffeeProduct, error) {
	p, err := s.validateProduct(ctx, in)
	if err != nil {
		return CoffeeProduct{}, err
	}
	p.Active = true
	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return CoffeeProduct{}, err
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (CoffeeProduct, error) {
	p, err := s.validateProduct(ctx, in)
	if err != nil {
		return CoffeeProduct{}, err
	}
	p.ID = id
	p.Active = in.Active
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return CoffeeProduct{}, err
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (CoffeeProduct, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]CoffeeProduct, error) {
	products, err := s.repo.ListProducts(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(products, func(i, j int) bool {
		return s.collator.CompareString(products[i].Name, products[j].Name) < 0
	})
	return products, nil
}

func (s *Service) validateProduct(ctx context.Context, in ProductInput) (CoffeeProduct, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return CoffeeProduct{}, shared.Validationf("name", "is required")
	}
	level, err := lot.ParseLevel(in.Level)
	if err != nil {
		return CoffeeProduct{}, shared.Validationf("roast_level", "must be V, K or S, got %q", in.Level)
	}
	if in.GreenCoffeeID != 0 {
		if _, err := s.repo.GetGreenCoffee(ctx, in.GreenCoffeeID); err != nil {
			return CoffeeProduct{}, err
		}
	}
	return CoffeeProduct{Name: name, GreenCoffeeID: in.GreenCoffeeID, Level: string(level)}, nil
}
