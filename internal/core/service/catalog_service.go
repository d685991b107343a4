package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/clock"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// CatalogService manages products and their customization options. The
// database holds the stock of record; the cache mirrors it for checkout.
type CatalogService struct {
	catalog port.CatalogRepository
	cache   port.CacheRepository
	clock   clock.Clock
	log     logrus.FieldLogger
}

func NewCatalogService(d Deps) *CatalogService {
	return &CatalogService{catalog: d.Catalog, cache: d.Cache, clock: d.clock(), log: d.logger()}
}

type ProductInput struct {
	SKU         string
	Name        string
	Description string
	PriceCents  int64
	Stock       int
	Active      bool
}

func (in ProductInput) validate() error {
	switch {
	case strings.TrimSpace(in.SKU) == "":
		return fmt.Errorf("%w: sku is required", domain.ErrValidation)
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	case in.PriceCents < 0:
		return domain.ErrInvalidAmount
	case in.Stock < 0:
		return domain.ErrInvalidQuantity
	}
	return nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	if err := in.validate(); err != nil {
		return domain.Product{}, err
	}
	now := s.clock.Now()
	p := domain.Product{
		ID:          newID(),
		SKU:         strings.TrimSpace(in.SKU),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		Active:      in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}
	if err := s.cache.SetStock(ctx, p.ID, p.Stock); err != nil {
		return domain.Product{}, fmt.Errorf("mirror stock: %w", err)
	}
	s.log.WithFields(logrus.Fields{"product_id": p.ID, "sku": p.SKU}).Info("product created")
	return p, nil
}

// UpdateProduct edits product details. Stock is changed through SetStock.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, in ProductInput) (domain.Product, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	in.Stock = p.Stock
	if err := in.validate(); err != nil {
		return domain.Product{}, err
	}
	p.SKU = strings.TrimSpace(in.SKU)
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.PriceCents = in.PriceCents
	p.Active = in.Active
	p.UpdatedAt = s.clock.Now()
	if err := s.catalog.UpdateProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.catalog.GetProduct(ctx, id)
}

func (s *CatalogService) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	return s.catalog.ListProducts(ctx, activeOnly)
}

func (s *CatalogService) AddOption(ctx context.Context, productID, group, label string, priceDeltaCents int64) (domain.CustomizationOption, error) {
	group, label = strings.TrimSpace(group), strings.TrimSpace(label)
	if group == "" || label == "" {
		return domain.CustomizationOption{}, fmt.Errorf("%w: option group and label are required", domain.ErrValidation)
	}
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.CustomizationOption{}, err
	}
	for _, o := range p.Options {
		if strings.EqualFold(o.Group, group) && strings.EqualFold(o.Label, label) {
			return domain.CustomizationOption{}, fmt.Errorf("%w: option %s/%s already exists", domain.ErrValidation, group, label)
		}
	}
	if p.PriceCents+priceDeltaCents < 0 {
		return domain.CustomizationOption{}, fmt.Errorf("option %s/%s: %w", group, label, domain.ErrInvalidAmount)
	}
	opt := domain.CustomizationOption{
		ID:              newID(),
		ProductID:       productID,
		Group:           group,
		Label:           label,
		PriceDeltaCents: priceDeltaCents,
	}
	if err := s.catalog.AddOption(ctx, opt); err != nil {
		return domain.CustomizationOption{}, err
	}
	return opt, nil
}

func (s *CatalogService) RemoveOption(ctx context.Context, optionID string) error {
	return s.catalog.RemoveOption(ctx, optionID)
}

// SetStock overwrites the stock level in the database and the cache.
func (s *CatalogService) SetStock(ctx context.Context, productID string, stock int) error {
	if stock < 0 {
		return domain.ErrInvalidQuantity
	}
	if err := s.catalog.SetStock(ctx, productID, stock); err != nil {
		return err
	}
	if err := s.cache.SetStock(ctx, productID, stock); err != nil {
		return fmt.Errorf("mirror stock: %w", err)
	}
	s.log.WithFields(logrus.Fields{"product_id": productID, "stock": stock}).Info("stock set")
	return nil
}

// SyncStock copies every product's stock into the cache. It runs at startup
// before checkout opens.
func (s *CatalogService) SyncStock(ctx context.Context) (int, error) {
	products, err := s.catalog.ListProducts(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list products: %w", err)
	}
	for _, p := range products {
		if err := s.cache.SetStock(ctx, p.ID, p.Stock); err != nil {
			return 0, fmt.Errorf("set stock %s: %w", p.ID, err)
		}
	}
	return len(products), nil
}
