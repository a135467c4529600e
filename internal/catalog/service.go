package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gudang-erp/gudang-erp/internal/ledger"
	"github.com/gudang-erp/gudang-erp/internal/platform/cache"
	"github.com/gudang-erp/gudang-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, p Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	UpdateProduct(ctx context.Context, id int64, updates map[string]any) error
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	CreateVariant(ctx context.Context, v Variant) (int64, error)
	ListVariants(ctx context.Context, productID int64) ([]Variant, error)
	DeactivateVariant(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for the product catalog. Stock figures
// come from the ledger through QuantityReader, with a short-lived cache in
// front of listing reads only.
type Service struct {
	repo     RepositoryPort
	stock    ledger.QuantityReader
	snapshot *cache.StockSnapshot
	audit    AuditPort
}

// NewService constructs a catalog service.
func NewService(repo RepositoryPort, stock ledger.QuantityReader, snapshot *cache.StockSnapshot, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stock, snapshot: snapshot, audit: audit}
}

// CreateProduct registers a product. The SKU must be unique.
func (s *Service) CreateProduct(ctx context.Context, actor shared.Actor, req CreateProductRequest) (*Product, error) {
	purchase, err := decimal.NewFromString(req.PurchasePrice)
	if err != nil {
		return nil, fmt.Errorf("%w: purchase price: %v", shared.ErrValidation, err)
	}
	selling, err := decimal.NewFromString(req.SellingPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: selling price: %v", shared.ErrValidation, err)
	}
	if purchase.IsNegative() || selling.IsNegative() {
		return nil, fmt.Errorf("%w: prices must not be negative", shared.ErrValidation)
	}

	product := Product{
		SKU:           req.SKU,
		Name:          req.Name,
		UOM:           req.UOM,
		PurchasePrice: purchase,
		SellingPrice:  selling,
		MinimumStock:  req.MinimumStock,
		RackLocation:  req.RackLocation,
		IsActive:      true,
	}
	product.ID, err = s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "catalog:create", product.ID, map[string]any{"sku": product.SKU})
	return &product, nil
}

// GetProduct returns the product with its variants.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, []Variant, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	variants, err := s.repo.ListVariants(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &product, variants, nil
}

// UpdateProduct patches product fields.
func (s *Service) UpdateProduct(ctx context.Context, actor shared.Actor, id int64, req UpdateProductRequest) (*Product, error) {
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.UOM != nil {
		updates["uom"] = *req.UOM
	}
	if req.PurchasePrice != nil {
		price, err := decimal.NewFromString(*req.PurchasePrice)
		if err != nil {
			return nil, fmt.Errorf("%w: purchase price: %v", shared.ErrValidation, err)
		}
		updates["purchase_price"] = price
	}
	if req.SellingPrice != nil {
		price, err := decimal.NewFromString(*req.SellingPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: selling price: %v", shared.ErrValidation, err)
		}
		updates["selling_price"] = price
	}
	if req.MinimumStock != nil {
		updates["minimum_stock"] = *req.MinimumStock
	}
	if req.RackLocation != nil {
		updates["rack_location"] = *req.RackLocation
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if err := s.repo.UpdateProduct(ctx, id, updates); err != nil {
		return nil, err
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "catalog:update", id, nil)
	return &product, nil
}

// ListProducts returns products matching the filter.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

// AddVariant registers a variant for a product.
func (s *Service) AddVariant(ctx context.Context, actor shared.Actor, productID int64, req CreateVariantRequest) (*Variant, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	variant := Variant{
		ProductID: productID,
		SKU:       req.SKU,
		Name:      req.Name,
		IsActive:  true,
	}
	var err error
	variant.ID, err = s.repo.CreateVariant(ctx, variant)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "catalog:variant-add", productID, map[string]any{"variant_id": variant.ID})
	return &variant, nil
}

// DeactivateVariant switches a variant off.
func (s *Service) DeactivateVariant(ctx context.Context, actor shared.Actor, variantID int64) error {
	if err := s.repo.DeactivateVariant(ctx, variantID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "catalog:variant-deactivate", variantID, nil)
	return nil
}

// StockFor returns the current ledger stock for a product, through the
// snapshot cache when warm.
func (s *Service) StockFor(ctx context.Context, productID int64) (int64, error) {
	if qty, ok := s.snapshot.Get(ctx, productID); ok {
		return qty, nil
	}
	qty, err := s.stock.SumQuantity(ctx, productID, nil)
	if err != nil {
		return 0, err
	}
	s.snapshot.Set(ctx, productID, qty)
	return qty, nil
}

// ListStock joins products with their derived stock. With lowOnly set, only
// rows below minimum stock are returned.
func (s *Service) ListStock(ctx context.Context, filter ProductFilter, lowOnly bool) ([]StockRow, error) {
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}
	stock := []StockRow{}
	for _, p := range products {
		qty, err := s.StockFor(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		row := StockRow{Product: p, Quantity: qty, LowStock: qty < p.MinimumStock}
		if lowOnly && !row.LowStock {
			continue
		}
		stock = append(stock, row)
	}
	return stock, nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
