package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hellodd/orderflow/pkg/database"
	apperrors "github.com/hellodd/orderflow/pkg/errors"
	"github.com/hellodd/orderflow/services/inventory/internal/domain"
)

const productColumns = `id, sku, name, description, price_cents, stock_level, reserved_stock, active, created_at, updated_at`

// InventoryRepository implements both ProductRepository and ReservationRepository using PostgreSQL.
type InventoryRepository struct {
	pool database.DBTX
}

// NewInventoryRepository creates a new PostgreSQL-backed inventory repository.
func NewInventoryRepository(pool database.DBTX) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

func scanProduct(row pgx.Row, extra ...any) (*domain.Product, error) {
	var p domain.Product
	dest := append([]any{
		&p.ID,
		&p.SKU,
		&p.Name,
		&p.Description,
		&p.PriceCents,
		&p.StockLevel,
		&p.ReservedStock,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

// ---------------------------------------------------------------------------
// ProductRepository implementation
// ---------------------------------------------------------------------------

// List returns products ordered by SKU. With InStockOnly set, products with
// nothing left to reserve are skipped.
func (r *InventoryRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	query := `
		SELECT ` + productColumns + `, count(*) OVER() AS total_count
		FROM products
		WHERE active AND ($1 = false OR stock_level > reserved_stock)
		ORDER BY sku ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, filter.InStockOnly, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products   []domain.Product
		totalCount int
	)
	for rows.Next() {
		p, err := scanProduct(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	if products == nil {
		products = []domain.Product{}
	}
	return products, totalCount, nil
}

// GetByID retrieves a product by its unique identifier.
func (r *InventoryRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

// GetBySKU retrieves a product by its SKU.
func (r *InventoryRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE sku = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", sku)
		}
		return nil, fmt.Errorf("get product by sku: %w", err)
	}
	return p, nil
}

// ListLowStock returns active products whose stock level is at or below
// threshold, lowest first.
func (r *InventoryRepository) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE active AND stock_level <= $1
		ORDER BY stock_level ASC, sku ASC`

	rows, err := r.pool.Query(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan low stock row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate low stock rows: %w", err)
	}
	return products, nil
}

// UpdateStock applies op to the stock level of product id. The row is locked
// for the read-modify-write and the new level is clamped at zero.
func (r *InventoryRepository) UpdateStock(ctx context.Context, id string, op domain.StockOperation, quantity int) (*domain.Product, error) {
	var product *domain.Product
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := scanProduct(tx.QueryRow(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NotFound("product", id)
			}
			return fmt.Errorf("lock product: %w", err)
		}

		level, err := op.Apply(p.StockLevel, quantity)
		if err != nil {
			return apperrors.InvalidInput(err.Error())
		}

		err = tx.QueryRow(ctx,
			`UPDATE products SET stock_level = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
			level, id,
		).Scan(&p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update stock level: %w", err)
		}

		p.StockLevel = level
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}
