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

const reservationColumns = `id, product_id, quantity, status, expires_at, created_at, updated_at`

const (
	lockProductQuery     = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	lockReservationQuery = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`

	releaseStockQuery = `
		UPDATE products
		SET reserved_stock = GREATEST(reserved_stock - $1, 0), updated_at = NOW()
		WHERE id = $2
		RETURNING ` + productColumns

	confirmStockQuery = `
		UPDATE products
		SET stock_level = GREATEST(stock_level - $1, 0),
			reserved_stock = GREATEST(reserved_stock - $1, 0),
			updated_at = NOW()
		WHERE id = $2
		RETURNING ` + productColumns
)

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		res    domain.Reservation
		status string
	)
	err := row.Scan(
		&res.ID,
		&res.ProductID,
		&res.Quantity,
		&status,
		&res.ExpiresAt,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.Status = domain.ReservationStatus(status)
	return &res, nil
}

// ---------------------------------------------------------------------------
// ReservationRepository implementation
// ---------------------------------------------------------------------------

// Reserve locks the product, checks availability and stores res together
// with the increased reserved stock.
func (r *InventoryRepository) Reserve(ctx context.Context, res *domain.Reservation) (product *domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, "ReserveStock", lockProductQuery)
	defer func() { end(err) }()

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := scanProduct(tx.QueryRow(ctx, lockProductQuery, res.ProductID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NotFound("product", res.ProductID)
			}
			return fmt.Errorf("lock product: %w", err)
		}
		if !p.Active {
			return apperrors.NotFound("product", res.ProductID)
		}
		if !p.CanReserve(res.Quantity) {
			return apperrors.InsufficientStock(p.SKU, res.Quantity, p.Available())
		}

		err = tx.QueryRow(ctx,
			`UPDATE products SET reserved_stock = reserved_stock + $1, updated_at = NOW() WHERE id = $2 RETURNING reserved_stock, updated_at`,
			res.Quantity, res.ProductID,
		).Scan(&p.ReservedStock, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("increase reserved stock: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO reservations (`+reservationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			res.ID, res.ProductID, res.Quantity, string(res.Status),
			res.ExpiresAt, res.CreatedAt, res.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}

		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// GetReservation retrieves a reservation by its unique identifier.
func (r *InventoryRepository) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reservation", id)
		}
		return nil, fmt.Errorf("get reservation by id: %w", err)
	}
	return res, nil
}

// Release returns the held stock of reservation id.
func (r *InventoryRepository) Release(ctx context.Context, id string) (*domain.Settlement, error) {
	return r.settle(ctx, "ReleaseReservation", id, domain.ReservationReleased)
}

// Confirm turns the hold of reservation id into a stock deduction.
func (r *InventoryRepository) Confirm(ctx context.Context, id string) (*domain.Settlement, error) {
	return r.settle(ctx, "ConfirmReservation", id, domain.ReservationConfirmed)
}

// Expire releases reservation id and marks it expired.
func (r *InventoryRepository) Expire(ctx context.Context, id string) (*domain.Settlement, error) {
	return r.settle(ctx, "ExpireReservation", id, domain.ReservationExpired)
}

// settle moves a holding reservation to target. A reservation already in
// target, or already released when target also releases, is left alone.
// Any other transition out of a final state is a conflict.
func (r *InventoryRepository) settle(ctx context.Context, operation, id string, target domain.ReservationStatus) (settlement *domain.Settlement, err error) {
	ctx, end := database.TraceQuery(ctx, operation, lockReservationQuery)
	defer func() { end(err) }()

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		res, err := scanReservation(tx.QueryRow(ctx, lockReservationQuery, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NotFound("reservation", id)
			}
			return fmt.Errorf("lock reservation: %w", err)
		}

		if !res.Holding() {
			if res.Status == target || (target != domain.ReservationConfirmed && res.Released()) {
				settlement = &domain.Settlement{Reservation: res}
				return nil
			}
			return apperrors.Conflict(fmt.Sprintf("reservation %s is already %s", id, res.Status))
		}

		stockQuery := releaseStockQuery
		if target == domain.ReservationConfirmed {
			stockQuery = confirmStockQuery
		}
		p, err := scanProduct(tx.QueryRow(ctx, stockQuery, res.Quantity, res.ProductID))
		if err != nil {
			return fmt.Errorf("settle product stock: %w", err)
		}

		err = tx.QueryRow(ctx,
			`UPDATE reservations SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
			string(target), id,
		).Scan(&res.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update reservation status: %w", err)
		}
		res.Status = target

		settlement = &domain.Settlement{Reservation: res, Product: p, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// ListExpired returns holding reservations whose expiry has passed, oldest first.
func (r *InventoryRepository) ListExpired(ctx context.Context, limit int) ([]domain.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = 'reserved' AND expires_at < NOW()
		ORDER BY expires_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	reservations := []domain.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation row: %w", err)
		}
		reservations = append(reservations, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation rows: %w", err)
	}
	return reservations, nil
}
