package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
	"github.com/hellodd/orderflow/services/inventory/internal/domain"
)

func sampleReservation(status domain.ReservationStatus) domain.Reservation {
	return domain.Reservation{
		ID:        "res-1",
		ProductID: "prod-1",
		Quantity:  3,
		Status:    status,
		ExpiresAt: testTime.Add(15 * time.Minute),
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

func reservationRows(rs ...domain.Reservation) *pgxmock.Rows {
	rows := pgxmock.NewRows(reservationCols)
	for _, r := range rs {
		rows.AddRow(r.ID, r.ProductID, r.Quantity, string(r.Status), r.ExpiresAt, r.CreatedAt, r.UpdatedAt)
	}
	return rows
}

// ---------------------------------------------------------------------------
// Reserve
// ---------------------------------------------------------------------------

func TestInventoryRepository_Reserve(t *testing.T) {
	repo, mock := setupRepo(t)
	p := sampleProduct()
	res := sampleReservation(domain.ReservationReserved)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM products WHERE id = .+ FOR UPDATE").
		WithArgs(p.ID).
		WillReturnRows(productRows(p))
	mock.ExpectQuery("UPDATE products SET reserved_stock = reserved_stock \\+").
		WithArgs(3, p.ID).
		WillReturnRows(pgxmock.NewRows([]string{"reserved_stock", "updated_at"}).AddRow(13, testTime))
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs(res.ID, res.ProductID, res.Quantity, "reserved", res.ExpiresAt, res.CreatedAt, res.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	got, err := repo.Reserve(context.Background(), &res)
	require.NoError(t, err)
	assert.Equal(t, 13, got.ReservedStock)
	assert.Equal(t, 37, got.Available())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Reserve_InsufficientStock(t *testing.T) {
	repo, mock := setupRepo(t)
	p := sampleProduct()
	p.StockLevel, p.ReservedStock = 5, 4
	res := sampleReservation(domain.ReservationReserved)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(p.ID).WillReturnRows(productRows(p))
	mock.ExpectRollback()

	_, err := repo.Reserve(context.Background(), &res)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficient)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
	assert.Contains(t, appErr.Message, "available 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Reserve_InactiveProduct(t *testing.T) {
	repo, mock := setupRepo(t)
	p := sampleProduct()
	p.Active = false
	res := sampleReservation(domain.ReservationReserved)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(p.ID).WillReturnRows(productRows(p))
	mock.ExpectRollback()

	_, err := repo.Reserve(context.Background(), &res)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInventoryRepository_Reserve_UnknownProduct(t *testing.T) {
	repo, mock := setupRepo(t)
	res := sampleReservation(domain.ReservationReserved)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(res.ProductID).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Reserve(context.Background(), &res)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetReservation
// ---------------------------------------------------------------------------

func TestInventoryRepository_GetReservation(t *testing.T) {
	repo, mock := setupRepo(t)
	res := sampleReservation(domain.ReservationConfirmed)

	mock.ExpectQuery("SELECT .+ FROM reservations WHERE id").
		WithArgs(res.ID).
		WillReturnRows(reservationRows(res))

	got, err := repo.GetReservation(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, got.Status)

	mock.ExpectQuery("SELECT .+ FROM reservations WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetReservation(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Release / Confirm / Expire
// ---------------------------------------------------------------------------

func TestInventoryRepository_Release(t *testing.T) {
	repo, mock := setupRepo(t)
	res := sampleReservation(domain.ReservationReserved)
	p := sampleProduct()
	p.ReservedStock = 7

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM reservations WHERE id = .+ FOR UPDATE").
		WithArgs(res.ID).
		WillReturnRows(reservationRows(res))
	mock.ExpectQuery("SET reserved_stock = GREATEST").
		WithArgs(3, res.ProductID).
		WillReturnRows(productRows(p))
	mock.ExpectQuery("UPDATE reservations SET status").
		WithArgs("released", res.ID).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(testTime.Add(time.Minute)))
	mock.ExpectCommit()

	s, err := repo.Release(context.Background(), res.ID)
	require.NoError(t, err)
	assert.True(t, s.Changed)
	assert.Equal(t, domain.ReservationReleased, s.Reservation.Status)
	assert.Equal(t, 7, s.Product.ReservedStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Release_Idempotent(t *testing.T) {
	for _, status := range []domain.ReservationStatus{domain.ReservationReleased, domain.ReservationExpired} {
		t.Run(string(status), func(t *testing.T) {
			repo, mock := setupRepo(t)
			res := sampleReservation(status)

			mock.ExpectBegin()
			mock.ExpectQuery("FROM reservations WHERE id = .+ FOR UPDATE").
				WithArgs(res.ID).
				WillReturnRows(reservationRows(res))
			mock.ExpectCommit()

			s, err := repo.Release(context.Background(), res.ID)
			require.NoError(t, err)
			assert.False(t, s.Changed)
			assert.Nil(t, s.Product)
			assert.Equal(t, status, s.Reservation.Status)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestInventoryRepository_Release_ConfirmedConflicts(t *testing.T) {
	repo, mock := setupRepo(t)
	res := sampleReservation(domain.ReservationConfirmed)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(res.ID).WillReturnRows(reservationRows(res))
	mock.ExpectRollback()

	_, err := repo.Release(context.Background(), res.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Confirm(t *testing.T) {
	repo, mock := setupRepo(t)
	res := sampleReservation(domain.ReservationReserved)
	p := sampleProduct()
	p.StockLevel, p.ReservedStock = 47, 7

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(res.ID).WillReturnRows(reservationRows(res))
	mock.ExpectQuery("SET stock_level = GREATEST").
		WithArgs(3, res.ProductID).
		WillReturnRows(productRows(p))
	mock.ExpectQuery("UPDATE reservations SET status").
		WithArgs("confirmed", res.ID).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(testTime))
	mock.ExpectCommit()

	s, err := repo.Confirm(context.Background(), res.ID)
	require.NoError(t, err)
	assert.True(t, s.Changed)
	assert.Equal(t, domain.ReservationConfirmed, s.Reservation.Status)
	assert.Equal(t, 47, s.Product.StockLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Confirm_Twice(t *testing.T) {
	repo, mock := setupRepo(t)
	res := sampleReservation(domain.ReservationConfirmed)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(res.ID).WillReturnRows(reservationRows(res))
	mock.ExpectCommit()

	s, err := repo.Confirm(context.Background(), res.ID)
	require.NoError(t, err)
	assert.False(t, s.Changed)
}

func TestInventoryRepository_Confirm_ReleasedConflicts(t *testing.T) {
	repo, mock := setupRepo(t)
	res := sampleReservation(domain.ReservationReleased)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(res.ID).WillReturnRows(reservationRows(res))
	mock.ExpectRollback()

	_, err := repo.Confirm(context.Background(), res.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestInventoryRepository_Expire(t *testing.T) {
	repo, mock := setupRepo(t)
	res := sampleReservation(domain.ReservationReserved)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(res.ID).WillReturnRows(reservationRows(res))
	mock.ExpectQuery("SET reserved_stock = GREATEST").
		WithArgs(3, res.ProductID).
		WillReturnRows(productRows(sampleProduct()))
	mock.ExpectQuery("UPDATE reservations SET status").
		WithArgs("expired", res.ID).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(testTime))
	mock.ExpectCommit()

	s, err := repo.Expire(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, s.Reservation.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Settle_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Release(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// ListExpired
// ---------------------------------------------------------------------------

func TestInventoryRepository_ListExpired(t *testing.T) {
	repo, mock := setupRepo(t)
	a, b := sampleReservation(domain.ReservationReserved), sampleReservation(domain.ReservationReserved)
	b.ID = "res-2"

	mock.ExpectQuery("FROM reservations WHERE status = 'reserved' AND expires_at < NOW").
		WithArgs(100).
		WillReturnRows(reservationRows(a, b))

	got, err := repo.ListExpired(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "res-2", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
