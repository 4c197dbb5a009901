package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
	pkgkafka "github.com/hellodd/orderflow/pkg/kafka"
	"github.com/hellodd/orderflow/services/inventory/internal/domain"
)

// TopicSagaCompensationFailed carries reports of sagas whose rollback did
// not finish.
var TopicSagaCompensationFailed = pkgkafka.Topic("saga", "compensation_failed")

// ReserveStockStep is the checkout saga step that holds inventory.
const ReserveStockStep = "reserve_stock"

// InventoryService defines the interface required by the event consumer.
type InventoryService interface {
	ReleaseReservation(ctx context.Context, reservationID string) (*domain.Settlement, error)
}

// CompensationFailedData is the part of a saga.compensation_failed payload
// the inventory service acts on.
type CompensationFailedData struct {
	ReservationID string `json:"reservation_id"`
	Report        struct {
		SagaID        string `json:"saga_id"`
		Name          string `json:"name"`
		Compensations []struct {
			Step      string `json:"step"`
			Succeeded bool   `json:"succeeded"`
			Error     string `json:"error,omitempty"`
		} `json:"compensations"`
	} `json:"report"`
}

// needsRelease reports whether the reserve_stock compensation failed.
func (d *CompensationFailedData) needsRelease() bool {
	for _, c := range d.Report.Compensations {
		if c.Step == ReserveStockStep && !c.Succeeded {
			return true
		}
	}
	return false
}

// Consumer processes incoming Kafka events for the inventory service.
type Consumer struct {
	logger  *slog.Logger
	service InventoryService
}

// NewConsumer creates a new event consumer for the inventory service.
func NewConsumer(service InventoryService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleCompensationFailed retries the stock release that a checkout saga
// could not complete during rollback. Events for other failed steps, or
// without a reservation id, are acknowledged and skipped.
func (c *Consumer) HandleCompensationFailed(ctx context.Context, event *pkgkafka.Event) error {
	var data CompensationFailedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal saga.compensation_failed data: %w", err)
	}

	log := c.logger.With(
		slog.String("saga_id", data.Report.SagaID),
		slog.String("reservation_id", data.ReservationID),
	)

	if !data.needsRelease() {
		log.DebugContext(ctx, "compensation failure does not involve stock, skipping")
		return nil
	}
	if data.ReservationID == "" {
		log.WarnContext(ctx, "reserve_stock compensation failed without a reservation id")
		return nil
	}

	settlement, err := c.service.ReleaseReservation(ctx, data.ReservationID)
	if err != nil {
		// Not found or already confirmed: retrying cannot change the outcome.
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrConflict) {
			log.WarnContext(ctx, "reservation cannot be released", slog.String("error", err.Error()))
			return nil
		}
		return fmt.Errorf("release reservation %s: %w", data.ReservationID, err)
	}

	log.InfoContext(ctx, "released reservation left behind by failed compensation",
		slog.Bool("changed", settlement.Changed),
	)
	return nil
}
