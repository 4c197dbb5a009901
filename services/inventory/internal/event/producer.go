package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/hellodd/orderflow/pkg/kafka"
	"github.com/hellodd/orderflow/services/inventory/internal/domain"
)

// Event types published by the inventory service.
const (
	EventStockUpdated         = "inventory.stock_updated"
	EventReservationCreated   = "inventory.reserved"
	EventReservationReleased  = "inventory.released"
	EventReservationConfirmed = "inventory.confirmed"
	EventLowStock             = "inventory.low_stock"
)

// Kafka topic constants for inventory domain events.
var (
	TopicStockUpdated         = pkgkafka.Topic("inventory", "stock_updated")
	TopicReservationCreated   = pkgkafka.Topic("inventory", "reserved")
	TopicReservationReleased  = pkgkafka.Topic("inventory", "released")
	TopicReservationConfirmed = pkgkafka.Topic("inventory", "confirmed")
	TopicLowStock             = pkgkafka.Topic("inventory", "low_stock")
)

// AggregateTypeProduct is the aggregate every inventory event belongs to.
const AggregateTypeProduct = "product"

// SourceInventoryService identifies events originating from the inventory service.
const SourceInventoryService = "inventory-service"

// StockUpdatedData is the payload for an inventory.stock_updated event.
type StockUpdatedData struct {
	ProductID     string `json:"product_id"`
	SKU           string `json:"sku"`
	StockLevel    int    `json:"stock_level"`
	ReservedStock int    `json:"reserved_stock"`
	Available     int    `json:"available"`
}

// ReservationData is the payload for reservation lifecycle events.
type ReservationData struct {
	ReservationID string `json:"reservation_id"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	Status        string `json:"status"`
}

// LowStockData is the payload for an inventory.low_stock event.
type LowStockData struct {
	ProductID  string `json:"product_id"`
	SKU        string `json:"sku"`
	StockLevel int    `json:"stock_level"`
	Available  int    `json:"available"`
	Threshold  int    `json:"threshold"`
}

// Producer publishes inventory domain events to Kafka.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the inventory service.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, eventType, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(ctx, eventType, aggregateID, AggregateTypeProduct, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("event_type", eventType),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

// PublishStockUpdated publishes an inventory.stock_updated event.
func (p *Producer) PublishStockUpdated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicStockUpdated, EventStockUpdated, product.ID, StockUpdatedData{
		ProductID:     product.ID,
		SKU:           product.SKU,
		StockLevel:    product.StockLevel,
		ReservedStock: product.ReservedStock,
		Available:     product.Available(),
	})
}

// PublishReservation publishes the lifecycle event matching the
// reservation's current status.
func (p *Producer) PublishReservation(ctx context.Context, res *domain.Reservation) error {
	topic, eventType := TopicReservationCreated, EventReservationCreated
	switch res.Status {
	case domain.ReservationReleased, domain.ReservationExpired:
		topic, eventType = TopicReservationReleased, EventReservationReleased
	case domain.ReservationConfirmed:
		topic, eventType = TopicReservationConfirmed, EventReservationConfirmed
	}

	return p.publish(ctx, topic, eventType, res.ProductID, ReservationData{
		ReservationID: res.ID,
		ProductID:     res.ProductID,
		Quantity:      res.Quantity,
		Status:        string(res.Status),
	})
}

// PublishLowStock publishes an inventory.low_stock event.
func (p *Producer) PublishLowStock(ctx context.Context, product *domain.Product, threshold int) error {
	return p.publish(ctx, TopicLowStock, EventLowStock, product.ID, LowStockData{
		ProductID:  product.ID,
		SKU:        product.SKU,
		StockLevel: product.StockLevel,
		Available:  product.Available(),
		Threshold:  threshold,
	})
}
