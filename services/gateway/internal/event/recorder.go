// Package event publishes checkout saga outcomes to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/hellodd/orderflow/pkg/kafka"
	"github.com/hellodd/orderflow/pkg/saga"
	"github.com/hellodd/orderflow/services/gateway/internal/client"
	"github.com/hellodd/orderflow/services/gateway/internal/domain"
)

// AggregateTypeSaga is the aggregate every saga event belongs to.
const AggregateTypeSaga = "saga"

// SourceGateway identifies events originating from the gateway.
const SourceGateway = "gateway"

// Topic returns the topic a report with the given status is published to,
// e.g. orderflow.saga.compensation_failed.
func Topic(status saga.Status) string {
	return pkgkafka.Topic("saga", string(status))
}

// EventType returns the event type for a report status.
func EventType(status saga.Status) string {
	return "saga." + string(status)
}

// ReportData is the payload of every saga event. ReservationID is set when
// the reserve step completed, so inventory can retry a failed release.
type ReportData struct {
	ReservationID string       `json:"reservation_id,omitempty"`
	Report        *saga.Report `json:"report"`
}

// Recorder is a saga.Recorder that publishes each terminal report.
type Recorder struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewRecorder creates a new saga report recorder.
func NewRecorder(kafka pkgkafka.Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{kafka: kafka, logger: logger}
}

// Record publishes report to the topic for its status.
func (r *Recorder) Record(ctx context.Context, report *saga.Report) error {
	data := ReportData{Report: report}
	if res, ok := saga.ResultOf[*client.Reservation](report, domain.StepReserveStock); ok && res != nil {
		data.ReservationID = res.ID
	}

	eventType := EventType(report.Status)
	event, err := pkgkafka.NewEvent(ctx, eventType, report.SagaID, AggregateTypeSaga, SourceGateway, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	event.WithMetadata("saga_name", report.Name)

	if err := r.kafka.Publish(ctx, Topic(report.Status), event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	r.logger.DebugContext(ctx, "published saga report",
		slog.String("event_type", eventType),
		slog.String("saga_id", report.SagaID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

var _ saga.Recorder = (*Recorder)(nil)
