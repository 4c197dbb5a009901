package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
	pkgkafka "github.com/hellodd/orderflow/pkg/kafka"
	"github.com/hellodd/orderflow/pkg/saga"
	"github.com/hellodd/orderflow/services/gateway/internal/client"
	"github.com/hellodd/orderflow/services/gateway/internal/domain"
)

type published struct {
	topic string
	event *pkgkafka.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{topic: topic, event: event})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func run(t *testing.T, rec saga.Recorder, releaseErr error) *saga.Report {
	t.Helper()
	coord := saga.NewCoordinator(testLogger(), saga.WithRecorder(rec), saga.WithIDGenerator(func() string { return "saga-1" }))
	return coord.Run(context.Background(), domain.SagaCheckout, []saga.Step{
		saga.NewStep(domain.StepReserveStock,
			func(context.Context) (*client.Reservation, error) { return &client.Reservation{ID: "res-1"}, nil },
			func(context.Context, *client.Reservation) error { return releaseErr },
		),
		saga.NewStep(domain.StepChargePayment,
			func(context.Context) (string, error) { return "", apperrors.PaymentFailed("card declined") },
			nil,
		),
	})
}

func TestRecorder_PublishesCompensationFailed(t *testing.T) {
	pub := &fakePublisher{}
	report := run(t, NewRecorder(pub, testLogger()), errors.New("inventory unreachable"))
	require.Equal(t, saga.StatusCompensationFailed, report.Status)

	require.Len(t, pub.events, 1)
	got := pub.events[0]
	assert.Equal(t, "orderflow.saga.compensation_failed", got.topic)
	assert.Equal(t, "saga.compensation_failed", got.event.EventType)
	assert.Equal(t, "saga-1", got.event.AggregateID)
	assert.Equal(t, domain.SagaCheckout, got.event.Metadata["saga_name"])

	var data struct {
		ReservationID string `json:"reservation_id"`
		Report        struct {
			SagaID        string `json:"saga_id"`
			Compensations []struct {
				Step      string `json:"step"`
				Succeeded bool   `json:"succeeded"`
			} `json:"compensations"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(got.event.Data, &data))
	assert.Equal(t, "res-1", data.ReservationID)
	assert.Equal(t, "saga-1", data.Report.SagaID)
	require.Len(t, data.Report.Compensations, 1)
	assert.Equal(t, domain.StepReserveStock, data.Report.Compensations[0].Step)
	assert.False(t, data.Report.Compensations[0].Succeeded)
}

func TestRecorder_TopicPerStatus(t *testing.T) {
	assert.Equal(t, "orderflow.saga.completed", Topic(saga.StatusCompleted))
	assert.Equal(t, "orderflow.saga.failed", Topic(saga.StatusFailed))

	pub := &fakePublisher{}
	report := run(t, NewRecorder(pub, testLogger()), nil)
	require.Equal(t, saga.StatusFailed, report.Status)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "orderflow.saga.failed", pub.events[0].topic)
}

func TestRecorder_PublishErrorDoesNotChangeOutcome(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	rec := NewRecorder(pub, testLogger())

	report := run(t, rec, nil)
	assert.Equal(t, saga.StatusFailed, report.Status)

	err := rec.Record(context.Background(), report)
	assert.ErrorContains(t, err, "broker down")
}
