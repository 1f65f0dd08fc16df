//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donnguyen19/code42cli/internal/domain"
	"github.com/donnguyen19/code42cli/internal/extract"
	"github.com/donnguyen19/code42cli/internal/format"
	"github.com/donnguyen19/code42cli/internal/observability"
	"github.com/donnguyen19/code42cli/internal/sink"
)

func TestKafkaSink_DeliversPageInOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	topic := "security-events"
	createTopic(t, broker, topic)

	kafkaSink, err := sink.NewKafka([]string{broker}, topic, discardLogger())
	require.NoError(t, err)
	defer func() { _ = kafkaSink.Close() }()

	handler := extract.NewHandler(
		format.NewJSON(),
		[]sink.Sink{kafkaSink},
		discardLogger(),
		observability.NewMetricsForTesting(),
	)

	base := time.Date(2026, time.May, 10, 11, 0, 0, 0, time.UTC)
	page := domain.Page{}
	for i := 0; i < 5; i++ {
		observed := base.Add(time.Duration(i) * time.Minute)
		raw := fmt.Sprintf(`{"eventId":"evt-%d","insertionTimestamp":%q}`, i, observed.Format("2006-01-02T15:04:05.000Z"))
		page.Events = append(page.Events, domain.Event{Raw: []byte(raw), Observed: observed})
	}

	delivered, err := handler.Handle(ctx, page)
	require.NoError(t, err)
	require.Equal(t, 5, delivered)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("integration-test-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for i := 0; i < 5; i++ {
		readCtx, readCancel := context.WithTimeout(ctx, 45*time.Second)
		msg, err := reader.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read message %d", i)

		var record map[string]string
		require.NoError(t, json.Unmarshal(msg.Value, &record))
		assert.Equal(t, fmt.Sprintf("evt-%d", i), record["eventId"], "records must arrive in API order")
	}
}
