package sink

import (
	"context"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/donnguyen19/code42cli/internal/domain"
)

// Kafka publishes one message per record to a Kafka topic, for deployments
// that forward telemetry onto a SIEM bus instead of a syslog receiver.
type Kafka struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewKafka creates a Kafka producer for the given topic. The first broker
// is dialed eagerly so an unreachable cluster is a SinkConfigError before
// extraction starts.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, &domain.SinkConfigError{Dest: topic, Err: fmt.Errorf("no kafka brokers configured")}
	}

	conn, err := kafkago.Dial("tcp", brokers[0])
	if err != nil {
		return nil, &domain.SinkConfigError{Dest: brokers[0], Err: err}
	}
	_ = conn.Close()

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Kafka{writer: w, logger: logger}, nil
}

func (s *Kafka) Write(ctx context.Context, line string) error {
	err := s.writer.WriteMessages(ctx, kafkago.Message{Value: []byte(line)})
	if err != nil {
		return &domain.TransportError{Op: fmt.Sprintf("publish to %s", s.writer.Topic), Err: err}
	}
	return nil
}

func (s *Kafka) Close() error {
	return s.writer.Close()
}
