package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TopicSpec describes a topic the service publishes to.
type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// EnsureTopics creates whichever of topics the cluster does not have yet. It talks
// to the controller broker since only it accepts CreateTopics.
func EnsureTopics(ctx context.Context, brokerURLs []string, topics []TopicSpec, logger *zap.Logger) error {
	if len(brokerURLs) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokerURLs[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker %s: %w", brokerURLs[0], err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("failed to read kafka metadata: %w", err)
	}
	missing := missingTopics(topics, partitions)
	if len(missing) == 0 {
		logger.Info("Kafka topics already present.")
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	// Another instance may create the same topic between the metadata read and here.
	if err := controllerConn.CreateTopics(missing...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create kafka topics: %w", err)
	}
	names := make([]string, 0, len(missing))
	for _, cfg := range missing {
		names = append(names, cfg.Topic)
	}
	logger.Info("Kafka topics created.", zap.Strings("topics", names))
	return nil
}

func missingTopics(topics []TopicSpec, existing []kafka.Partition) []kafka.TopicConfig {
	present := make(map[string]bool, len(existing))
	for _, p := range existing {
		present[p.Topic] = true
	}
	var missing []kafka.TopicConfig
	for _, spec := range topics {
		if spec.Name == "" || present[spec.Name] {
			continue
		}
		present[spec.Name] = true
		missing = append(missing, kafka.TopicConfig{
			Topic:             spec.Name,
			NumPartitions:     max(spec.Partitions, 1),
			ReplicationFactor: max(spec.ReplicationFactor, 1),
		})
	}
	return missing
}
