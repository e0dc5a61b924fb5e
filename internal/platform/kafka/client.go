// Package kafka builds franz-go clients for the audit mirror.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config configures the producer side of the audit mirror.
type Config struct {
	Brokers           []string
	ClientID          string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer connects a producer client whose default topic is cfg.Topic.
// Returns nil when no brokers are configured (Kafka disabled).
func NewProducer(ctx context.Context, cfg Config) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: audit topic is required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.RecordRetries(5),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping: %w", err)
	}
	return client, nil
}

// EnsureTopic creates cfg.Topic when it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, cfg Config) error {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, partitions, replication, nil, cfg.Topic)
	if err != nil {
		if errors.Is(err, kerr.TopicAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create topic %s: %w", cfg.Topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", cfg.Topic, resp.Err)
	}
	return nil
}
