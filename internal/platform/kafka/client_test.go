package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, ParseBrokers(""))
}

func TestNewProducerDisabledWithoutBrokers(t *testing.T) {
	client, err := NewProducer(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewProducerRequiresTopic(t *testing.T) {
	_, err := NewProducer(context.Background(), Config{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
}
