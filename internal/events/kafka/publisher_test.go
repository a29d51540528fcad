package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishMarshalError(t *testing.T) {
	t.Parallel()
	p := NewPublisher([]string{"localhost:9092"}, "ledger.")
	defer p.Close()

	err := p.Publish(context.Background(), "entry_appended", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal entry_appended event")
}

func TestNewPublisher(t *testing.T) {
	t.Parallel()
	p := NewPublisher([]string{"k1:9092", "k2:9092"}, "ledger.")
	defer p.Close()

	assert.Equal(t, "ledger.", p.prefix)
	assert.Contains(t, p.writer.Addr.String(), "k1:9092")
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
}
