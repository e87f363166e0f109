package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	msg, err := NewSheetJob(SheetJob{ClassID: "c1", SessionKey: "2024-03-01_1|x"})
	require.NoError(t, err)

	round := decode(encode(msg))
	assert.Equal(t, TypeSheetRender, round.Type)
	job, err := DecodeSheetJob(round)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01_1|x", job.SessionKey)

	bare := decode("no-separator")
	assert.Empty(t, bare.Type)
	assert.Equal(t, "no-separator", string(bare.Body))
}

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q := NewInMemory(2)

	require.NoError(t, q.Publish(ctx, Message{Type: "a"}))
	require.NoError(t, q.Publish(ctx, Message{Type: "b"}))

	out, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", (<-out).Type)
	assert.Equal(t, "b", (<-out).Type)

	cancel()
	_, open := <-out
	assert.False(t, open)
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "a"}), context.Canceled)
}
