package bus

import (
	"context"
	"testing"
	"time"

	"metahft/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestQueueTryPublishFull(t *testing.T) {
	q := NewQueue(1)
	s := &schema.MarketSnapshot{Symbol: "9984", Timestamp: time.Unix(100, 0)}

	require.NoError(t, q.TryPublish(SnapshotEvent(q.NextSeq(), s, time.Unix(100, 0))))
	assert.True(t, errors.Is(q.TryPublish(SnapshotEvent(q.NextSeq(), s, time.Unix(100, 0))), ErrQueueFull))
	assert.Equal(t, 1, q.Len())
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue(0)
	q.Close()
	q.Close()

	assert.True(t, errors.Is(q.TryPublish(Event{}), ErrQueueClosed))
	assert.True(t, errors.Is(q.Publish(t.Context(), Event{}), ErrQueueClosed))
}

func TestQueueRunDrainsAfterClose(t *testing.T) {
	q := NewQueue(4)
	at := time.Unix(200, 0)
	require.NoError(t, q.TryPublish(FillEvent(q.NextSeq(), schema.Fill{OrderID: "a", Qty: 100, Timestamp: at})))
	require.NoError(t, q.TryPublish(UpdateEvent(q.NextSeq(), schema.OrderUpdate{OrderID: "a", Status: schema.OrderStatusFilled, Timestamp: at})))
	q.Close()

	var got []Event
	q.Run(t.Context(), func(e Event) { got = append(got, e) })

	require.Len(t, got, 2)
	assert.Equal(t, schema.EventFill, got[0].Header.Type)
	assert.Equal(t, uint64(1), got[0].Header.Seq)
	assert.Equal(t, "a", got[0].Fill.OrderID)
	assert.Equal(t, schema.EventOrderUpdate, got[1].Header.Type)
	assert.True(t, got[1].Valid())
}

func TestQueuePublishHonorsContext(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Publish(t.Context(), Event{}))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Event{}), context.DeadlineExceeded)
}

func TestEventValid(t *testing.T) {
	assert.False(t, Event{}.Valid())
	assert.False(t, Event{Header: schema.EventHeader{Type: schema.EventFill}}.Valid())

	s := &schema.MarketSnapshot{Symbol: "9984", Timestamp: time.Unix(1, 0)}
	e := SnapshotEvent(7, s, time.Unix(1, 5))
	assert.True(t, e.Valid())
	assert.Equal(t, int64(5), e.Header.TsRecv-e.Header.TsEvent)
}
