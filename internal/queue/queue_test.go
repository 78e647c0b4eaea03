package queue

import (
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_DeliversToSubscribers(t *testing.T) {
	q := NewInMemoryQueue(nil)
	got := make(chan TickTrigger, 2)

	for i := 0; i < 2; i++ {
		require.NoError(t, q.Subscribe(TopicTicks, func(body []byte) error {
			tr, err := DecodeTickTrigger(body)
			if err != nil {
				return err
			}
			got <- tr
			return nil
		}))
	}

	require.NoError(t, q.Publish(TopicTicks, NewTickTrigger("test")))
	require.NoError(t, q.Close())

	assert.Len(t, got, 2)
	tr := <-got
	assert.Equal(t, "test", tr.Source)
	assert.False(t, tr.RequestedAt.IsZero())
}

func TestInMemoryQueue_RetriesThenGivesUp(t *testing.T) {
	q := NewInMemoryQueue(nil)
	q.Backoff = time.Millisecond
	var calls atomic.Int32

	require.NoError(t, q.Subscribe("t", func([]byte) error {
		calls.Add(1)
		return errors.New("store unavailable")
	}))
	require.NoError(t, q.Publish("t", NewTickTrigger("test")))
	require.NoError(t, q.Close())

	assert.Equal(t, int32(q.MaxRetries+1), calls.Load())
}

func TestInMemoryQueue_RecoversOnRetry(t *testing.T) {
	q := NewInMemoryQueue(nil)
	q.Backoff = time.Millisecond
	var calls atomic.Int32

	require.NoError(t, q.Subscribe("t", func([]byte) error {
		if calls.Add(1) < 2 {
			return errors.New("transient")
		}
		return nil
	}))
	require.NoError(t, q.Publish("t", map[string]string{"k": "v"}))
	require.NoError(t, q.Close())

	assert.Equal(t, int32(2), calls.Load())
}

func TestInMemoryQueue_NoSubscribers(t *testing.T) {
	q := NewInMemoryQueue(nil)
	err := q.Publish("nobody", NewTickTrigger("test"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no subscribers")
}

func TestDecodeTickTrigger(t *testing.T) {
	tr, err := DecodeTickTrigger(nil)
	require.NoError(t, err)
	assert.Empty(t, tr.Source)

	_, err = DecodeTickTrigger([]byte("{not json"))
	assert.Error(t, err)
}

func TestRetryCountHeaderTypes(t *testing.T) {
	assert.Equal(t, 0, RetryCount(nil))
	assert.Equal(t, 2, RetryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, RetryCount(amqp.Table{retryHeader: int64(3)}))
	assert.Equal(t, 1, RetryCount(amqp.Table{retryHeader: 1}))
	assert.Equal(t, 0, RetryCount(amqp.Table{retryHeader: "x"}))
}

func TestAMQPQueue_RoundTrip(t *testing.T) {
	url := os.Getenv("AMQP_URL")
	if url == "" {
		t.Skip("AMQP_URL not set")
	}
	q, err := DialAMQP(url, nil)
	require.NoError(t, err)
	defer q.Close()

	topic := "campaign_ticks_test_" + time.Now().Format("150405.000000")
	got := make(chan TickTrigger, 1)
	require.NoError(t, q.Subscribe(topic, func(body []byte) error {
		tr, err := DecodeTickTrigger(body)
		if err == nil {
			got <- tr
		}
		return err
	}))
	require.NoError(t, q.Publish(topic, NewTickTrigger("amqp-test")))

	select {
	case tr := <-got:
		assert.Equal(t, "amqp-test", tr.Source)
	case <-time.After(5 * time.Second):
		t.Fatal("trigger not delivered")
	}
}
