package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs      []kafka.Message
	err       error
	i         int
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Consume_CallsHandlerAndCommits(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v"), Offset: 7}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr, "sensor.readings", nil)

	var gotK, gotV []byte
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error {
		gotK, gotV = k, v
		return nil
	})
	require.Error(t, err)
	require.Equal(t, []byte("k"), gotK)
	require.Equal(t, []byte("v"), gotV)
	require.Equal(t, []int64{7}, fr.committed)
}

func TestConsumer_Consume_HandlerErrorStopsWithoutCommit(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}}}
	c := newConsumerWithReader(fr, "sensor.readings", nil)

	want := errors.New("handler failed")
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error { return want })
	require.ErrorIs(t, err, want)
	require.Empty(t, fr.committed)
}

func TestConsumer_Consume_DroppedMessagesAreCommitted(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Value: []byte("bad"), Offset: 1}, {Value: []byte("good"), Offset: 2}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr, "sensor.readings", nil)

	var handled []string
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error {
		handled = append(handled, string(v))
		if string(v) == "bad" {
			return Drop(errors.New("malformed"))
		}
		return nil
	})
	require.Error(t, err)
	require.Equal(t, []string{"bad", "good"}, handled)
	require.Equal(t, []int64{1, 2}, fr.committed)
}

func TestConsumer_Consume_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newConsumerWithReader(&fakeReader{err: context.Canceled}, "t", nil)
	require.ErrorIs(t, c.Consume(ctx, func(context.Context, []byte, []byte) error { return nil }), context.Canceled)
}

func TestDrop_Nil(t *testing.T) {
	require.NoError(t, Drop(nil))
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer([]string{"localhost:0"}, "t", "g", nil)
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}
