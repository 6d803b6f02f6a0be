package mq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	err    error
	msgs   []amqp.Publishing
	keys   []string
	closed bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeConn struct{ closed bool }

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher("courtbook.events", func() (connection, channel, error) {
		return &fakeConn{}, ch, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "reservation_created", "evt-1", []byte(`{"reservation_id":1}`)))
	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "courtbook.events/reservation_created", ch.keys[0])
	assert.Equal(t, "evt-1", ch.msgs[0].MessageId)
	assert.Equal(t, amqp.Persistent, ch.msgs[0].DeliveryMode)
	assert.Equal(t, "application/json", ch.msgs[0].ContentType)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisher_ReconnectsOnClosedChannel(t *testing.T) {
	stale := &fakeChannel{err: amqp.ErrClosed}
	fresh := &fakeChannel{}
	dials := 0
	p, err := newPublisher("x", func() (connection, channel, error) {
		dials++
		if dials == 1 {
			return &fakeConn{}, stale, nil
		}
		return &fakeConn{}, fresh, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), "voucher_locked", "evt-2", []byte(`{}`)))
	assert.Equal(t, 2, dials)
	assert.True(t, stale.closed)
	assert.Len(t, fresh.msgs, 1)
}

func TestPublisher_Errors(t *testing.T) {
	_, err := newPublisher("x", func() (connection, channel, error) {
		return nil, nil, errors.New("dial rabbitmq: refused")
	}, nil)
	assert.Error(t, err)

	boom := errors.New("boom")
	p, err := newPublisher("x", func() (connection, channel, error) {
		return &fakeConn{}, &fakeChannel{err: boom}, nil
	}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Publish(context.Background(), "t", "id", nil), boom)
}

func TestLogPublisher(t *testing.T) {
	logger := zerolog.Nop()
	assert.NoError(t, LogPublisher{Logger: &logger}.Publish(context.Background(), "t", "id", []byte(`{}`)))
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), "t", "id", []byte(`{}`)))
}
