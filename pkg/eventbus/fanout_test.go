package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// recordingPublisher counts calls and returns configured errors
type recordingPublisher struct {
	published  []*types.StealthEvent
	publishErr error
	closed     bool
	closeErr   error
}

func (r *recordingPublisher) Publish(_ context.Context, event *types.StealthEvent) error {
	r.published = append(r.published, event)
	return r.publishErr
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return r.closeErr
}

func TestFanout_PublishAll(t *testing.T) {
	first := &recordingPublisher{}
	second := &recordingPublisher{}
	pub := Fanout(first, second)

	event := testEvent()
	require.NoError(t, pub.Publish(context.Background(), event))

	assert.Len(t, first.published, 1)
	assert.Len(t, second.published, 1)
	assert.Same(t, event, first.published[0])
}

func TestFanout_PublishContinuesOnError(t *testing.T) {
	failed := errors.New("sink down")
	first := &recordingPublisher{publishErr: failed}
	second := &recordingPublisher{}
	pub := Fanout(first, second)

	err := pub.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, failed)

	// The failing sink must not shadow delivery to the healthy one.
	assert.Len(t, second.published, 1)
}

func TestFanout_Close(t *testing.T) {
	closeErr := errors.New("close failed")
	first := &recordingPublisher{closeErr: closeErr}
	second := &recordingPublisher{}
	pub := Fanout(first, second)

	err := pub.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, closeErr)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestFanout_SinglePublisherUnwrapped(t *testing.T) {
	only := &recordingPublisher{}
	pub := Fanout(only)

	assert.Same(t, only, pub)
}

func TestFanout_Empty(t *testing.T) {
	pub := Fanout()

	require.NoError(t, pub.Publish(context.Background(), testEvent()))
	require.NoError(t, pub.Close())
}
