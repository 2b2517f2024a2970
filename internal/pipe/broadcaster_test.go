package pipe

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_PublishFansOutToAllSubscribers(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := New(listener)
	done := make(chan struct{})
	go b.Serve(done)
	defer close(done)

	subA, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer subA.Close()

	subB, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer subB.Close()

	require.Eventually(t, func() bool { return b.SubscriberCount() == 2 }, time.Second, 5*time.Millisecond)

	b.Publish([]byte(`{"usn":1}`))

	readerA := bufio.NewReader(subA)
	lineA, err := readerA.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"usn\":1}\n", lineA)

	readerB := bufio.NewReader(subB)
	lineB, err := readerB.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"usn\":1}\n", lineB)
}

func TestBroadcaster_PublishWithNoSubscribersIsANoOp(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := New(listener)
	done := make(chan struct{})
	go b.Serve(done)
	defer close(done)

	assert.NotPanics(t, func() { b.Publish([]byte("hello")) })
}

func TestBroadcaster_EvictsClosedSubscriber(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := New(listener)
	done := make(chan struct{})
	go b.Serve(done)
	defer close(done)

	sub, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	sub.Close()

	// The first publish after close may still appear to succeed (half-open
	// socket), but the subscriber is evicted within a couple of attempts.
	for i := 0; i < 5; i++ {
		b.Publish([]byte("ping"))
		if b.SubscriberCount() == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(t, 0, b.SubscriberCount())
}
