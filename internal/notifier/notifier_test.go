package notifier

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banyan/banyan/internal/logx"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Type: FrameCancellationNotice, Payload: CancellationPayload("task-123")}
	buf := f.Encode()
	require.Len(t, buf, FrameSize)

	got, err := DecodeFrame(buf[:])
	require.NoError(t, err)
	require.Equal(t, FrameCancellationNotice, got.Type)
	require.Equal(t, f.Payload, got.Payload)
}

func TestCancellationPayloadZeroExtendsShortIDs(t *testing.T) {
	p := CancellationPayload("abc")
	require.Equal(t, byte('a'), p[0])
	require.Equal(t, byte('c'), p[2])
	require.Equal(t, byte(0), p[15])
}

func TestCancellationPayloadTruncatesLongIDs(t *testing.T) {
	p := CancellationPayload("0123456789abcdefghij")
	require.Equal(t, "6789abcdefghij"[:14], string(p[2:16]))
}

func TestNotifierDeliversFrameToWorker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, FrameSize)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	}()

	var deadMu sync.Mutex
	var deadWorker string
	n, err := New(logx.New("test"), func(id string) {
		deadMu.Lock()
		deadWorker = id
		deadMu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, n.Register("w1", ln.Addr().String()))
	require.True(t, n.IsRegistered("w1"))

	require.NoError(t, n.Notify("w1", FrameResourceUsageRequest, [16]byte{}))

	select {
	case data := <-received:
		got, err := DecodeFrame(data)
		require.NoError(t, err)
		require.Equal(t, FrameResourceUsageRequest, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame delivery")
	}

	n.Unregister("w1")
	require.False(t, n.IsRegistered("w1"))
}

func TestNotifyUnknownWorkerFails(t *testing.T) {
	n, err := New(logx.New("test"), nil)
	require.NoError(t, err)
	err = n.Notify("ghost", FrameCancellationNotice, [16]byte{})
	require.Error(t, err)
}
