package endpoint

import (
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	local, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	remote, ok := <-accepted
	require.True(t, ok)

	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})
	return local, remote
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func requireNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()

	select {
	case ev := <-events:
		t.Fatalf("unexpected %s event", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnReadsOnlyWhenEnabled(t *testing.T) {
	local, remote := tcpPair(t)
	events := make(chan Event, 8)
	c := New(local, events, Config{})
	defer c.Close()

	_, err := remote.Write([]byte("hello"))
	require.NoError(t, err)

	requireNoEvent(t, events)
	require.Zero(t, c.InputLen())

	c.EnableRead()
	require.True(t, c.ReadEnabled())

	ev := nextEvent(t, events)
	require.Equal(t, Readable, ev.Kind)
	require.Same(t, c, ev.Source)
	require.Equal(t, []byte("hello"), c.TakeInput())
	require.Nil(t, c.TakeInput())
}

func TestConnWriteFlushesAndDrains(t *testing.T) {
	local, remote := tcpPair(t)
	events := make(chan Event, 8)
	c := New(local, events, Config{})
	defer c.Close()

	c.Write([]byte("abc"))
	require.Equal(t, 3, c.OutputLen())

	_ = remote.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, err := remote.Read(make([]byte, 3))
	require.True(t, errors.Is(err, os.ErrDeadlineExceeded), "data sent while write disabled: %v", err)

	c.EnableWrite()
	ev := nextEvent(t, events)
	require.Equal(t, Drained, ev.Kind)
	require.Zero(t, c.OutputLen())

	_ = remote.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 3)
	_, err = io.ReadFull(remote, buf)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf))
}

func TestConnDrainedRespectsLowWater(t *testing.T) {
	local, remote := tcpPair(t)
	events := make(chan Event, 64)
	c := New(local, events, Config{ReadSize: 4})
	defer c.Close()

	c.SetLowWater(4)
	c.Write([]byte("0123456789ab"))
	c.EnableWrite()

	buf := make([]byte, 12)
	_, err := io.ReadFull(remote, buf)
	require.NoError(t, err)

	// Chunks leave 8, 4 and 0 bytes queued; only the last two are at or
	// below the mark.
	require.Equal(t, Drained, nextEvent(t, events).Kind)
	require.Equal(t, Drained, nextEvent(t, events).Kind)
	requireNoEvent(t, events)
}

func TestConnEOF(t *testing.T) {
	local, remote := tcpPair(t)
	events := make(chan Event, 8)
	c := New(local, events, Config{})
	defer c.Close()

	c.EnableRead()
	require.NoError(t, remote.Close())

	ev := nextEvent(t, events)
	require.Equal(t, EOF, ev.Kind)
	require.NoError(t, ev.Err)
}

func TestConnCloseStopsEvents(t *testing.T) {
	local, remote := tcpPair(t)
	events := make(chan Event)
	c := New(local, events, Config{})

	c.EnableRead()
	c.EnableWrite()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	c.Wait()

	require.True(t, c.Closed())
	require.False(t, c.ReadEnabled())

	c.Write([]byte("dropped"))
	require.Zero(t, c.OutputLen())

	_ = remote.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := remote.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}
