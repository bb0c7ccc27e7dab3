// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"rtio/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTransport struct{ closeErr error }

func (f failingTransport) Send(any) error { return errors.New("send failed") }
func (f failingTransport) Close() error   { return f.closeErr }

func TestPublisherSendsToEverySink(t *testing.T) {
	a, b := &utils.MockTransport{}, &utils.MockTransport{}
	var n atomic.Int64
	p := NewPublisher(time.Millisecond, func() any { return n.Add(1) }, a, failingTransport{}, b)

	p.Start()
	p.Start()
	require.Eventually(t, func() bool {
		_, sa := a.Last()
		_, sb := b.Last()
		return sa >= 3 && sb >= 3
	}, 2*time.Second, time.Millisecond)
	p.Stop()
	p.Stop()

	_, before := a.Last()
	time.Sleep(10 * time.Millisecond)
	_, after := a.Last()
	assert.Equal(t, before, after, "publisher kept sending after Stop")

	require.NoError(t, p.Close())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestPublisherCloseJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	p := NewPublisher(0, func() any { return nil }, failingTransport{closeErr: boom})
	assert.Equal(t, DefaultInterval, p.interval)
	assert.ErrorIs(t, p.Close(), boom)
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	assert.NoError(t, lt.Send(map[string]float64{"peak": 0.5}))
	assert.NoError(t, lt.Close())
}

type levels struct {
	ID   string    `json:"id"`
	Peak []float64 `json:"peak"`
}

func TestWebSocketBroadcast(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer wst.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return wst.ClientCount() == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, wst.Send(levels{ID: "in", Peak: []float64{0.25, 0.5}}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got levels
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, levels{ID: "in", Peak: []float64{0.25, 0.5}}, got)

	require.NoError(t, wst.Close())
	assert.Equal(t, 0, wst.ClientCount())
}
