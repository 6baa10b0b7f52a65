package transport

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scarecr0w12/ai-server-management/internal/testutil"
)

func newTestClient(t *testing.T, addr string, timeout time.Duration) *Client {
	t.Helper()
	client := NewClient(Config{Addr: addr, ResponseTimeout: timeout}, zap.NewNop())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientRoundTrip(t *testing.T) {
	addr := testutil.StartAgent(t)
	client := newTestClient(t, addr, 5*time.Second)
	require.NoError(t, client.Connect(context.Background()))

	t.Run("Get Server Status", func(t *testing.T) {
		resp, err := client.GetServerStatus(context.Background(), "srv1")
		require.NoError(t, err)
		assert.Equal(t, "ok", resp["status"])
		assert.Equal(t, "srv1", resp["server_id"])
		assert.NotNil(t, resp["server_status"])
	})

	t.Run("Execute Command", func(t *testing.T) {
		resp, err := client.ExecuteCommand(context.Background(), "srv1", "df -h")
		require.NoError(t, err)
		assert.Equal(t, "ok", resp["status"])
		assert.Contains(t, resp["output"], "df -h")
	})

	t.Run("Unknown Request Type", func(t *testing.T) {
		resp, err := client.Send(context.Background(), map[string]interface{}{
			"type": "NOT_A_REQUEST",
		})
		require.Error(t, err)
		assert.Equal(t, KindRemote, KindOf(err))
		assert.Equal(t, "error", resp["status"])
	})

	t.Run("Sequential Requests Reuse Connection", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, err := client.GetServerStatus(context.Background(), "srv1")
			require.NoError(t, err)
		}
	})
}

func TestClientNotConnected(t *testing.T) {
	client := newTestClient(t, "127.0.0.1:1", 100*time.Millisecond)

	_, err := client.GetServerStatus(context.Background(), "srv1")
	require.Error(t, err)
	assert.Equal(t, KindDisconnected, KindOf(err))
}

func TestClientConnectFailure(t *testing.T) {
	// Nothing listens here
	client := newTestClient(t, "127.0.0.1:1", 100*time.Millisecond)

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindDisconnected, KindOf(err))
	assert.False(t, client.Connected())
}

// silentListener accepts connections and never responds
func silentListener(t *testing.T) (string, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	return ln.Addr().String(), func() {
		ln.Close()
		mu.Lock()
		for _, conn := range conns {
			conn.Close()
		}
		mu.Unlock()
	}
}

func TestClientTimeout(t *testing.T) {
	addr, cleanup := silentListener(t)
	defer cleanup()

	client := newTestClient(t, addr, 100*time.Millisecond)
	require.NoError(t, client.Connect(context.Background()))

	start := time.Now()
	_, err := client.GetServerStatus(context.Background(), "srv1")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestClientContextDeadline(t *testing.T) {
	addr, cleanup := silentListener(t)
	defer cleanup()

	client := newTestClient(t, addr, 5*time.Second)
	require.NoError(t, client.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.GetServerStatus(ctx, "srv1")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDisconnectReleasesWaiter(t *testing.T) {
	addr, cleanup := silentListener(t)

	client := newTestClient(t, addr, 5*time.Second)
	require.NoError(t, client.Connect(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := client.GetServerStatus(context.Background(), "srv1")
		errCh <- err
	}()

	// Drop the connection while the sender is blocked
	time.Sleep(50 * time.Millisecond)
	cleanup()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Equal(t, KindDisconnected, KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after disconnect")
	}
	assert.False(t, client.Connected())
}

func TestReaderDropsUnsolicitedFrames(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		dec := json.NewDecoder(conn)
		enc := json.NewEncoder(conn)

		var req map[string]interface{}
		if err := dec.Decode(&req); err != nil {
			return
		}
		// An unaddressed frame first, then the real response
		enc.Encode(map[string]interface{}{"notice": "broadcast"})
		enc.Encode(map[string]interface{}{
			"response_to": req["type"],
			"status":      "ok",
			"server_id":   req["server_id"],
		})
	}()

	client := newTestClient(t, ln.Addr().String(), 2*time.Second)
	require.NoError(t, client.Connect(context.Background()))

	resp, err := client.GetServerStatus(context.Background(), "srv1")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
}

func TestClientReconnect(t *testing.T) {
	addr := testutil.StartAgent(t)
	client := newTestClient(t, addr, 2*time.Second)

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Close())

	// Reader exit is asynchronous to Close
	require.Eventually(t, func() bool { return !client.Connected() },
		time.Second, 10*time.Millisecond)

	require.NoError(t, client.Connect(context.Background()))
	resp, err := client.GetServerStatus(context.Background(), "srv1")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
}
