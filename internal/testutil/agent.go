// Package testutil provides helpers for tests: an embedded NATS server and
// an in-process reference agent bound to an ephemeral port.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scarecr0w12/ai-server-management/internal/agent"
)

// StartAgent runs a reference agent on an ephemeral port and returns its
// address. The agent is stopped when the test finishes.
func StartAgent(t *testing.T) string {
	t.Helper()

	srv := agent.NewServer(agent.Config{Addr: "127.0.0.1:0"}, zap.NewNop())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv.Addr()
}
