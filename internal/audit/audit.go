// Package audit provides write-only audit recorders. The engine logs a
// record after every task and at the end of every run; recorder failures are
// logged and swallowed, never propagated as fatal.
package audit

import (
	"context"
)

// Recorder stores free-text audit records tagged with a server identifier
// and category tags. Returns true when the record was accepted.
type Recorder interface {
	Record(ctx context.Context, content, serverID string, tags []string) bool
}

// Nop discards every record
type Nop struct{}

// Record implements Recorder
func (Nop) Record(ctx context.Context, content, serverID string, tags []string) bool {
	return true
}
