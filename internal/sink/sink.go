// Package sink stores artifacts captured from dbt invocations that ran with
// writes prevented. Every sink implements operation.Sink: failures are logged
// and reported as false, never raised.
package sink

import (
	"strings"
	"time"
)

// Notice announces the objects stored for one operation.
type Notice struct {
	Identifier string    `json:"identifier"`
	Bucket     string    `json:"bucket"`
	Objects    []string  `json:"objects"`
	StoredAt   time.Time `json:"stored_at"`
}

var subjectReplacer = strings.NewReplacer(" ", "_", "*", "_", ">", "_", "\t", "_")

// subjectToken makes s safe as a single NATS subject token.
func subjectToken(s string) string {
	return subjectReplacer.Replace(strings.ReplaceAll(s, ".", "_"))
}
