package alert

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSNotifier(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("dbtflow.alerts.*")
	require.NoError(t, err)

	n := NewNATSNotifier(nc, "dbtflow.alerts", StatusFailure, nil)
	require.True(t, n.Notify(context.Background(), "wf--test--dev--debug"))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "dbtflow.alerts.failure", msg.Subject)

	var p Payload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, "wf--test--dev--debug", p.Identifier)
	assert.Equal(t, StatusFailure, p.Status)
}

func TestNATSNotifier_Closed(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	nc.Close()

	assert.False(t, NewNATSNotifier(nc, "dbtflow.alerts", StatusSuccess, nil).Notify(context.Background(), "id"))
}
