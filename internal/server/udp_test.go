package server

import (
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/studentmarks-service/internal/client"
	"github.com/skypro1111/studentmarks-service/internal/config"
	"github.com/skypro1111/studentmarks-service/internal/metrics"
	"github.com/skypro1111/studentmarks-service/internal/protocol"
)

func startTestResponder(t *testing.T, records []protocol.StudentRecord) (*UDPResponder, *metrics.Metrics) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.NewMetrics(prometheus.NewRegistry())

	cfg := &config.MarkListConfig{BindAddress: "127.0.0.1", Port: 0, Records: records}
	r, err := NewUDPResponder(cfg, logger, m)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	t.Cleanup(func() { r.Stop() })

	return r, m
}

func TestResponderServesClient(t *testing.T) {
	records := []protocol.StudentRecord{{Name: "alice", Mark: 90}, {Name: "bob", Mark: 75}}
	r, m := startTestResponder(t, records)

	got, err := client.FetchRecords("127.0.0.1", r.Addr().Port, time.Second)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	stats := r.GetStatistics()
	assert.Equal(t, uint64(1), stats.RequestsReceived)
	assert.Equal(t, uint64(1), stats.RepliesSent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepliesSent))
}

func TestResponderSetRecords(t *testing.T) {
	r, _ := startTestResponder(t, nil)

	got, err := client.FetchRecords("127.0.0.1", r.Addr().Port, time.Second)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, r.SetRecords([]protocol.StudentRecord{{Name: "carol", Mark: 60}}))

	got, err = client.FetchRecords("127.0.0.1", r.Addr().Port, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []protocol.StudentRecord{{Name: "carol", Mark: 60}}, got)

	assert.Error(t, r.SetRecords([]protocol.StudentRecord{{Name: "a-name-that-is-too-long", Mark: 1}}))
}

func TestResponderIgnoresInvalidRequests(t *testing.T) {
	r, m := startTestResponder(t, []protocol.StudentRecord{{Name: "alice", Mark: 90}})

	conn, err := net.Dial("udp", r.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	buf := make([]byte, protocol.MaxResponseSize)
	_, err = conn.Read(buf)
	assert.Error(t, err, "invalid requests must not be answered")

	assert.Eventually(t, func() bool {
		return r.GetStatistics().InvalidRequests == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidRequests))
	assert.Equal(t, uint64(0), r.GetStatistics().RepliesSent)
}

func TestResponderStopped(t *testing.T) {
	r, _ := startTestResponder(t, []protocol.StudentRecord{{Name: "alice", Mark: 90}})
	port := r.Addr().Port

	require.NoError(t, r.Stop())

	_, err := client.FetchRecords("127.0.0.1", port, 50*time.Millisecond)
	assert.ErrorIs(t, err, client.ErrTimeout)
}
