package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/dgcap/internal/hwstats"
	"firestige.xyz/dgcap/internal/source"
	"firestige.xyz/dgcap/internal/stats"
)

func sample() Sample {
	return Sample{
		Devices: []stats.DeviceSnapshot{{
			Name:         "q0",
			Datagrams:    42,
			LastSequence: 141,
			MagicErrors:  3,
			Ports: []stats.PortSnapshot{
				{Port: 0, Subframes: 10, Bytes: 640, Truncated: 1},
				{Port: 1, Subframes: 5, IntegrityErrors: 2},
			},
		}},
		Queues: []QueueSample{{Name: "q0", Stats: source.QueueStats{Frames: 45, NotDatagram: 3}}},
		Hardware: &hwstats.Snapshot{
			Generator: hwstats.GeneratorCounters{SeqNum: 141, InSubframeCnt: 15},
			Ports:     []hwstats.PortCounters{{TotalSubframes: 10}, {TotalSubframes: 5}},
		},
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(sample)

	expected := `
# HELP dgcap_datagrams_total Datagrams received per queue.
# TYPE dgcap_datagrams_total counter
dgcap_datagrams_total{queue="q0"} 42
# HELP dgcap_last_sequence Sequence number of the last datagram processed.
# TYPE dgcap_last_sequence gauge
dgcap_last_sequence{queue="q0"} 141
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"dgcap_datagrams_total", "dgcap_last_sequence"))

	// 2 + 6 errors + 2 ports * 5 + 4 queue + 5 generator + 2 ports * 9
	assert.Equal(t, 2+6+10+4+5+18, testutil.CollectAndCount(c))
}

func TestCollectorWithoutHardware(t *testing.T) {
	c := NewCollector(func() Sample {
		s := sample()
		s.Hardware = nil
		return s
	})
	assert.Zero(t, testutil.CollectAndCount(c, "dgcap_hw_generator", "dgcap_hw_port"))
	assert.Equal(t, 2, testutil.CollectAndCount(c, "dgcap_subframes_total"))
}

func TestServer(t *testing.T) {
	reg := NewRegistry(NewCollector(sample))
	s := NewServer("127.0.0.1:0", "", reg)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `dgcap_subframe_anomalies_total{kind="integrity",port="1",queue="q0"} 2`)
	assert.Contains(t, string(body), `dgcap_hw_generator{register="seq_num"} 141`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServerStopBeforeStart(t *testing.T) {
	s := NewServer(":0", "/m", NewRegistry(NewCollector(sample)))
	assert.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, ":0", s.Addr())
}

func TestServerBindError(t *testing.T) {
	a := NewServer("127.0.0.1:0", "", NewRegistry(NewCollector(sample)))
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	b := NewServer(a.Addr(), "", NewRegistry(NewCollector(sample)))
	assert.Error(t, b.Start(context.Background()))
}
