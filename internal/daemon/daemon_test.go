package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/dgcap/internal/config"
	"firestige.xyz/dgcap/internal/core"
	"firestige.xyz/dgcap/internal/hwstats"
	"firestige.xyz/dgcap/internal/protocol/prototest"
	"firestige.xyz/dgcap/internal/report"
	"firestige.xyz/dgcap/internal/source/sourcetest"
)

type fakeReader struct {
	mu    sync.Mutex
	snaps []hwstats.Snapshot
	err   error
	reads int
}

func (f *fakeReader) ReadSnapshot() (hwstats.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return hwstats.Snapshot{}, f.err
	}
	s := f.snaps[min(f.reads, len(f.snaps)-1)]
	f.reads++
	return s, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Hardware.Enabled = false
	cfg.Report.Interval = 0
	cfg.Report.Format = report.FormatJSON
	cfg.Capture.Ports = 2
	cfg.Capture.PoolSize = 64
	return cfg
}

func datagrams(first uint32, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = prototest.Encode(prototest.Datagram{
			Sequence: first + uint32(i),
			Frames: []prototest.Frame{
				{Port: 0, Body: prototest.Body(60)},
				{Port: 1, Body: prototest.Body(60)},
			},
		})
	}
	return out
}

func decodeFinal(t *testing.T, out []byte) report.Report {
	t.Helper()
	var r report.Report
	dec := json.NewDecoder(bytes.NewReader(out))
	for {
		var next report.Report
		if err := dec.Decode(&next); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		r = next
	}
	require.True(t, r.Final, "last report must be final")
	return r
}

func TestDaemonRunsUntilQueuesExhausted(t *testing.T) {
	cfg := testConfig(t)
	q0 := sourcetest.New("q0", datagrams(100, 5)...)
	q1 := sourcetest.New("q1", datagrams(7, 3)...)

	var out bytes.Buffer
	d := New(cfg, &out, WithQueues(q0, q1))
	require.NoError(t, d.Start())
	require.NoError(t, d.Run())

	r := decodeFinal(t, out.Bytes())
	assert.EqualValues(t, 8, r.Totals.Datagrams)
	assert.Zero(t, r.Totals.SequenceErrors)
	require.Len(t, r.Ports, 2)
	assert.EqualValues(t, 8, r.Ports[0].Subframes)
	assert.EqualValues(t, 8, r.Ports[1].Subframes)
	assert.Nil(t, r.Hardware)
	assert.Contains(t, r.HardwareError, "disabled")

	assert.True(t, q0.Closed())
	assert.True(t, q1.Closed())
	assert.Zero(t, q0.InUse())
}

func TestDaemonShutdownStopsHeldQueues(t *testing.T) {
	cfg := testConfig(t)
	q := sourcetest.New("live", datagrams(1, 2)...)
	q.Hold = true

	var out bytes.Buffer
	d := New(cfg, &out, WithQueues(q))
	require.NoError(t, d.Start())

	done := make(chan error, 1)
	go func() { done <- d.Run() }()

	require.Eventually(t, func() bool { return q.Polls() > 2 }, time.Second, time.Millisecond)
	d.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}

	r := decodeFinal(t, out.Bytes())
	assert.EqualValues(t, 2, r.Totals.Datagrams)
	assert.True(t, q.Closed())
}

func TestDaemonHardwareReconciliation(t *testing.T) {
	cfg := testConfig(t)
	reader := &fakeReader{snaps: []hwstats.Snapshot{
		{Generator: hwstats.GeneratorCounters{SeqNum: 10}, Ports: make([]hwstats.PortCounters, 2)},
		{Generator: hwstats.GeneratorCounters{SeqNum: 250}, Ports: []hwstats.PortCounters{{TotalSubframes: 3}, {}}},
	}}

	var out bytes.Buffer
	d := New(cfg, &out, WithQueues(sourcetest.New("q0", datagrams(1, 1)...)), WithHardwareReader(reader))
	require.NoError(t, d.Start())
	require.NoError(t, d.Run())

	r := decodeFinal(t, out.Bytes())
	require.NotNil(t, r.Hardware)
	assert.EqualValues(t, 240, r.Hardware.Generator.SeqNum)
	assert.EqualValues(t, 3, r.Hardware.Ports[0].TotalSubframes)
}

func TestDaemonHardwareFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	reader := &fakeReader{err: fmt.Errorf("%w: no device", core.ErrSnapshotUnavailable)}

	var out bytes.Buffer
	d := New(cfg, &out, WithQueues(sourcetest.New("q0", datagrams(1, 3)...)), WithHardwareReader(reader))
	require.NoError(t, d.Start())
	require.NoError(t, d.Run())

	r := decodeFinal(t, out.Bytes())
	assert.EqualValues(t, 3, r.Totals.Datagrams)
	assert.Nil(t, r.Hardware)
	assert.Contains(t, r.HardwareError, "no device")
}

func TestDaemonTextReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.Format = report.FormatText

	var out bytes.Buffer
	d := New(cfg, &out, WithQueues(sourcetest.New("q0", datagrams(1, 4)...)))
	require.NoError(t, d.Start())
	require.NoError(t, d.Run())

	assert.Contains(t, out.String(), "DGGEN Frames: 4")
	assert.Contains(t, out.String(), "HW stats unavailable")
}

func TestDaemonPeriodicReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.Interval = 5 * time.Millisecond
	q := sourcetest.New("q0", datagrams(1, 1)...)
	q.Hold = true

	out := &lockedBuffer{}
	d := New(cfg, out, WithQueues(q))
	require.NoError(t, d.Start())

	done := make(chan error, 1)
	go func() { done <- d.Run() }()

	require.Eventually(t, func() bool {
		return bytes.Count(out.Bytes(), []byte(`"final": false`)) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	d.Shutdown()
	require.NoError(t, <-done)

	r := decodeFinal(t, out.Bytes())
	assert.EqualValues(t, 1, r.Totals.Datagrams)
}

func TestDaemonMetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = "127.0.0.1:0"
	q := sourcetest.New("q0", datagrams(1, 2)...)
	q.Hold = true

	var out bytes.Buffer
	d := New(cfg, &out, WithQueues(q))
	require.NoError(t, d.Start())

	require.Eventually(t, func() bool {
		return d.engine.Devices()[0].Datagrams == 2
	}, time.Second, time.Millisecond)

	resp, err := http.Get("http://" + d.metricsServer.Addr() + cfg.Metrics.Path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `dgcap_datagrams_total{queue="q0"} 2`)

	d.Shutdown()
	require.NoError(t, d.Stop())
}

func TestDaemonRequiresQueues(t *testing.T) {
	d := New(testConfig(t), io.Discard)
	err := d.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestDaemonOpensPcapQueues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dggen.pcap")
	writePcap(t, path, datagrams(40, 6))

	cfg := testConfig(t)
	cfg.Capture.Queues = []config.QueueConfig{{Name: "replay", Type: config.QueuePcap, File: path, Encapsulation: "raw"}}

	var out bytes.Buffer
	d := New(cfg, &out)
	require.NoError(t, d.Start())
	require.NoError(t, d.Run())

	r := decodeFinal(t, out.Bytes())
	assert.EqualValues(t, 6, r.Totals.Datagrams)
	require.Len(t, r.Queues, 1)
	assert.Equal(t, "replay", r.Queues[0].Name)
	assert.EqualValues(t, 6, r.Queues[0].Stats.Frames)
}

func TestOpenQueuesFailure(t *testing.T) {
	c := testConfig(t).Capture
	c.Queues = []config.QueueConfig{{Name: "missing", Type: config.QueuePcap, File: "/nonexistent/file.pcap", Encapsulation: "raw"}}
	_, err := openQueues(c)
	assert.Error(t, err)

	c.Queues = []config.QueueConfig{{Name: "odd", Type: "dpdk"}}
	_, err = openQueues(c)
	assert.ErrorContains(t, err, "unknown type")
}

func TestHardwareLayout(t *testing.T) {
	cfg := testConfig(t)
	l := HardwareLayout(cfg.Hardware, 4)
	def := hwstats.DefaultLayout()
	assert.Equal(t, def, l)
}

func writePcap(t *testing.T, path string, frames [][]byte) {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeRaw))
	ts := time.Unix(1700000000, 0)
	for _, f := range frames {
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(f), Length: len(f)}
		require.NoError(t, w.WritePacket(ci, f))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
