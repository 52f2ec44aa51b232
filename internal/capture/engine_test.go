package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/dgcap/internal/protocol/prototest"
	"firestige.xyz/dgcap/internal/source"
	"firestige.xyz/dgcap/internal/source/sourcetest"
	"firestige.xyz/dgcap/internal/stats"
)

func TestEngineRunsOneWorkerPerQueue(t *testing.T) {
	q0 := sourcetest.New("q0", good(1, frame20(0)), good(2, frame20(1)))
	q1 := sourcetest.New("q1", good(70, frame20(1), frame20(3)))

	e := NewEngine([]source.Queue{q0, q1}, 4, Config{})
	e.Run(context.Background())

	devs := e.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, "q0", devs[0].Name)
	assert.Equal(t, 1, devs[1].ID)
	assert.EqualValues(t, 2, devs[0].Datagrams)
	assert.EqualValues(t, 1, devs[1].Datagrams)
	assert.EqualValues(t, 2, devs[0].LastSequence)
	assert.EqualValues(t, 70, devs[1].LastSequence)

	sum := stats.SumPorts(devs, 4)
	assert.EqualValues(t, 1, sum[0].Subframes)
	assert.EqualValues(t, 2, sum[1].Subframes)
	assert.EqualValues(t, 1, sum[3].Subframes)

	for _, w := range e.Workers() {
		assert.Equal(t, StateStopped, w.State())
	}
}

func TestEngineCancel(t *testing.T) {
	q := sourcetest.New("live", good(1, frame20(0)))
	q.Hold = true
	e := NewEngine([]source.Queue{q, nil}, 4, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	e.Start(ctx)

	require.Eventually(t, func() bool { return e.Devices()[0].Datagrams == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, StateIdle, e.Workers()[1].State())
}

func TestEngineDevicesDuringCapture(t *testing.T) {
	var dgs [][]byte
	for i := 0; i < 200; i++ {
		dgs = append(dgs, prototest.Encode(prototest.Datagram{Sequence: uint32(i), Frames: []prototest.Frame{frame20(2)}}))
	}
	e := NewEngine([]source.Queue{sourcetest.New("q", dgs...)}, 4, Config{})

	e.Start(context.Background())
	for i := 0; i < 10; i++ {
		_ = e.Devices()
	}
	e.Wait()

	assert.EqualValues(t, 200, e.Devices()[0].Ports[2].Subframes)
}
