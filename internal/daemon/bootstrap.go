package daemon

import (
	"fmt"
	"log/slog"

	"firestige.xyz/dgcap/internal/config"
	"firestige.xyz/dgcap/internal/hwstats"
	"firestige.xyz/dgcap/internal/source"
	"firestige.xyz/dgcap/internal/source/afpacket"
	"firestige.xyz/dgcap/internal/source/pcapfile"
)

// openQueues opens every configured queue, each with its own buffer pool.
// On failure the queues already opened are closed.
func openQueues(c config.CaptureConfig) ([]source.Queue, error) {
	queues := make([]source.Queue, 0, len(c.Queues))
	for _, qc := range c.Queues {
		q, err := openQueue(qc, source.NewPool(c.PoolSize, c.BufferSize))
		if err != nil {
			for _, opened := range queues {
				opened.Close()
			}
			return nil, err
		}
		queues = append(queues, q)
	}
	return queues, nil
}

func openQueue(qc config.QueueConfig, pool *source.Pool) (source.Queue, error) {
	switch qc.Type {
	case config.QueueAFPacket:
		q, err := afpacket.Open(afpacket.Config{
			Name:          qc.Name,
			Interface:     qc.Interface,
			BPFFilter:     qc.BPFFilter,
			FanoutID:      qc.FanoutID,
			SnapLen:       qc.SnapLen,
			BlockSize:     qc.BlockSize,
			NumBlocks:     qc.NumBlocks,
			PollTimeout:   qc.PollTimeout,
			Encapsulation: qc.Encapsulation,
			UDPPort:       qc.UDPPort,
		}, pool)
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.QueuePcap:
		slog.Info("replaying capture file", "queue", qc.Name, "file", qc.File)
		q, err := pcapfile.Open(pcapfile.Config{
			Name:          qc.Name,
			Path:          qc.File,
			Encapsulation: qc.Encapsulation,
			UDPPort:       qc.UDPPort,
		}, pool)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("queue %q: unknown type %q", qc.Name, qc.Type)
	}
}

// HardwareLayout maps the hardware section onto a register layout covering ports TAP ports.
func HardwareLayout(hw config.HardwareConfig, ports int) hwstats.Layout {
	return hwstats.Layout{
		Device:          hw.Device,
		MapSize:         hw.MapSize,
		MapOffset:       hw.MapOffset,
		GeneratorOffset: hw.GeneratorOffset,
		PortOffset:      hw.PortOffset,
		PortStride:      hw.PortStride,
		Ports:           ports,
	}
}
