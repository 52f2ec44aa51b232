//go:build linux

// Package afpacket implements receive queues on AF_PACKET TPACKET_V3 sockets.
package afpacket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/dgcap/internal/core"
	"firestige.xyz/dgcap/internal/source"
)

// Queue reads datagrams from one AF_PACKET socket. Several queues on the
// same interface share traffic through a fanout group.
type Queue struct {
	cfg      Config
	handle   *afpacket.TPacket
	filler   source.Filler
	counters source.Counters
}

// Open creates the socket, joins the fanout group and installs the filter.
func Open(cfg Config, pool *source.Pool) (*Queue, error) {
	cfg.applyDefaults()
	if cfg.Interface == "" {
		return nil, fmt.Errorf("%w: afpacket queue %q: interface is required", core.ErrConfigInvalid, cfg.Name)
	}

	r, err := ringLayout(cfg.ringMB(), cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: afpacket queue %q: %v", core.ErrConfigInvalid, cfg.Name, err)
	}

	decap, err := source.NewDecapsulator(cfg.Encapsulation, cfg.UDPPort, layers.LayerTypeEthernet)
	if err != nil {
		return nil, fmt.Errorf("afpacket queue %q: %w", cfg.Name, err)
	}

	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(r.frameSize),
		afpacket.OptBlockSize(r.blockSize),
		afpacket.OptNumBlocks(r.numBlocks),
		afpacket.OptPollTimeout(cfg.PollTimeout),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
	)
	if err != nil {
		return nil, fmt.Errorf("afpacket queue %q: create TPacket handle: %w", cfg.Name, err)
	}

	q := &Queue{cfg: cfg, handle: handle}

	if cfg.FanoutID > 0 {
		if err := handle.SetFanout(afpacket.FanoutHash, cfg.FanoutID); err != nil {
			handle.Close()
			return nil, fmt.Errorf("afpacket queue %q: set fanout %d: %w", cfg.Name, cfg.FanoutID, err)
		}
	}

	if cfg.BPFFilter != "" {
		if err := q.applyBPFFilter(); err != nil {
			handle.Close()
			return nil, fmt.Errorf("afpacket queue %q: %w", cfg.Name, err)
		}
	}

	if err := handle.InitSocketStats(); err != nil {
		slog.Warn("failed to init socket stats", "queue", cfg.Name, "error", err)
	}

	q.filler = source.Filler{
		Read:     handle.ZeroCopyReadPacketData,
		Pool:     pool,
		Decap:    decap,
		Counters: &q.counters,
	}

	slog.Info("afpacket queue opened",
		"queue", cfg.Name,
		"interface", cfg.Interface,
		"fanout_id", cfg.FanoutID,
		"frame_size", r.frameSize,
		"block_size", r.blockSize,
		"num_blocks", r.numBlocks,
		"encapsulation", decap.Mode())
	return q, nil
}

// Name returns the configured queue name.
func (q *Queue) Name() string {
	return q.cfg.Name
}

// ReceiveBurst drains the ring into bufs. A poll timeout with nothing read
// is reported as an empty burst.
func (q *Queue) ReceiveBurst(ctx context.Context, bufs []*source.Buffer) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if q.handle == nil {
		return 0, core.ErrQueueClosed
	}

	n, err := q.filler.Fill(bufs)
	if err != nil {
		if errors.Is(err, afpacket.ErrTimeout) || errors.Is(err, afpacket.ErrPoll) {
			err = nil
		} else {
			err = fmt.Errorf("afpacket read: %w", err)
		}
	}

	if _, sv3, statsErr := q.handle.SocketStats(); statsErr == nil {
		q.counters.SetKernelDrops(uint64(sv3.Drops()))
	}
	return n, err
}

// Stats returns queue counters.
func (q *Queue) Stats() source.QueueStats {
	return q.counters.Stats()
}

// Close releases the socket. It must not be called while ReceiveBurst runs.
func (q *Queue) Close() error {
	if q.handle != nil {
		q.handle.Close()
		q.handle = nil
	}
	return nil
}

func (q *Queue) applyBPFFilter() error {
	insns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, q.cfg.SnapLen, q.cfg.BPFFilter)
	if err != nil {
		return fmt.Errorf("compile BPF filter %q: %w", q.cfg.BPFFilter, err)
	}

	raw := make([]bpf.RawInstruction, len(insns))
	for i, insn := range insns {
		raw[i] = bpf.RawInstruction{Op: insn.Code, Jt: insn.Jt, Jf: insn.Jf, K: insn.K}
	}
	if err := q.handle.SetBPF(raw); err != nil {
		return fmt.Errorf("set BPF: %w", err)
	}
	return nil
}

var _ source.Queue = (*Queue)(nil)
