// Package pcapfile replays DGGEN datagrams from pcap and pcapng files.
package pcapfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/dgcap/internal/core"
	"firestige.xyz/dgcap/internal/source"
)

var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Config describes one file replay queue.
type Config struct {
	Name          string
	Path          string
	Encapsulation string
	UDPPort       uint16
}

// Queue delivers the frames of a capture file once, then reports exhaustion.
type Queue struct {
	cfg      Config
	file     *os.File
	reader   packetReader
	filler   source.Filler
	counters source.Counters
	eof      bool
}

// Open opens the file and detects its format from the leading magic.
func Open(cfg Config, pool *source.Pool) (*Queue, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: pcap queue %q: file is required", core.ErrConfigInvalid, cfg.Name)
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("pcap queue %q: %w", cfg.Name, err)
	}

	r, err := newReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pcap queue %q: read %s: %w", cfg.Name, cfg.Path, err)
	}

	decap, err := source.NewDecapsulator(cfg.Encapsulation, cfg.UDPPort, source.FirstLayer(r.LinkType()))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pcap queue %q: %w", cfg.Name, err)
	}

	q := &Queue{cfg: cfg, file: f, reader: r}
	q.filler = source.Filler{
		Read:     r.ReadPacketData,
		Pool:     pool,
		Decap:    decap,
		Counters: &q.counters,
	}

	slog.Info("pcap queue opened",
		"queue", cfg.Name,
		"file", cfg.Path,
		"link_type", r.LinkType().String(),
		"encapsulation", decap.Mode())
	return q, nil
}

func newReader(br *bufio.Reader) (packetReader, error) {
	magic, err := br.Peek(4)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(magic, ngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// Name returns the configured queue name.
func (q *Queue) Name() string {
	return q.cfg.Name
}

// ReceiveBurst reads the next frames of the file. At end of file it returns
// the last partial burst together with core.ErrQueueExhausted.
func (q *Queue) ReceiveBurst(ctx context.Context, bufs []*source.Buffer) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if q.eof {
		return 0, core.ErrQueueExhausted
	}
	if q.file == nil {
		return 0, core.ErrQueueClosed
	}

	n, err := q.filler.Fill(bufs)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		q.eof = true
		return n, core.ErrQueueExhausted
	default:
		return n, fmt.Errorf("pcap read: %w", err)
	}
}

// Stats returns queue counters.
func (q *Queue) Stats() source.QueueStats {
	return q.counters.Stats()
}

// Close closes the underlying file.
func (q *Queue) Close() error {
	if q.file == nil {
		return nil
	}
	err := q.file.Close()
	q.file = nil
	return err
}

var _ source.Queue = (*Queue)(nil)
