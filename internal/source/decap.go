package source

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/dgcap/internal/core"
)

// Encapsulation modes for datagrams arriving on a queue.
const (
	EncapRaw      = "raw"      // the frame is the datagram
	EncapEthernet = "ethernet" // datagram follows the Ethernet (and VLAN) header
	EncapUDP      = "udp"      // datagram is the payload of a UDP packet
)

// Decapsulator extracts the DGGEN datagram from a received frame.
// It reuses its layer storage and is not safe for concurrent use.
type Decapsulator struct {
	mode    string
	udpPort uint16

	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	eth   layers.Ethernet
	dot1q layers.Dot1Q
	ip4   layers.IPv4
	ip6   layers.IPv6
	udp   layers.UDP
}

// NewDecapsulator builds a decapsulator for frames whose outermost layer is first.
// udpPort filters UDP datagrams by destination port; zero accepts any port.
func NewDecapsulator(mode string, udpPort uint16, first gopacket.LayerType) (*Decapsulator, error) {
	d := &Decapsulator{
		mode:    mode,
		udpPort: udpPort,
		decoded: make([]gopacket.LayerType, 0, 8),
	}

	switch mode {
	case EncapRaw, "":
		d.mode = EncapRaw
		return d, nil
	case EncapEthernet:
		if first != layers.LayerTypeEthernet {
			return nil, fmt.Errorf("%w: encapsulation %q needs an ethernet link, got %s", core.ErrConfigInvalid, mode, first)
		}
		d.parser = gopacket.NewDecodingLayerParser(first, &d.eth, &d.dot1q)
	case EncapUDP:
		switch first {
		case layers.LayerTypeEthernet, layers.LayerTypeIPv4, layers.LayerTypeIPv6:
		default:
			return nil, fmt.Errorf("%w: encapsulation %q cannot start at %s", core.ErrConfigInvalid, mode, first)
		}
		d.parser = gopacket.NewDecodingLayerParser(first, &d.eth, &d.dot1q, &d.ip4, &d.ip6, &d.udp)
	default:
		return nil, fmt.Errorf("%w: unknown encapsulation %q", core.ErrConfigInvalid, mode)
	}
	d.parser.IgnoreUnsupported = true
	return d, nil
}

// Mode returns the configured encapsulation.
func (d *Decapsulator) Mode() string {
	return d.mode
}

// Datagram returns the slice of frame that holds the datagram.
// The result aliases frame. Frames that do not match return core.ErrNotDatagram.
func (d *Decapsulator) Datagram(frame []byte) ([]byte, error) {
	if d.mode == EncapRaw {
		return frame, nil
	}

	if err := d.parser.DecodeLayers(frame, &d.decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNotDatagram, err)
	}
	if len(d.decoded) == 0 {
		return nil, core.ErrNotDatagram
	}

	last := d.decoded[len(d.decoded)-1]
	switch d.mode {
	case EncapEthernet:
		switch last {
		case layers.LayerTypeDot1Q:
			return d.dot1q.LayerPayload(), nil
		case layers.LayerTypeEthernet:
			return d.eth.LayerPayload(), nil
		}
	case EncapUDP:
		if last != layers.LayerTypeUDP {
			return nil, core.ErrNotDatagram
		}
		if d.udpPort != 0 && uint16(d.udp.DstPort) != d.udpPort {
			return nil, core.ErrNotDatagram
		}
		return d.udp.LayerPayload(), nil
	}
	return nil, core.ErrNotDatagram
}

// FirstLayer maps a capture link type to the layer the decapsulator starts at.
func FirstLayer(lt layers.LinkType) gopacket.LayerType {
	switch lt {
	case layers.LinkTypeEthernet:
		return layers.LayerTypeEthernet
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return layers.LayerTypeIPv4
	case layers.LinkTypeIPv6:
		return layers.LayerTypeIPv6
	default:
		return gopacket.LayerTypePayload
	}
}
