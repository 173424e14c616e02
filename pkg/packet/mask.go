package packet

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Mask matches frames against an expected frame, ignoring the bytes a
// router legitimately rewrites.
type Mask struct {
	exp   []byte
	care  []bool
	ipOff int
}

// ExpectedMask returns a Mask for frame that ignores the Ethernet addresses,
// IPv4 TTL and checksum and the TCP checksum.
func ExpectedMask(frame []byte) (*Mask, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return nil, errors.New("frame has no Ethernet header")
	}

	m := &Mask{exp: append([]byte(nil), frame...), care: make([]bool, len(frame)), ipOff: -1}
	for i := range m.care {
		m.care[i] = true
	}
	m.ignore(0, 12)

	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return m, nil
	}
	m.ipOff = len(eth.Contents)
	if dot1q, ok := pkt.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q); ok {
		m.ipOff += len(dot1q.Contents)
	}
	m.ignore(m.ipOff+8, 1)  // ttl
	m.ignore(m.ipOff+10, 2) // header checksum

	if _, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		tcpOff := m.ipOff + len(ip.Contents)
		m.ignore(tcpOff+16, 2)
	}
	return m, nil
}

func (m *Mask) ignore(off, n int) {
	for i := off; i < off+n && i < len(m.care); i++ {
		m.care[i] = false
	}
}

// IgnoreIPv4Src also ignores the IPv4 source address.
func (m *Mask) IgnoreIPv4Src() *Mask {
	if m.ipOff >= 0 {
		m.ignore(m.ipOff+12, 4)
	}
	return m
}

// Match reports whether frame starts with the expected frame on every byte
// the mask cares about. Trailing bytes are ignored.
func (m *Mask) Match(frame []byte) bool {
	if len(frame) < len(m.exp) {
		return false
	}
	for i, b := range m.exp {
		if m.care[i] && frame[i] != b {
			return false
		}
	}
	return true
}
