// Package packet builds the stimulus frames, matches them on egress and
// moves them through traffic generator ports.
package packet

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Frame defaults, the same ones PTF's simple_tcp_packet uses.
const (
	DefaultLength  = 100
	DefaultEthDst  = "00:01:02:03:04:05"
	DefaultEthSrc  = "00:06:07:08:09:0a"
	DefaultIPSrc   = "192.168.0.1"
	DefaultIPDst   = "192.168.0.2"
	DefaultTTL     = 64
	DefaultSrcPort = 1234
	DefaultDstPort = 80
)

const headerLen = 14 + 20 + 20

// TCPParams describes an Ethernet/IPv4/TCP SYN frame. Zero fields take the
// defaults above.
type TCPParams struct {
	EthDst  string `yaml:"eth_dst"`
	EthSrc  string `yaml:"eth_src"`
	IPSrc   string `yaml:"ipv4_src"`
	IPDst   string `yaml:"ipv4_dst"`
	TOS     uint8  `yaml:"ip_tos"`
	TTL     uint8  `yaml:"ip_ttl"`
	ID      uint16 `yaml:"ip_id"`
	SrcPort uint16 `yaml:"tcp_sport"`
	DstPort uint16 `yaml:"tcp_dport"`
	// Length is the frame length without FCS; the payload pads up to it.
	Length int `yaml:"pktlen"`
}

func (p TCPParams) withDefaults() TCPParams {
	if p.EthDst == "" {
		p.EthDst = DefaultEthDst
	}
	if p.EthSrc == "" {
		p.EthSrc = DefaultEthSrc
	}
	if p.IPSrc == "" {
		p.IPSrc = DefaultIPSrc
	}
	if p.IPDst == "" {
		p.IPDst = DefaultIPDst
	}
	if p.TTL == 0 {
		p.TTL = DefaultTTL
	}
	if p.ID == 0 {
		p.ID = 1
	}
	if p.SrcPort == 0 {
		p.SrcPort = DefaultSrcPort
	}
	if p.DstPort == 0 {
		p.DstPort = DefaultDstPort
	}
	if p.Length == 0 {
		p.Length = DefaultLength
	}
	return p
}

// SimpleTCP serializes p. The payload is an incrementing byte pattern.
func SimpleTCP(p TCPParams) ([]byte, error) {
	p = p.withDefaults()

	dst, err := net.ParseMAC(p.EthDst)
	if err != nil {
		return nil, fmt.Errorf("eth_dst: %w", err)
	}
	src, err := net.ParseMAC(p.EthSrc)
	if err != nil {
		return nil, fmt.Errorf("eth_src: %w", err)
	}
	ipSrc := net.ParseIP(p.IPSrc).To4()
	if ipSrc == nil {
		return nil, fmt.Errorf("ipv4_src: invalid address %q", p.IPSrc)
	}
	ipDst := net.ParseIP(p.IPDst).To4()
	if ipDst == nil {
		return nil, fmt.Errorf("ipv4_dst: invalid address %q", p.IPDst)
	}

	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TOS:      p.TOS,
		Id:       p.ID,
		TTL:      p.TTL,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    ipSrc,
		DstIP:    ipDst,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(p.SrcPort),
		DstPort: layers.TCPPort(p.DstPort),
		SYN:     true,
		Window:  8192,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	payload := make([]byte, max(p.Length-headerLen, 0))
	for i := range payload {
		payload[i] = byte(i)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serializing TCP frame: %w", err)
	}
	return buf.Bytes(), nil
}
