// Package dhcp decodes DHCPv4 packets observed passively on the wire.
//
// Unlike a full DHCP server, this package never encodes a reply: the
// service only ever listens, so Packet carries exactly the fields needed
// to classify and log an inbound client message.
package dhcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
)

// MaxPacketSize is the largest datagram the UDP listener will read into a
// pooled buffer.
const MaxPacketSize = 4096

// MinHeaderSize is the fixed DHCPv4 header length before the magic cookie
// (RFC 2131 §2): op through file, 236 bytes.
const MinHeaderSize = 236

var magicCookie = [4]byte{99, 130, 83, 99}

// ErrPacketTooShort is returned when the datagram is too small to contain
// a full fixed header plus magic cookie.
var ErrPacketTooShort = errors.New("dhcp: packet shorter than fixed header")

// ErrBadMagicCookie is returned when the 4 bytes following the fixed
// header do not match the DHCP magic cookie (RFC 2131 §3).
var ErrBadMagicCookie = errors.New("dhcp: missing or invalid magic cookie")

// Option is a single decoded TLV option, kept in wire order. Unlike a
// code-keyed map, a slice preserves the exact order options arrived in,
// which the fingerprint and raw-options round-trip both depend on.
type Option struct {
	Code byte
	Data []byte
}

// Packet is a decoded DHCPv4 message.
type Packet struct {
	Op      byte
	HType   byte
	HLen    byte
	Hops    byte
	XID     uint32
	Secs    uint16
	Flags   uint16
	CIAddr  net.IP
	YIAddr  net.IP
	SIAddr  net.IP
	GIAddr  net.IP
	CHAddr  net.HardwareAddr
	Options []Option
}

// packetPool reuses receive buffers across the UDP hot path.
var packetPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, MaxPacketSize)
	},
}

// GetBuffer returns a buffer from the pool.
func GetBuffer() []byte {
	return packetPool.Get().([]byte)
}

// PutBuffer zeroes and returns a buffer to the pool.
func PutBuffer(b []byte) {
	for i := range b {
		b[i] = 0
	}
	packetPool.Put(b)
}

// DecodePacket parses a raw DHCPv4 datagram. It fails only on a header
// that is too short or a missing/invalid magic cookie; anything past the
// cookie is decoded on a best-effort basis (see DecodeOptions), since a
// passive observer has no authority to reject a client's packet.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < MinHeaderSize+4 {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrPacketTooShort, len(data), MinHeaderSize+4)
	}

	var cookie [4]byte
	copy(cookie[:], data[MinHeaderSize:MinHeaderSize+4])
	if cookie != magicCookie {
		return nil, fmt.Errorf("%w: got %v", ErrBadMagicCookie, cookie)
	}

	p := &Packet{
		Op:     data[0],
		HType:  data[1],
		HLen:   data[2],
		Hops:   data[3],
		XID:    binary.BigEndian.Uint32(data[4:8]),
		Secs:   binary.BigEndian.Uint16(data[8:10]),
		Flags:  binary.BigEndian.Uint16(data[10:12]),
		CIAddr: append(net.IP(nil), data[12:16]...),
		YIAddr: append(net.IP(nil), data[16:20]...),
		SIAddr: append(net.IP(nil), data[20:24]...),
		GIAddr: append(net.IP(nil), data[24:28]...),
	}

	chaddr := make([]byte, 16)
	copy(chaddr, data[28:44])
	hlen := p.HLen
	if hlen > 16 {
		hlen = 16
	}
	p.CHAddr = net.HardwareAddr(chaddr[:hlen])

	p.Options = DecodeOptions(data[MinHeaderSize+4:])

	return p, nil
}

// MACAddress returns the colon-separated lowercase hex form of CHAddr,
// or the empty string if no bytes were captured.
func (p *Packet) MACAddress() string {
	if len(p.CHAddr) == 0 {
		return ""
	}
	return p.CHAddr.String()
}

// MessageType returns the DHCP message type (option 53), or 0 if absent
// or malformed.
func (p *Packet) MessageType() byte {
	if data, ok := p.Get(OptionMessageType); ok && len(data) == 1 {
		return data[0]
	}
	return 0
}

// MessageTypeName renders a message type byte as the human-readable name;
// unknown values render as "UNKNOWN".
func MessageTypeName(t byte) string {
	switch t {
	case 1:
		return "DISCOVER"
	case 3:
		return "REQUEST"
	case 4:
		return "DECLINE"
	case 5:
		return "ACK"
	case 6:
		return "NAK"
	case 7:
		return "RELEASE"
	case 8:
		return "INFORM"
	default:
		return "UNKNOWN"
	}
}

// VendorClassID returns option 60, decoded leniently since the bytes
// originate from an untrusted client: invalid UTF-8 sequences are
// replaced rather than rejected (mirroring Rust's String::from_utf8_lossy).
func (p *Packet) VendorClassID() string {
	data, ok := p.Get(OptionVendorClassID)
	if !ok {
		return ""
	}
	return strings.ToValidUTF8(string(data), "�")
}

// Hostname returns option 12.
func (p *Packet) Hostname() string {
	data, ok := p.Get(OptionHostname)
	if !ok {
		return ""
	}
	return string(data)
}

// Get returns the data of the first occurrence of code, in wire order.
func (p *Packet) Get(code byte) ([]byte, bool) {
	for _, o := range p.Options {
		if o.Code == code {
			return o.Data, true
		}
	}
	return nil, false
}

// Fingerprint renders option 55 (Parameter Request List) as a
// comma-separated decimal string in wire order — the canonical key used
// for fingerprint-table lookups.
func (p *Packet) Fingerprint() string {
	data, ok := p.Get(OptionParameterRequestList)
	if !ok || len(data) == 0 {
		return ""
	}
	var out []byte
	for i, b := range data {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendUint(out, b)
	}
	return string(out)
}

func appendUint(dst []byte, v byte) []byte {
	if v >= 100 {
		dst = append(dst, '0'+v/100)
		v %= 100
		dst = append(dst, '0'+v/10)
		v %= 10
	} else if v >= 10 {
		dst = append(dst, '0'+v/10)
		v %= 10
	}
	return append(dst, '0'+v)
}
