package dhcp

import (
	"errors"
	"net"
	"testing"
)

func buildHeader(hlen byte, chaddr []byte) []byte {
	buf := make([]byte, MinHeaderSize+4)
	buf[0] = 1 // BOOTREQUEST
	buf[1] = 1 // Ethernet
	buf[2] = hlen
	copy(buf[28:28+len(chaddr)], chaddr)
	copy(buf[MinHeaderSize:MinHeaderSize+4], magicCookie[:])
	return buf
}

func TestDecodePacket_TooShort(t *testing.T) {
	_, err := DecodePacket(make([]byte, MinHeaderSize))
	if !errors.Is(err, ErrPacketTooShort) {
		t.Fatalf("expected ErrPacketTooShort, got %v", err)
	}
}

func TestDecodePacket_BadCookie(t *testing.T) {
	buf := buildHeader(6, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	buf[MinHeaderSize] = 0 // corrupt the cookie
	_, err := DecodePacket(buf)
	if !errors.Is(err, ErrBadMagicCookie) {
		t.Fatalf("expected ErrBadMagicCookie, got %v", err)
	}
}

func TestDecodePacket_ExactMinimumLength(t *testing.T) {
	buf := buildHeader(6, []byte{1, 2, 3, 4, 5, 6})
	buf = append(buf, OptionEnd)
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Options) != 0 {
		t.Fatalf("expected no options, got %v", p.Options)
	}
	if p.MACAddress() != net.HardwareAddr([]byte{1, 2, 3, 4, 5, 6}).String() {
		t.Fatalf("unexpected MAC: %s", p.MACAddress())
	}
}

func TestDecodePacket_HLenZero(t *testing.T) {
	buf := buildHeader(0, nil)
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MACAddress() != "" {
		t.Fatalf("expected empty MAC for hlen=0, got %q", p.MACAddress())
	}
}

func TestDecodePacket_HLenOver16Clamped(t *testing.T) {
	buf := buildHeader(200, []byte{1, 2, 3, 4, 5, 6})
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.CHAddr) != 16 {
		t.Fatalf("expected CHAddr clamped to 16 bytes, got %d", len(p.CHAddr))
	}
}

func TestDecodePacket_TruncatedOptionsSilentlyStop(t *testing.T) {
	buf := buildHeader(6, []byte{1, 2, 3, 4, 5, 6})
	// option 12 claims length 10 but only 2 bytes follow.
	buf = append(buf, OptionHostname, 10, 'a', 'b')
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error on truncated options: %v", err)
	}
	if len(p.Options) != 0 {
		t.Fatalf("expected truncated option to be silently dropped, got %v", p.Options)
	}
}

func TestDecodePacket_PreservesWireOrder(t *testing.T) {
	buf := buildHeader(6, []byte{1, 2, 3, 4, 5, 6})
	buf = append(buf, OptionParameterRequestList, 3, 1, 3, 6)
	buf = append(buf, OptionVendorClassID, 4, 'M', 'S', 'F', 'T')
	buf = append(buf, OptionEnd)
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Options) != 2 || p.Options[0].Code != OptionParameterRequestList || p.Options[1].Code != OptionVendorClassID {
		t.Fatalf("options not in wire order: %+v", p.Options)
	}
}

func TestPacket_Fingerprint(t *testing.T) {
	buf := buildHeader(6, []byte{1, 2, 3, 4, 5, 6})
	buf = append(buf, OptionParameterRequestList, 5, 1, 3, 6, 15, 255)
	buf = append(buf, OptionEnd)
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Fingerprint(); got != "1,3,6,15,255" {
		t.Fatalf("unexpected fingerprint: %q", got)
	}
}

func TestPacket_NoFingerprintOption(t *testing.T) {
	buf := buildHeader(6, []byte{1, 2, 3, 4, 5, 6})
	buf = append(buf, OptionEnd)
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Fingerprint(); got != "" {
		t.Fatalf("expected empty fingerprint, got %q", got)
	}
}

func TestPacket_MessageTypeAndVendorClass(t *testing.T) {
	buf := buildHeader(6, []byte{1, 2, 3, 4, 5, 6})
	buf = append(buf, OptionMessageType, 1, 3)
	buf = append(buf, OptionVendorClassID, 4, 'M', 'S', 'F', 'T')
	buf = append(buf, OptionEnd)
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MessageType() != 3 {
		t.Fatalf("expected message type 3, got %d", p.MessageType())
	}
	if MessageTypeName(p.MessageType()) != "REQUEST" {
		t.Fatalf("expected REQUEST, got %s", MessageTypeName(p.MessageType()))
	}
	if p.VendorClassID() != "MSFT" {
		t.Fatalf("expected MSFT, got %q", p.VendorClassID())
	}
}

func TestMessageTypeName_Unknown(t *testing.T) {
	if MessageTypeName(99) != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for unrecognized message type")
	}
}

func TestPacket_Hostname(t *testing.T) {
	buf := buildHeader(6, []byte{1, 2, 3, 4, 5, 6})
	buf = append(buf, OptionHostname, 6, 'm', 'y', 'h', 'o', 's', 't')
	buf = append(buf, OptionEnd)
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Hostname(); got != "myhost" {
		t.Fatalf("Hostname() = %q, want %q", got, "myhost")
	}
}

func TestGetBufferPutBuffer(t *testing.T) {
	buf := GetBuffer()
	if len(buf) != MaxPacketSize {
		t.Errorf("GetBuffer() length = %d, want %d", len(buf), MaxPacketSize)
	}
	PutBuffer(buf)
}

func TestRawJSON_RoundTrip(t *testing.T) {
	opts := []Option{
		{Code: OptionParameterRequestList, Data: []byte{1, 3, 6}},
		{Code: OptionHostname, Data: []byte("ab")},
	}
	raw := RawJSON(opts)
	if len(raw) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(raw))
	}
	if raw[0][0] != int(OptionParameterRequestList) || raw[0][1] != 1 || raw[0][2] != 3 || raw[0][3] != 6 {
		t.Fatalf("unexpected row 0: %v", raw[0])
	}
	if raw[1][0] != int(OptionHostname) || raw[1][1] != 'a' || raw[1][2] != 'b' {
		t.Fatalf("unexpected row 1: %v", raw[1])
	}
}
