// Package smb performs a minimal, unauthenticated SMB2 NEGOTIATE exchange
// against a host's port 445 to refine an OS guess beyond what DHCP alone
// reveals. It never authenticates or touches a share.
package smb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// ProbeResult is the outcome of a single SMB2 negotiate attempt. Success
// is false whenever the probe could not complete a negotiate round trip
// (port closed, connect timeout) — these are expected, common outcomes on
// a network where most hosts aren't Windows, not error conditions.
type ProbeResult struct {
	OSVersion   string
	BuildNumber int // 0 means unknown
	Dialect     string
	Success     bool
}

// Probe connects to ip:445 and attempts an SMB2 NEGOTIATE. Connection
// refusal and connect timeout are reported as a non-success ProbeResult,
// never as an error — those are ordinary network conditions for hosts
// that aren't Windows or don't expose SMB. A transport failure that
// occurs AFTER the TCP connection is established (send failure, read
// timeout, a malformed or empty response) is returned as an error so the
// caller can tell "this clearly isn't SMB" apart from "SMB negotiation
// broke partway through."
func Probe(ctx context.Context, ip net.IP, timeout time.Duration) (ProbeResult, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), "445"))
	if err != nil {
		if isTimeout(err) {
			return ProbeResult{OSVersion: "Unknown (connection timeout)", Dialect: "N/A"}, nil
		}
		return ProbeResult{OSVersion: "Unknown (SMB port closed)", Dialect: "N/A"}, nil
	}
	defer conn.Close()

	return negotiate(conn, timeout)
}

func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}

func negotiate(conn net.Conn, timeout time.Duration) (ProbeResult, error) {
	packet := buildNegotiatePacket()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return ProbeResult{}, fmt.Errorf("smb: setting write deadline: %w", err)
	}
	if _, err := conn.Write(packet); err != nil {
		return ProbeResult{}, fmt.Errorf("smb: sending negotiate request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return ProbeResult{}, fmt.Errorf("smb: setting read deadline: %w", err)
	}
	resp := make([]byte, 4096)
	n, err := conn.Read(resp)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("smb: reading negotiate response: %w", err)
	}
	if n == 0 {
		return ProbeResult{}, errors.New("smb: empty negotiate response")
	}

	return parseNegotiateResponse(resp[:n])
}

// buildNegotiatePacket builds a minimal SMB2 NEGOTIATE request: a 4-byte
// NetBIOS session length prefix, a 64-byte SMB2 header, a 36-byte
// Negotiate Request body, and 5 little-endian dialect codes (2.0.2, 2.1,
// 3.0, 3.0.2, 3.1.1).
func buildNegotiatePacket() []byte {
	packet := make([]byte, 0, 4+64+36+10)

	packet = append(packet, 0, 0, 0, 0) // NetBIOS length placeholder

	packet = append(packet, 0xFE, 'S', 'M', 'B') // SMB2 protocol id
	packet = append(packet, 0x40, 0x00)          // header length (64)
	packet = append(packet, 0x00, 0x00)          // credit charge
	packet = append(packet, 0x00, 0x00, 0x00, 0x00) // status
	packet = append(packet, 0x00, 0x00)          // command: Negotiate
	packet = append(packet, 0x00, 0x00)          // credits requested
	packet = append(packet, 0x00, 0x00, 0x00, 0x00) // flags
	packet = append(packet, 0x00, 0x00, 0x00, 0x00) // next command
	packet = append(packet, make([]byte, 8)...)  // message id
	packet = append(packet, 0x00, 0x00, 0x00, 0x00) // reserved
	packet = append(packet, 0x00, 0x00, 0x00, 0x00) // tree id
	packet = append(packet, make([]byte, 8)...)  // session id
	packet = append(packet, make([]byte, 16)...) // signature

	packet = append(packet, 0x24, 0x00)          // structure size (36)
	packet = append(packet, 0x05, 0x00)          // dialect count (5)
	packet = append(packet, 0x00, 0x00)          // security mode
	packet = append(packet, 0x00, 0x00)          // reserved
	packet = append(packet, 0x00, 0x00, 0x00, 0x00) // capabilities
	packet = append(packet, make([]byte, 16)...) // client guid
	packet = append(packet, make([]byte, 8)...)  // client start time

	packet = append(packet, 0x02, 0x02) // SMB 2.0.2
	packet = append(packet, 0x10, 0x02) // SMB 2.1
	packet = append(packet, 0x00, 0x03) // SMB 3.0
	packet = append(packet, 0x02, 0x03) // SMB 3.0.2
	packet = append(packet, 0x11, 0x03) // SMB 3.1.1

	totalLen := uint32(len(packet) - 4)
	binary.BigEndian.PutUint32(packet[0:4], totalLen)

	return packet
}

var dialectNames = map[uint16]string{
	0x0202: "SMB 2.0.2",
	0x0210: "SMB 2.1",
	0x0300: "SMB 3.0",
	0x0302: "SMB 3.0.2",
	0x0311: "SMB 3.1.1",
}

// osByDialect maps a negotiated dialect to a coarse OS label and a build
// number estimate. The estimate is a stand-in for the real build number
// (which would require an authenticated NTLMSSP exchange, out of scope
// here) — good enough to bucket a host into a Windows generation.
var osByDialect = map[string]struct {
	osVersion string
	build     int
}{
	"SMB 3.1.1": {"Windows 10/11 (SMB 3.1.1)", 19041},
	"SMB 3.0.2": {"Windows 8.1/10 (SMB 3.0)", 9600},
	"SMB 3.0":   {"Windows 8.1/10 (SMB 3.0)", 9600},
	"SMB 2.1":   {"Windows 7/Server 2008 R2", 7601},
	"SMB 2.0.2": {"Windows Vista/Server 2008", 6002},
}

// parseNegotiateResponse validates the SMB2 signature and extracts the
// negotiated dialect from the response's NEGOTIATE reply body.
func parseNegotiateResponse(data []byte) (ProbeResult, error) {
	if len(data) < 70 {
		return ProbeResult{}, fmt.Errorf("smb: response too short: %d bytes", len(data))
	}
	if !bytesEqual(data[4:8], []byte{0xFE, 'S', 'M', 'B'}) {
		return ProbeResult{}, errors.New("smb: invalid SMB2 signature in response")
	}

	dialectCode := binary.LittleEndian.Uint16(data[68:70])
	dialect, ok := dialectNames[dialectCode]
	if !ok {
		dialect = "SMB (unknown)"
	}

	info, ok := osByDialect[dialect]
	if !ok {
		return ProbeResult{
			OSVersion: "Windows (unknown SMB)",
			Dialect:   dialect,
			Success:   true,
		}, nil
	}

	return ProbeResult{
		OSVersion:   info.osVersion,
		BuildNumber: info.build,
		Dialect:     dialect,
		Success:     true,
	}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BuildToWindowsVersion maps a Windows build number to a friendly release
// label. It is a pure helper, exercised directly by tests; it is not
// called from Probe, since extracting a real build number would require
// an authenticated NTLMSSP exchange this package deliberately doesn't do.
func BuildToWindowsVersion(build uint32) string {
	switch {
	case build >= 22621 && build <= 22999:
		return "Windows 11 22H2"
	case build >= 22000 && build <= 22999:
		return "Windows 11 21H2"
	case build >= 26000 && build <= 29999:
		return "Windows 11 (Insider/Future)"
	case build >= 19041 && build <= 19045:
		return "Windows 10 2004/20H2/21H1"
	case build >= 18362 && build <= 18363:
		return "Windows 10 1903/1909"
	case build == 17763:
		return "Windows 10 1809"
	case build == 17134:
		return "Windows 10 1803"
	case build == 16299:
		return "Windows 10 1709"
	case build == 15063:
		return "Windows 10 1703"
	case build == 14393:
		return "Windows 10 1607"
	case build == 10586:
		return "Windows 10 1511"
	case build == 10240:
		return "Windows 10 1507"
	case build == 9600:
		return "Windows 8.1"
	case build == 9200:
		return "Windows 8"
	case build >= 7600 && build <= 7601:
		return "Windows 7"
	default:
		return "Windows (unknown version)"
	}
}
