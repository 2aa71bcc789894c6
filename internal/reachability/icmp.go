// Package reachability provides a cheap in-process "is this host even up"
// check ahead of an SMB probe, so the detector doesn't burn a TCP connect
// timeout dialing hosts that are simply offline.
package reachability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Prober sends ICMP Echo Requests and waits for a reply. The raw ICMP
// socket is opened once at startup and shared across all probes.
type Prober struct {
	conn      *icmp.PacketConn
	logger    *slog.Logger
	available bool
	seq       uint16
	mu        sync.Mutex
}

// NewProber opens a raw ICMP listening socket. If that fails — most
// commonly because the process lacks CAP_NET_RAW — it logs a loud warning
// and returns a Prober whose Available reports false rather than failing
// startup: a missing reachability probe is a degraded mode, not a fatal
// condition, and the detector skips the pre-check and probes SMB directly
// when Available is false.
func NewProber(logger *slog.Logger) *Prober {
	p := &Prober{logger: logger}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		logger.Error("FAILED TO OPEN ICMP SOCKET — reachability pre-check is DISABLED",
			"error", err,
			"hint", "grant CAP_NET_RAW or run as root")
		return p
	}

	p.conn = conn
	p.available = true
	logger.Info("reachability prober initialized")
	return p
}

// Available reports whether the prober has a working raw socket.
func (p *Prober) Available() bool {
	return p.available
}

// Close releases the ICMP socket.
func (p *Prober) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Probe sends one ICMP Echo Request to targetIP and waits (bounded by
// ctx) for a reply. It returns (true, nil) when a reply arrives,
// (false, nil) on a clean timeout or when the prober has no socket, and
// (_, err) for a marshal, deadline, send or non-timeout read failure — a
// condition the caller
// should treat as "probe unavailable, proceed anyway" rather than a
// reason to suppress SMB refinement.
func (p *Prober) Probe(ctx context.Context, targetIP net.IP) (bool, error) {
	if !p.available {
		return false, nil
	}

	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	start := time.Now()

	msg := &icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  int(seq),
			Data: []byte("dhcpsentry-probe"),
		},
	}

	msgBytes, err := msg.Marshal(nil)
	if err != nil {
		return false, fmt.Errorf("marshalling ICMP echo request: %w", err)
	}

	dst := &net.IPAddr{IP: targetIP}

	if deadline, ok := ctx.Deadline(); ok {
		if err := p.conn.SetDeadline(deadline); err != nil {
			return false, fmt.Errorf("setting ICMP deadline: %w", err)
		}
	}

	if _, err := p.conn.WriteTo(msgBytes, dst); err != nil {
		return false, fmt.Errorf("sending ICMP echo to %s: %w", targetIP, err)
	}

	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("reachability probe timeout", "target_ip", targetIP.String(), "duration", time.Since(start).String())
			return false, nil
		default:
		}

		n, peer, err := p.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				p.logger.Debug("reachability probe timeout", "target_ip", targetIP.String(), "duration", time.Since(start).String())
				return false, nil
			}
			return false, fmt.Errorf("reading ICMP reply: %w", err)
		}

		reply, err := icmp.ParseMessage(1, buf[:n]) // 1 = ICMPv4
		if err != nil {
			continue
		}
		if reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		if echo, ok := reply.Body.(*icmp.Echo); ok {
			if echo.ID == os.Getpid()&0xffff && echo.Seq == int(seq) {
				p.logger.Debug("reachability probe reply received",
					"target_ip", targetIP.String(),
					"responder", peer.String(),
					"duration", time.Since(start).String())
				return true, nil
			}
		}
	}
}
