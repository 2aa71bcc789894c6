package dhcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
)

// soBindToDevice pins the socket to a specific interface (Linux only,
// value 25). On non-Linux platforms the setsockopt call fails harmlessly.
const soBindToDevice = 25

// Handler is invoked once per decoded datagram. It never returns a
// reply — this listener only observes.
type Handler func(ctx context.Context, pkt *Packet, src *net.UDPAddr)

// OnDecodeError is invoked when a datagram fails to decode.
type OnDecodeError func(data []byte, src *net.UDPAddr, err error)

// Server is a passive DHCPv4 UDP listener. It never transmits.
type Server struct {
	conn    *net.UDPConn
	handle  Handler
	onError OnDecodeError
	logger  *slog.Logger
	addr    string
	iface   string
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewServer creates a listener bound to addr (default ":67") and,
// optionally, a single network interface.
func NewServer(addr, iface string, logger *slog.Logger, handle Handler, onError OnDecodeError) *Server {
	if addr == "" {
		addr = ":67"
	}
	return &Server{
		handle:  handle,
		onError: onError,
		logger:  logger,
		addr:    addr,
		iface:   iface,
		done:    make(chan struct{}),
	}
}

// Start opens the UDP socket and begins the receive loop in the
// background.
func (s *Server) Start(ctx context.Context) error {
	iface := s.iface
	logger := s.logger

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			c.Control(func(fd uintptr) {
				if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
					logger.Warn("failed to set SO_REUSEADDR", "error", err)
				}
				if iface != "" {
					if err := syscall.SetsockoptString(int(fd), syscall.SOL_SOCKET, soBindToDevice, iface); err != nil {
						logger.Debug("SO_BINDTODEVICE not available (non-Linux?)", "interface", iface, "error", err)
					} else {
						logger.Info("socket bound to interface", "interface", iface)
					}
				}
			})
			return nil
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.conn = pc.(*net.UDPConn)

	s.logger.Info("dhcp listener started", "address", s.addr, "interface", s.iface)

	s.wg.Add(1)
	go s.serve(ctx)

	return nil
}

// serve is the main receive loop: one goroutine is spawned per datagram,
// each with its own pipeline — decode, then hand off to Handler.
func (s *Server) serve(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		buf := GetBuffer()
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				PutBuffer(buf)
				return
			default:
			}
			s.logger.Error("reading UDP datagram", "error", err)
			PutBuffer(buf)
			continue
		}

		s.wg.Add(1)
		go func(data []byte, length int, addr *net.UDPAddr) {
			defer s.wg.Done()
			defer PutBuffer(data)
			s.processDatagram(ctx, data[:length], addr)
		}(buf, n, src)
	}
}

func (s *Server) processDatagram(ctx context.Context, data []byte, src *net.UDPAddr) {
	pkt, err := DecodePacket(data)
	if err != nil {
		s.logger.Warn("dropping malformed packet", "error", err, "src", src.String(), "size", len(data))
		if s.onError != nil {
			s.onError(data, src, err)
		}
		return
	}

	if s.handle != nil {
		s.handle(ctx, pkt, src)
	}
}

// Stop closes the socket and waits for in-flight datagrams to finish
// processing.
func (s *Server) Stop() {
	close(s.done)
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
	s.logger.Info("dhcp listener stopped")
}
