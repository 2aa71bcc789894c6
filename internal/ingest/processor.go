// Package ingest wires a decoded DHCP packet through classification,
// persistence, and broadcast — the request processor, C5.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/dhcpsentry/dhcpsentry/internal/broadcast"
	"github.com/dhcpsentry/dhcpsentry/internal/detect"
	"github.com/dhcpsentry/dhcpsentry/internal/dhcp"
	"github.com/dhcpsentry/dhcpsentry/internal/history"
	"github.com/dhcpsentry/dhcpsentry/internal/metrics"
	"github.com/dhcpsentry/dhcpsentry/internal/store"
)

// Detector is the subset of *detect.Detector the processor calls,
// narrowed to an interface so tests can substitute a fake classifier.
type Detector interface {
	Detect(ctx context.Context, mac net.HardwareAddr, ip net.IP, fingerprint, vendorClass string) detect.DetectionResult
}

// Processor runs the seven-step pipeline of spec.md §4.5 for every
// decoded DHCP packet: classify, persist (log file + SQL, both
// best-effort), push to history, then publish to the broadcast hub.
// Grounded on internal/dhcp/server.go's processPacket orchestration
// shape and metrics-instrumentation style, generalized from "decode →
// handle → encode reply → send" (the teacher, an active server) to
// "decode → classify → persist → broadcast" (this system, a passive
// observer that never replies).
type Processor struct {
	detector Detector
	jsonLog  *store.JSONLog
	sqlStore *store.SQLStore
	history  *history.Ring
	hub      *broadcast.Hub
	logger   *slog.Logger
}

// New constructs a Processor. jsonLog and sqlStore may be nil to disable
// that sink (e.g. in tests); a nil sink is simply skipped, matching
// spec.md's "failure is logged but not fatal" policy generalized one
// step further to "absent sink, not fatal."
func New(detector Detector, jsonLog *store.JSONLog, sqlStore *store.SQLStore, hist *history.Ring, hub *broadcast.Hub, logger *slog.Logger) *Processor {
	return &Processor{
		detector: detector,
		jsonLog:  jsonLog,
		sqlStore: sqlStore,
		history:  hist,
		hub:      hub,
		logger:   logger,
	}
}

// Handle runs the full pipeline for one decoded packet from src. It
// matches the dhcp.Handler signature so it can be passed directly to
// dhcp.NewServer.
func (p *Processor) Handle(ctx context.Context, pkt *dhcp.Packet, src *net.UDPAddr) {
	start := time.Now()

	req := p.buildRequest(pkt, src)
	p.overlayDetection(ctx, pkt, src, req)

	if p.jsonLog != nil {
		if err := p.jsonLog.Append(req); err != nil {
			metrics.StoreWriteErrors.WithLabelValues("jsonlog").Inc()
			p.logger.Error("failed to append json log record", "mac", req.MACAddress, "error", err)
		}
	}

	if p.sqlStore != nil {
		if err := p.sqlStore.Insert(req); err != nil {
			metrics.StoreWriteErrors.WithLabelValues("sqlite").Inc()
			p.logger.Error("failed to insert dhcp_requests row", "mac", req.MACAddress, "error", err)
		}
	}

	p.history.Push(req)
	metrics.HistorySize.Set(float64(p.history.Len()))
	metrics.UniqueMACs.Set(float64(p.history.Stats().UniqueMACs))

	p.hub.Publish(req)

	metrics.PacketsObserved.WithLabelValues(req.MessageType).Inc()
	metrics.PacketProcessingDuration.Observe(time.Since(start).Seconds())
}

// buildRequest constructs the base request from the decoded packet,
// before any detection has run.
func (p *Processor) buildRequest(pkt *dhcp.Packet, src *net.UDPAddr) *detect.Request {
	req := &detect.Request{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		SourceIP:    src.IP.String(),
		SourcePort:  uint16(src.Port),
		MACAddress:  pkt.MACAddress(),
		MessageType: dhcp.MessageTypeName(pkt.MessageType()),
		XID:         fmt.Sprintf("%08x", pkt.XID),
		Fingerprint: pkt.Fingerprint(),
		RawOptions:  pkt.Options,
	}
	if vendor := pkt.VendorClassID(); vendor != "" {
		req.VendorClass = &vendor
	}
	return req
}

// overlayDetection calls the hybrid detector and overlays its output
// fields onto req.
func (p *Processor) overlayDetection(ctx context.Context, pkt *dhcp.Packet, src *net.UDPAddr, req *detect.Request) {
	var vendorClass string
	if req.VendorClass != nil {
		vendorClass = *req.VendorClass
	}

	result := p.detector.Detect(ctx, pkt.CHAddr, src.IP, req.Fingerprint, vendorClass)

	osName, deviceClass, method := result.OSName, result.DeviceClass, result.Method
	confidence := result.Confidence
	req.OSName = &osName
	req.DeviceClass = &deviceClass
	req.DetectionMethod = &method
	req.Confidence = &confidence

	if result.SMBDialect != "" {
		dialect := result.SMBDialect
		build := result.SMBBuild
		req.SMBDialect = &dialect
		req.SMBBuild = &build
	}
}
