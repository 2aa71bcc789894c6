package ingest

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/dhcpsentry/dhcpsentry/internal/broadcast"
	"github.com/dhcpsentry/dhcpsentry/internal/detect"
	"github.com/dhcpsentry/dhcpsentry/internal/dhcp"
	"github.com/dhcpsentry/dhcpsentry/internal/history"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDetector struct {
	result detect.DetectionResult
}

func (f *fakeDetector) Detect(ctx context.Context, mac net.HardwareAddr, ip net.IP, fingerprint, vendorClass string) detect.DetectionResult {
	return f.result
}

func samplePacket() *dhcp.Packet {
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	return &dhcp.Packet{
		XID:    0x1234abcd,
		CHAddr: mac,
		Options: []dhcp.Option{
			{Code: dhcp.OptionMessageType, Data: []byte{3}},
			{Code: dhcp.OptionParameterRequestList, Data: []byte{1, 3, 6}},
			{Code: dhcp.OptionVendorClassID, Data: []byte("MSFT 5.0")},
		},
	}
}

func TestProcessor_HandlePushesToHistoryAndBroadcast(t *testing.T) {
	det := &fakeDetector{result: detect.DetectionResult{
		OSName: "Windows 11", DeviceClass: "Desktop/Laptop", Vendor: "Microsoft",
		Confidence: 0.95, Method: "MAC/Fingerprint lookup",
	}}
	hist := history.New(10)
	hub := broadcast.NewHub(testLogger())
	p := New(det, nil, nil, hist, hub, testLogger())

	_, ch := hub.Subscribe(nil)

	src := &net.UDPAddr{IP: net.ParseIP("192.0.2.10"), Port: 68}
	p.Handle(context.Background(), samplePacket(), src)

	recent := hist.Recent(1)
	if len(recent) != 1 {
		t.Fatalf("expected one history entry, got %d", len(recent))
	}
	req := recent[0]
	if req.MACAddress != "aa:bb:cc:dd:ee:ff" || req.MessageType != "REQUEST" || req.XID != "1234abcd" {
		t.Fatalf("unexpected base request: %+v", req)
	}
	if req.VendorClass == nil || *req.VendorClass != "MSFT 5.0" {
		t.Fatalf("expected vendor class overlay, got %+v", req.VendorClass)
	}
	if req.OSName == nil || *req.OSName != "Windows 11" {
		t.Fatalf("expected detection overlay, got %+v", req.OSName)
	}

	select {
	case published := <-ch:
		if published.MACAddress != req.MACAddress {
			t.Fatalf("published item does not match history entry")
		}
	default:
		t.Fatal("expected the request to be published to the broadcast hub")
	}
}

func TestProcessor_HandleWithNoVendorClass(t *testing.T) {
	det := &fakeDetector{result: detect.DetectionResult{OSName: "Unknown", DeviceClass: "Unknown", Vendor: "Unknown", Method: "None"}}
	hist := history.New(10)
	hub := broadcast.NewHub(testLogger())
	p := New(det, nil, nil, hist, hub, testLogger())

	pkt := samplePacket()
	pkt.Options = []dhcp.Option{{Code: dhcp.OptionMessageType, Data: []byte{1}}}
	src := &net.UDPAddr{IP: net.ParseIP("192.0.2.11"), Port: 68}
	p.Handle(context.Background(), pkt, src)

	req := hist.Recent(1)[0]
	if req.VendorClass != nil {
		t.Fatalf("expected nil vendor class, got %q", *req.VendorClass)
	}
	if req.MessageType != "DISCOVER" {
		t.Fatalf("expected DISCOVER, got %q", req.MessageType)
	}
}
