package detect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/dhcpsentry/dhcpsentry/internal/fingerprint"
	"github.com/dhcpsentry/dhcpsentry/internal/smb"
)

var errTransport = errors.New("simulated transport failure")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{EnableSMBProbing: true, SMBTimeout: time.Second, SMBCacheTTL: time.Hour}
}

// fakeReachability reports the configured availability, reachability and
// error for every host, and counts Probe calls.
type fakeReachability struct {
	available bool
	reachable bool
	err       error
	calls     int
}

func (f *fakeReachability) Available() bool { return f.available }
func (f *fakeReachability) Probe(ctx context.Context, ip net.IP) (bool, error) {
	f.calls++
	return f.reachable, f.err
}

func win11Packet() (net.HardwareAddr, string, string) {
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	fp := "1,3,6,15,31,33,43,44,46,47,121,249,252,12"
	vendor := "MSFT 5.0"
	return mac, fp, vendor
}

func TestDetect_WindowsExactMatch(t *testing.T) {
	mac, fp, _ := win11Packet()
	fingerprints := fingerprint.New()
	d := New(fingerprints, &fakeReachability{}, Config{EnableSMBProbing: false}, testLogger())

	got := d.Detect(context.Background(), mac, net.ParseIP("192.0.2.10"), fp, "")

	if got.OSName != "Windows 11" || got.DeviceClass != "Desktop/Laptop" {
		t.Fatalf("got %+v", got)
	}
	if got.Method != "MAC/Fingerprint lookup" || got.Confidence != 0.95 {
		t.Fatalf("got %+v", got)
	}
}

func TestDetect_UnknownFingerprint(t *testing.T) {
	mac, _, _ := win11Packet()
	fingerprints := fingerprint.New()
	d := New(fingerprints, &fakeReachability{}, Config{EnableSMBProbing: false}, testLogger())

	got := d.Detect(context.Background(), mac, net.ParseIP("192.0.2.10"), "99,98,97", "")

	if got.OSName != "Unknown" || got.Confidence != 0.0 || got.Method != "None" {
		t.Fatalf("got %+v", got)
	}
}

func TestDetect_SMBRefinement(t *testing.T) {
	mac, fp, vendor := win11Packet()
	fingerprints := fingerprint.New()
	reach := &fakeReachability{available: true, reachable: true}
	d := New(fingerprints, reach, testConfig(), testLogger())
	d.probeSMB = func(ctx context.Context, ip net.IP, timeout time.Duration) (smb.ProbeResult, error) {
		return smb.ProbeResult{OSVersion: "Windows 10/11 (SMB 3.1.1)", Dialect: "SMB 3.1.1", BuildNumber: 19041, Success: true}, nil
	}

	got := d.Detect(context.Background(), mac, net.ParseIP("192.0.2.10"), fp, vendor)

	if got.OSName != "Windows 10/11 (SMB 3.1.1)" || got.SMBDialect != "SMB 3.1.1" || got.SMBBuild != 19041 {
		t.Fatalf("got %+v", got)
	}
	if got.DeviceClass != "Desktop/Laptop" || got.Vendor != "Microsoft" {
		t.Fatalf("device class/vendor not fused correctly: %+v", got)
	}
	if got.Method != "SMB probe (SMB 3.1.1)" {
		t.Fatalf("got method %q", got.Method)
	}
}

func TestDetect_SuppressedByVendorClass(t *testing.T) {
	mac, fp, _ := win11Packet()
	fingerprints := fingerprint.New()
	reach := &fakeReachability{available: true, reachable: true}
	probed := false
	d := New(fingerprints, reach, testConfig(), testLogger())
	d.probeSMB = func(ctx context.Context, ip net.IP, timeout time.Duration) (smb.ProbeResult, error) {
		probed = true
		return smb.ProbeResult{}, nil
	}

	got := d.Detect(context.Background(), mac, net.ParseIP("192.0.2.10"), fp, "")

	if probed {
		t.Fatal("expected no SMB dial when vendor_class is empty")
	}
	if got.Method != "MAC/Fingerprint lookup" {
		t.Fatalf("got %+v", got)
	}
}

func TestDetect_SuppressedByUnreachableHost(t *testing.T) {
	mac, fp, vendor := win11Packet()
	fingerprints := fingerprint.New()
	reach := &fakeReachability{available: true, reachable: false}
	probed := false
	d := New(fingerprints, reach, testConfig(), testLogger())
	d.probeSMB = func(ctx context.Context, ip net.IP, timeout time.Duration) (smb.ProbeResult, error) {
		probed = true
		return smb.ProbeResult{}, nil
	}

	got := d.Detect(context.Background(), mac, net.ParseIP("192.0.2.10"), fp, vendor)

	if probed {
		t.Fatal("expected no SMB dial when reachability pre-check reports unreachable")
	}
	if got.Method != "MAC/Fingerprint lookup" {
		t.Fatalf("got %+v", got)
	}
}

func TestDetect_ReachabilityErrorDoesNotSuppress(t *testing.T) {
	mac, fp, vendor := win11Packet()
	fingerprints := fingerprint.New()
	reach := &fakeReachability{available: true, err: errTransport}
	probed := false
	d := New(fingerprints, reach, testConfig(), testLogger())
	d.probeSMB = func(ctx context.Context, ip net.IP, timeout time.Duration) (smb.ProbeResult, error) {
		probed = true
		return smb.ProbeResult{OSVersion: "Windows 10/11 (SMB 3.1.1)", Dialect: "SMB 3.1.1", BuildNumber: 19041, Success: true}, nil
	}

	_ = d.Detect(context.Background(), mac, net.ParseIP("192.0.2.10"), fp, vendor)

	if !probed {
		t.Fatal("expected SMB probe to proceed when reachability pre-check errors")
	}
}

func TestDetect_CacheHitAvoidsSecondDial(t *testing.T) {
	mac, fp, vendor := win11Packet()
	fingerprints := fingerprint.New()
	reach := &fakeReachability{available: true, reachable: true}
	dials := 0
	d := New(fingerprints, reach, testConfig(), testLogger())
	d.probeSMB = func(ctx context.Context, ip net.IP, timeout time.Duration) (smb.ProbeResult, error) {
		dials++
		return smb.ProbeResult{OSVersion: "Windows 10/11 (SMB 3.1.1)", Dialect: "SMB 3.1.1", BuildNumber: 19041, Success: true}, nil
	}

	ip := net.ParseIP("192.0.2.10")
	first := d.Detect(context.Background(), mac, ip, fp, vendor)
	second := d.Detect(context.Background(), mac, ip, fp, vendor)

	if dials != 1 {
		t.Fatalf("expected exactly one SMB dial across two probes within TTL, got %d", dials)
	}
	if second.SMBDialect != first.SMBDialect || second.SMBBuild != first.SMBBuild {
		t.Fatalf("cache hit should return the same dialect/build as the first probe")
	}
}

func TestDetect_CacheExpiryReDials(t *testing.T) {
	mac, fp, vendor := win11Packet()
	fingerprints := fingerprint.New()
	reach := &fakeReachability{available: true, reachable: true}
	dials := 0
	d := New(fingerprints, reach, Config{EnableSMBProbing: true, SMBTimeout: time.Second, SMBCacheTTL: 2 * time.Second}, testLogger())
	d.probeSMB = func(ctx context.Context, ip net.IP, timeout time.Duration) (smb.ProbeResult, error) {
		dials++
		return smb.ProbeResult{OSVersion: "Windows 10/11 (SMB 3.1.1)", Dialect: "SMB 3.1.1", BuildNumber: 19041, Success: true}, nil
	}
	var clock int64 = 1000
	d.now = func() int64 { return clock }

	ip := net.ParseIP("192.0.2.10")
	d.Detect(context.Background(), mac, ip, fp, vendor)
	clock += 1 // still within the 2s TTL
	d.Detect(context.Background(), mac, ip, fp, vendor)
	if dials != 1 {
		t.Fatalf("expected cache hit within TTL, got %d dials", dials)
	}
	clock += 1 // now exactly at the TTL boundary
	d.Detect(context.Background(), mac, ip, fp, vendor)
	if dials != 2 {
		t.Fatalf("expected re-dial exactly at TTL expiry, got %d dials", dials)
	}
}

func TestDetect_MACOverrideWinsOverFingerprint(t *testing.T) {
	mac, fp, _ := win11Packet()
	fingerprints := fingerprint.New()
	fingerprints.SetOverrides(map[string]fingerprint.OSInfo{
		mac.String(): {OSName: "Custom Appliance", DeviceClass: "IoT", Vendor: "Acme"},
	})
	d := New(fingerprints, &fakeReachability{}, Config{EnableSMBProbing: false}, testLogger())

	got := d.Detect(context.Background(), mac, net.ParseIP("192.0.2.10"), fp, "")

	if got.OSName != "Custom Appliance" {
		t.Fatalf("expected MAC override to win over a matching fingerprint, got %+v", got)
	}
}

func TestDetect_SMBTransportErrorFallsBackToBaseline(t *testing.T) {
	mac, fp, vendor := win11Packet()
	fingerprints := fingerprint.New()
	reach := &fakeReachability{available: true, reachable: true}
	d := New(fingerprints, reach, testConfig(), testLogger())
	d.probeSMB = func(ctx context.Context, ip net.IP, timeout time.Duration) (smb.ProbeResult, error) {
		return smb.ProbeResult{}, errTransport
	}

	got := d.Detect(context.Background(), mac, net.ParseIP("192.0.2.10"), fp, vendor)

	if got.Method != "MAC/Fingerprint lookup" || got.SMBDialect != "" {
		t.Fatalf("expected baseline fallback on transport error, got %+v", got)
	}
}

func TestCacheStats_CountsExpiredSeparately(t *testing.T) {
	fingerprints := fingerprint.New()
	d := New(fingerprints, &fakeReachability{}, Config{SMBCacheTTL: time.Second}, testLogger())
	var clock int64 = 0
	d.now = func() int64 { return clock }
	d.storeCacheEntry("192.0.2.1", smb.ProbeResult{Success: true})
	clock = 10
	d.storeCacheEntry("192.0.2.2", smb.ProbeResult{Success: true})

	total, expired := d.CacheStats()
	if total != 2 || expired != 1 {
		t.Fatalf("got total=%d expired=%d, want total=2 expired=1", total, expired)
	}

	d.ClearCache()
	total, _ = d.CacheStats()
	if total != 0 {
		t.Fatalf("expected empty cache after ClearCache, got %d", total)
	}
}

