// Package detect implements the hybrid DHCP/SMB OS detector: a DHCP
// fingerprint baseline, optionally refined by a live SMB2 NEGOTIATE probe
// against hosts that look like Windows, behind a TTL cache so the same IP
// isn't re-dialed on every DHCP renewal.
package detect

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dhcpsentry/dhcpsentry/internal/dhcp"
	"github.com/dhcpsentry/dhcpsentry/internal/fingerprint"
	"github.com/dhcpsentry/dhcpsentry/internal/metrics"
	"github.com/dhcpsentry/dhcpsentry/internal/smb"
)

// Request mirrors one fully enriched DHCP observation, ready for logging,
// persistence, history, and broadcast. Detection fields are pointers so
// "never attempted" (nil) is distinguishable from a zero value.
type Request struct {
	Timestamp  string `json:"timestamp"`
	SourceIP   string `json:"source_ip"`
	SourcePort uint16 `json:"source_port"`

	MACAddress  string `json:"mac_address"`
	MessageType string `json:"message_type"`
	XID         string `json:"xid"`
	Fingerprint string `json:"fingerprint"`

	VendorClass *string `json:"vendor_class,omitempty"`

	OSName          *string  `json:"os_name,omitempty"`
	DeviceClass     *string  `json:"device_class,omitempty"`
	DetectionMethod *string  `json:"detection_method,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	SMBDialect      *string  `json:"smb_dialect,omitempty"`
	SMBBuild        *int     `json:"smb_build,omitempty"`

	RawOptions []dhcp.Option `json:"raw_options"`
}

// DetectionResult is transient, internal to the hybrid detector. The
// request processor overlays its fields onto a Request; it is never
// persisted on its own.
type DetectionResult struct {
	OSName          string
	DeviceClass     string
	Vendor          string
	Confidence      float64
	Method          string
	SMBDialect      string // empty when no SMB refinement occurred
	SMBBuild        int    // 0 when no SMB refinement occurred
}

// unknownResult returns the unrefined "Unknown" result spec.md names for a
// fingerprint/MAC miss.
func unknownResult() DetectionResult {
	return DetectionResult{OSName: "Unknown", DeviceClass: "Unknown", Vendor: "Unknown", Confidence: 0.0, Method: "None"}
}

// probeCacheEntry is one SMB cache row: the last probe result for an IP,
// plus the epoch-second timestamp it was acquired at.
type probeCacheEntry struct {
	result     smb.ProbeResult
	acquiredAt int64
}

// reachabilityChecker is the subset of *reachability.Prober the detector
// needs; narrowed to an interface so tests can substitute a fake without
// opening a raw socket.
type reachabilityChecker interface {
	Available() bool
	Probe(ctx context.Context, ip net.IP) (bool, error)
}

// Config controls the hybrid detector's SMB-refinement policy.
type Config struct {
	EnableSMBProbing bool
	SMBTimeout       time.Duration

	// SMBProbeConfidenceThreshold is recognized configuration but is not
	// consulted by the policy below — only EnableSMBProbing, a non-zero
	// IP, and a "MSFT"-containing vendor class gate the probe. Reserved
	// for a future confidence-weighted refinement policy.
	SMBProbeConfidenceThreshold float32

	SMBCacheTTL time.Duration
}

// Detector implements the six-step hybrid detection policy. The zero
// value is not usable; construct with New.
type Detector struct {
	fingerprints *fingerprint.DB
	reach        reachabilityChecker
	cfg          Config
	logger       *slog.Logger

	mu    sync.RWMutex
	cache map[string]probeCacheEntry

	// now and probeSMB are seams for tests; production code leaves them
	// at their New-assigned defaults.
	now      func() int64
	probeSMB func(ctx context.Context, ip net.IP, timeout time.Duration) (smb.ProbeResult, error)
}

// New constructs a Detector backed by the given fingerprint DB and
// reachability prober.
func New(fingerprints *fingerprint.DB, reach reachabilityChecker, cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		fingerprints: fingerprints,
		reach:        reach,
		cfg:          cfg,
		logger:       logger,
		cache:        map[string]probeCacheEntry{},
		now:          func() int64 { return time.Now().Unix() },
		probeSMB:     smb.Probe,
	}
}

// Detect runs the full hybrid policy for one observed DHCP client and
// returns the resulting classification. It never returns an error:
// every failure mode along the way degrades to the DHCP baseline.
func (d *Detector) Detect(ctx context.Context, mac net.HardwareAddr, ip net.IP, fp, vendorClass string) DetectionResult {
	baseline := d.baseline(mac, fp)

	if !d.shouldRefine(ip, vendorClass) {
		return baseline
	}

	if d.reach != nil && d.reach.Available() {
		probeCtx, cancel := context.WithTimeout(ctx, time.Second)
		reachable, err := d.reach.Probe(probeCtx, ip)
		cancel()
		if err == nil && !reachable {
			metrics.ReachabilityChecks.WithLabelValues("unreachable").Inc()
			d.logger.Debug("reachability pre-check reports unreachable, skipping SMB refinement", "ip", ip.String())
			return baseline
		}
		if err != nil {
			metrics.ReachabilityChecks.WithLabelValues("unavailable").Inc()
			d.logger.Debug("reachability pre-check errored, probing SMB anyway", "ip", ip.String(), "error", err)
		} else {
			metrics.ReachabilityChecks.WithLabelValues("reachable").Inc()
		}
	}

	key := ip.String()
	if entry, ok := d.cachedEntry(key); ok {
		metrics.SMBCacheHits.Inc()
		return d.fuse(baseline, entry.result)
	}
	metrics.SMBCacheMisses.Inc()

	result, err := d.probeSMB(ctx, ip, d.cfg.SMBTimeout)
	if err != nil {
		metrics.SMBProbesTotal.WithLabelValues("error").Inc()
		d.logger.Debug("SMB probe transport error, falling back to DHCP baseline", "ip", ip.String(), "error", err)
		return baseline
	}
	if !result.Success {
		metrics.SMBProbesTotal.WithLabelValues("refused").Inc()
		return baseline
	}
	metrics.SMBProbesTotal.WithLabelValues("success").Inc()

	d.storeCacheEntry(key, result)
	return d.fuse(baseline, result)
}

// baseline computes the DHCP-only classification via the fingerprint DB,
// MAC overrides winning exclusively over a fingerprint match.
func (d *Detector) baseline(mac net.HardwareAddr, fp string) DetectionResult {
	info, ok := d.fingerprints.Lookup(mac.String(), fp)
	if !ok {
		return unknownResult()
	}
	return DetectionResult{
		OSName:      info.OSName,
		DeviceClass: info.DeviceClass,
		Vendor:      info.Vendor,
		Confidence:  0.95,
		Method:      "MAC/Fingerprint lookup",
	}
}

// shouldRefine applies the three-condition SMB-refine gate: probing must
// be enabled, the source IP must be known (non-zero), and the vendor
// class must name Microsoft's DHCP client identifier.
func (d *Detector) shouldRefine(ip net.IP, vendorClass string) bool {
	if !d.cfg.EnableSMBProbing {
		return false
	}
	if ip == nil || ip.IsUnspecified() {
		return false
	}
	return strings.Contains(vendorClass, "MSFT")
}

// cachedEntry returns the cached probe result for key, if present and
// still within TTL and itself a success.
func (d *Detector) cachedEntry(key string) (probeCacheEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.cache[key]
	if !ok {
		return probeCacheEntry{}, false
	}
	if !entry.result.Success {
		return probeCacheEntry{}, false
	}
	if d.now()-entry.acquiredAt >= int64(d.cfg.SMBCacheTTL/time.Second) {
		return probeCacheEntry{}, false
	}
	return entry, true
}

func (d *Detector) storeCacheEntry(key string, result smb.ProbeResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[key] = probeCacheEntry{result: result, acquiredAt: d.now()}
}

// fuse applies SMB refinement onto a DHCP baseline per spec.md §4.4 step
// 6: OS name and dialect/build come from the probe, device class is
// preserved from the baseline, vendor becomes "Microsoft".
func (d *Detector) fuse(baseline DetectionResult, result smb.ProbeResult) DetectionResult {
	return DetectionResult{
		OSName:      result.OSVersion,
		DeviceClass: baseline.DeviceClass,
		Vendor:      "Microsoft",
		Confidence:  0.95,
		Method:      "SMB probe (" + result.Dialect + ")",
		SMBDialect:  result.Dialect,
		SMBBuild:    result.BuildNumber,
	}
}

// CacheStats reports the total number of cached IPs and how many of
// those entries are currently expired (stale, but not yet evicted — the
// cache only evicts lazily, on overwrite or ClearCache).
func (d *Detector) CacheStats() (total, expired int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total = len(d.cache)
	now := d.now()
	ttl := int64(d.cfg.SMBCacheTTL / time.Second)
	for _, entry := range d.cache {
		if now-entry.acquiredAt >= ttl {
			expired++
		}
	}
	return total, expired
}

// ClearCache discards all cached SMB probe results.
func (d *Detector) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = map[string]probeCacheEntry{}
}
