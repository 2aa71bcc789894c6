// Package history holds the in-memory, overwriting ring of recently
// observed DHCP requests and the aggregate statistics derived from it.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/dhcpsentry/dhcpsentry/internal/detect"
)

// Statistics is a point-in-time aggregate snapshot, matching the fields
// the HTTP stats endpoint serves verbatim.
type Statistics struct {
	TotalRequests     uint64            `json:"total_requests"`
	RequestTypes      map[string]uint64 `json:"request_types"`
	UniqueMACs        uint64            `json:"unique_macs"`
	RequestsPerMinute float64           `json:"requests_per_minute"`
	UptimeSeconds     uint64            `json:"uptime_seconds"`
	LastUpdated       string            `json:"last_updated"`
	VendorClasses     map[string]uint64 `json:"vendor_classes"`
}

// Ring is a fixed-capacity, overwriting history of observed requests
// plus the statistics kept jointly consistent with it. Push takes the
// single exclusive critical section spec.md requires so that
// unique_macs and the per-type/per-vendor counters can never be observed
// out of sync with one another.
type Ring struct {
	mu       sync.RWMutex
	buf      []*detect.Request
	next     int // index the next Push writes to
	size     int // number of populated slots, capped at cap(buf)
	capacity int

	startedAt time.Time

	totalRequests uint64
	requestTypes  map[string]uint64
	vendorClasses map[string]uint64
	uniqueMACs    map[string]struct{}
}

// New returns an empty Ring with the given fixed capacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{
		buf:           make([]*detect.Request, capacity),
		capacity:      capacity,
		startedAt:     time.Now(),
		requestTypes:  map[string]uint64{},
		vendorClasses: map[string]uint64{},
		uniqueMACs:    map[string]struct{}{},
	}
}

// Push inserts req, overwriting the oldest entry once the ring is full,
// and updates aggregate statistics in the same critical section.
func (r *Ring) Push(req *detect.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = req
	r.next = (r.next + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}

	r.totalRequests++
	r.requestTypes[req.MessageType]++
	r.uniqueMACs[req.MACAddress] = struct{}{}
	if req.VendorClass != nil && *req.VendorClass != "" {
		r.vendorClasses[*req.VendorClass]++
	}
}

// Len returns the number of entries currently held in the ring.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Recent returns up to limit entries, newest-first.
func (r *Ring) Recent(limit int) []*detect.Request {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]*detect.Request, 0, limit)
	idx := r.next - 1
	for i := 0; i < limit; i++ {
		if idx < 0 {
			idx = r.capacity - 1
		}
		out = append(out, r.buf[idx])
		idx--
	}
	return out
}

// Search linearly scans the ring newest-first, returning entries
// matching every supplied, non-empty predicate: a case-insensitive
// substring match on MAC address and vendor class, and a case-
// insensitive exact match on message type. An empty predicate is always
// satisfied.
func (r *Ring) Search(mac, vendor, msgType string) []*detect.Request {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mac = strings.ToLower(mac)
	vendor = strings.ToLower(vendor)
	msgType = strings.ToLower(msgType)

	out := make([]*detect.Request, 0)
	idx := r.next - 1
	for i := 0; i < r.size; i++ {
		if idx < 0 {
			idx = r.capacity - 1
		}
		req := r.buf[idx]
		idx--

		if mac != "" && !strings.Contains(strings.ToLower(req.MACAddress), mac) {
			continue
		}
		if vendor != "" {
			if req.VendorClass == nil || !strings.Contains(strings.ToLower(*req.VendorClass), vendor) {
				continue
			}
		}
		if msgType != "" && !strings.EqualFold(req.MessageType, msgType) {
			continue
		}
		out = append(out, req)
	}
	return out
}

// Stats returns a snapshot of the current aggregate statistics.
func (r *Ring) Stats() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	elapsed := time.Since(r.startedAt)
	elapsedSeconds := uint64(elapsed.Seconds())

	var rpm float64
	if elapsed.Seconds() >= 1 {
		rpm = float64(r.totalRequests) / (elapsed.Seconds() / 60)
	}

	return Statistics{
		TotalRequests:     r.totalRequests,
		RequestTypes:      copyCounts(r.requestTypes),
		UniqueMACs:        uint64(len(r.uniqueMACs)),
		RequestsPerMinute: rpm,
		UptimeSeconds:     elapsedSeconds,
		LastUpdated:       time.Now().UTC().Format(time.RFC3339),
		VendorClasses:     copyCounts(r.vendorClasses),
	}
}

func copyCounts(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
