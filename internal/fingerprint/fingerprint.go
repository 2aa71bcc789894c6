// Package fingerprint classifies a DHCP client's OS and device type from
// its Option 55 (Parameter Request List) fingerprint, with an optional
// per-MAC override table layered on top.
package fingerprint

// OSInfo describes the operating system and device class attributed to a
// fingerprint or MAC override.
type OSInfo struct {
	OSName      string `toml:"os_name"`
	DeviceClass string `toml:"device_class"`
	Vendor      string `toml:"vendor"`
}

// String renders "<os_name> (<device_class>)", the canonical display form
// used in logs and exports.
func (o OSInfo) String() string {
	return o.OSName + " (" + o.DeviceClass + ")"
}

// db maps a canonical Option 55 fingerprint (comma-separated decimal
// option codes, in wire order) to the OS it identifies. Matching is exact
// — no substring or subset matching — so a client whose fingerprint
// differs by even one trailing option falls through to "unknown" rather
// than silently matching the wrong entry.
//
// Entries are registered in priority order: where two device families
// would otherwise share a fingerprint, the more specific signature is
// listed first. In this table no two keys collide, so insertion order
// has no observable effect beyond documenting the historical order the
// signatures were catalogued in.
var db = map[string]OSInfo{
	"1,3,6,15,31,33,43,44,46,47,121,249,252,12": {"Windows 11", "Desktop/Laptop", "Microsoft"},
	"1,3,6,15,31,33,43,44,46,47,121,249,252":    {"Windows 10/8/8.1", "Desktop/Laptop", "Microsoft"},
	"1,15,3,6,44,46,47,31,33,121,249,43,252":    {"Windows 7", "Desktop/Laptop", "Microsoft"},
	"1,3,6,15,119,252":                          {"macOS (Recent)", "Desktop/Laptop", "Apple"},
	"1,3,6,15,119,95,252,44,46":                 {"macOS (Older)", "Desktop/Laptop", "Apple"},
	"1,3,6,15,119,252,95,44,46":                 {"iOS/iPadOS", "Mobile", "Apple"},
	"1,121,3,6,15,119,252,95,44,46":             {"iOS", "Mobile", "Apple"},
	"1,3,6,15,26,28,51,58,59":                   {"Android", "Mobile", "Google"},
	"1,3,6,12,15,26,28,51,58,59,43":             {"Android", "Mobile", "Google"},
	"1,28,2,3,15,6,119,12,44,47,26,121,42":      {"Linux (Ubuntu/Debian)", "Desktop/Server", "Linux"},
	"1,3,6,12,15,28,42,51,54,58,59":             {"Linux", "Desktop/Server", "Linux"},
	"1,3,6,12,15,28,51,58,59,119":               {"Chrome OS", "Chromebook", "Google"},
	"1,3,6,15,12,28":                            {"PlayStation", "Gaming Console", "Sony"},
	"1,3,6,15,44,46,47,12":                      {"Xbox", "Gaming Console", "Microsoft"},
	"1,3,6,15,28,51,58,59":                      {"Nintendo Switch", "Gaming Console", "Nintendo"},
	"1,3,6,12,15,28,42":                         {"Roku", "Streaming Device", "Roku"},
	"1,3,6,15,26,28,51,58,59,43,12":             {"Fire TV", "Streaming Device", "Amazon"},
}

// LookupFingerprint looks up fingerprint against the built-in table only.
// Exact match; no fuzzy or subset matching.
func LookupFingerprint(fingerprint string) (OSInfo, bool) {
	info, ok := db[fingerprint]
	return info, ok
}

// DB is a classifier combining the built-in fingerprint table with an
// optional MAC-address override table.
type DB struct {
	overrides map[string]OSInfo
}

// New returns a DB with no overrides loaded.
func New() *DB {
	return &DB{overrides: map[string]OSInfo{}}
}

// SetOverrides replaces the MAC override table wholesale.
func (d *DB) SetOverrides(overrides map[string]OSInfo) {
	if overrides == nil {
		overrides = map[string]OSInfo{}
	}
	d.overrides = overrides
}

// Lookup resolves an OS classification for the given MAC address and
// fingerprint. A MAC override, if present, wins exclusively — it is never
// blended with a fingerprint-based result. Otherwise the fingerprint table
// is consulted. Returns ok=false if neither source has an entry.
func (d *DB) Lookup(mac, fingerprint string) (OSInfo, bool) {
	if info, ok := d.overrides[mac]; ok {
		return info, true
	}
	return LookupFingerprint(fingerprint)
}
