package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dhcpsentry/dhcpsentry/internal/detect"
	"github.com/dhcpsentry/dhcpsentry/internal/dhcp"
)

// sortColumns allow-lists the columns a caller may sort by. A free-form
// or unrecognized column name falls back to "timestamp" rather than being
// interpolated into the query, grounded on original_source/src/db/
// queries.rs's sanitize_column_name (there a match returning a static
// string; here a Go map, since Go has no equivalent exhaustive-match
// literal syntax worth imitating).
var sortColumns = map[string]bool{
	"timestamp":    true,
	"source_ip":    true,
	"source_port":  true,
	"mac_address":  true,
	"message_type": true,
	"xid":          true,
	"created_at":   true,
}

// SanitizeSortColumn returns column if it is allow-listed, else "timestamp".
func SanitizeSortColumn(column string) string {
	if sortColumns[column] {
		return column
	}
	return "timestamp"
}

const schema = `
CREATE TABLE IF NOT EXISTS dhcp_requests (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp         TEXT NOT NULL,
	source_ip         TEXT NOT NULL,
	source_port       INTEGER NOT NULL,
	mac_address       TEXT NOT NULL,
	message_type      TEXT NOT NULL,
	xid               TEXT NOT NULL,
	fingerprint       TEXT NOT NULL,
	vendor_class      TEXT,
	os_name           TEXT,
	device_class      TEXT,
	raw_options       TEXT NOT NULL,
	detection_method  TEXT,
	confidence        REAL,
	smb_dialect       TEXT,
	smb_build         INTEGER,
	created_at        TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_dhcp_requests_timestamp ON dhcp_requests(timestamp);
CREATE INDEX IF NOT EXISTS idx_dhcp_requests_mac_address ON dhcp_requests(mac_address);
CREATE INDEX IF NOT EXISTS idx_dhcp_requests_message_type ON dhcp_requests(message_type);
CREATE INDEX IF NOT EXISTS idx_dhcp_requests_created_at ON dhcp_requests(created_at);
`

// SQLStore is the relational persistence sink, backed by the pure-Go
// modernc.org/sqlite driver (no cgo), grounded on grimm-is-glacic's
// internal/audit/store.go — the pack's only example of a database/sql
// store. Every statement uses parameterized placeholders; this port
// deliberately does not carry over original_source's string-formatted
// WHERE-clause construction, which was SQL-injection-shaped.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if necessary) the SQLite database at path
// and ensures the schema exists.
func OpenSQLStore(path string, maxOpenConns int) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store %s: %w", path, err)
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating dhcp_requests schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Insert persists one enriched request.
func (s *SQLStore) Insert(req *detect.Request) error {
	rawOptions, err := json.Marshal(dhcp.RawJSON(req.RawOptions))
	if err != nil {
		return fmt.Errorf("marshalling raw_options: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO dhcp_requests (
			timestamp, source_ip, source_port, mac_address, message_type, xid,
			fingerprint, vendor_class, os_name, device_class, raw_options,
			detection_method, confidence, smb_dialect, smb_build
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Timestamp, req.SourceIP, req.SourcePort, req.MACAddress, req.MessageType, req.XID,
		req.Fingerprint, req.VendorClass, req.OSName, req.DeviceClass, string(rawOptions),
		req.DetectionMethod, req.Confidence, req.SMBDialect, req.SMBBuild,
	)
	if err != nil {
		return fmt.Errorf("inserting dhcp_requests row: %w", err)
	}
	return nil
}

// Filter selects which rows Query and Count consider. Zero-value fields
// mean "no restriction on this column."
type Filter struct {
	MAC         string // substring
	Vendor      string // substring
	XID         string // substring
	MessageType string // exact
}

// whereClause builds a parameterized WHERE clause (or "" if unfiltered)
// and its bound arguments. Every value is bound via a placeholder — never
// interpolated into the SQL text.
func (f Filter) whereClause() (string, []any) {
	var clauses []string
	var args []any

	if f.MAC != "" {
		clauses = append(clauses, "mac_address LIKE ?")
		args = append(args, "%"+f.MAC+"%")
	}
	if f.Vendor != "" {
		clauses = append(clauses, "vendor_class LIKE ?")
		args = append(args, "%"+f.Vendor+"%")
	}
	if f.XID != "" {
		clauses = append(clauses, "xid LIKE ?")
		args = append(args, "%"+f.XID+"%")
	}
	if f.MessageType != "" {
		clauses = append(clauses, "message_type = ?")
		args = append(args, f.MessageType)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Count returns the number of rows matching filter.
func (s *SQLStore) Count(filter Filter) (int, error) {
	where, args := filter.whereClause()
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM dhcp_requests"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting dhcp_requests: %w", err)
	}
	return count, nil
}

// Query returns rows matching filter, sorted by sortColumn (allow-listed
// via SanitizeSortColumn — never built from raw caller input) in
// descending order, with limit/offset pagination.
func (s *SQLStore) Query(filter Filter, sortColumn string, limit, offset int) ([]*detect.Request, error) {
	where, args := filter.whereClause()
	column := SanitizeSortColumn(sortColumn)
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		"SELECT timestamp, source_ip, source_port, mac_address, message_type, xid, fingerprint, "+
			"vendor_class, os_name, device_class, raw_options, detection_method, confidence, "+
			"smb_dialect, smb_build FROM dhcp_requests%s ORDER BY %s DESC LIMIT ? OFFSET ?",
		where, column,
	)
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dhcp_requests: %w", err)
	}
	defer rows.Close()

	var out []*detect.Request
	for rows.Next() {
		var req detect.Request
		var rawOptions string
		var vendorClass, osName, deviceClass, detectionMethod, smbDialect sql.NullString
		var confidence sql.NullFloat64
		var smbBuild sql.NullInt64

		if err := rows.Scan(
			&req.Timestamp, &req.SourceIP, &req.SourcePort, &req.MACAddress, &req.MessageType, &req.XID,
			&req.Fingerprint, &vendorClass, &osName, &deviceClass, &rawOptions,
			&detectionMethod, &confidence, &smbDialect, &smbBuild,
		); err != nil {
			return nil, fmt.Errorf("scanning dhcp_requests row: %w", err)
		}

		req.VendorClass = nullStringPtr(vendorClass)
		req.OSName = nullStringPtr(osName)
		req.DeviceClass = nullStringPtr(deviceClass)
		req.DetectionMethod = nullStringPtr(detectionMethod)
		req.SMBDialect = nullStringPtr(smbDialect)
		if confidence.Valid {
			req.Confidence = &confidence.Float64
		}
		if smbBuild.Valid {
			build := int(smbBuild.Int64)
			req.SMBBuild = &build
		}

		var raw [][]int
		if err := json.Unmarshal([]byte(rawOptions), &raw); err != nil {
			return nil, fmt.Errorf("decoding raw_options: %w", err)
		}
		req.RawOptions = dhcp.OptionsFromRawJSON(raw)

		out = append(out, &req)
	}
	return out, rows.Err()
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
