package fingerprint

import (
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// macMapping mirrors the [mappings] table shape of mac_os_mapping.toml:
//
//	[mappings."aa:bb:cc:dd:ee:ff"]
//	os_name = "Custom Appliance"
//	device_class = "Embedded"
//	vendor = "Acme"
type macMapping struct {
	Mappings map[string]OSInfo `toml:"mappings"`
}

// LoadMACOverrides reads the MAC-to-OS override table from a TOML file.
// A missing file is not an error — override support is opt-in — and a
// file that fails to parse logs a warning and is treated as empty rather
// than aborting startup.
func LoadMACOverrides(path string, logger *slog.Logger) map[string]OSInfo {
	data, err := os.ReadFile(path)
	if err != nil {
		if logger != nil {
			logger.Debug("no MAC override file found, MAC mapping disabled", "path", path)
		}
		return map[string]OSInfo{}
	}

	var m macMapping
	if err := toml.Unmarshal(data, &m); err != nil {
		if logger != nil {
			logger.Warn("failed to parse MAC override file", "path", path, "error", err)
		}
		return map[string]OSInfo{}
	}

	if logger != nil {
		logger.Info("loaded MAC address overrides", "count", len(m.Mappings))
	}
	return m.Mappings
}
