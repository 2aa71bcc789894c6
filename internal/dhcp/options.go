package dhcp

// Option codes this service inspects. The full RFC 2132 registry is much
// larger; only the codes the detector and the external interfaces care
// about are named — everything else passes through Options untouched.
const (
	OptionPad                  byte = 0
	OptionHostname             byte = 12
	OptionRequestedIP          byte = 50
	OptionMessageType          byte = 53
	OptionServerIdentifier     byte = 54
	OptionParameterRequestList byte = 55
	OptionVendorClassID        byte = 60
	OptionClientIdentifier     byte = 61
	OptionEnd                  byte = 255
)

// DecodeOptions parses the options section of a DHCPv4 packet (RFC 2132),
// preserving wire order. Unlike an authoritative server, this decoder
// never rejects a packet over a malformed options area: a truncated TLV
// (a length byte claiming more data than remains) stops the walk and
// returns whatever options were parsed before it, rather than failing the
// whole packet — the fixed header and MAC are still useful even when a
// buggy or malicious client sends garbage options.
func DecodeOptions(data []byte) []Option {
	var opts []Option
	i := 0
	for i < len(data) {
		code := data[i]
		i++

		if code == OptionPad {
			continue
		}
		if code == OptionEnd {
			break
		}

		if i >= len(data) {
			break // truncated: no length byte follows
		}
		length := int(data[i])
		i++

		if i+length > len(data) {
			break // truncated: value runs past the end of the buffer
		}

		value := make([]byte, length)
		copy(value, data[i:i+length])
		opts = append(opts, Option{Code: code, Data: value})
		i += length
	}
	return opts
}

// RawJSON renders the options as the ordered [[code, byte...], ...] shape
// the persistence layer stores and round-trips through raw_options.
func RawJSON(opts []Option) [][]int {
	out := make([][]int, len(opts))
	for i, o := range opts {
		row := make([]int, 0, len(o.Data)+1)
		row = append(row, int(o.Code))
		for _, b := range o.Data {
			row = append(row, int(b))
		}
		out[i] = row
	}
	return out
}

// OptionsFromRawJSON is RawJSON's inverse, reconstructing Options from the
// [[code, byte...], ...] shape read back from the persistence layer.
func OptionsFromRawJSON(raw [][]int) []Option {
	out := make([]Option, 0, len(raw))
	for _, row := range raw {
		if len(row) == 0 {
			continue
		}
		data := make([]byte, 0, len(row)-1)
		for _, v := range row[1:] {
			data = append(data, byte(v))
		}
		out = append(out, Option{Code: byte(row[0]), Data: data})
	}
	return out
}
