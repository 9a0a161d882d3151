package commands

import "encoding/json"

// jsonToCBOR decodes a JSON string into v, so --args/--payload flags can
// take ordinary JSON on the command line even though the wire format
// between clusterctl and clusterd is CBOR.
func jsonToCBOR(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
