//go:build !jsonv2

package output

import (
	"encoding/json"
	"io"
)

func jsonMarshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

// encodeRecord writes value as a single NDJSON line.
func encodeRecord(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(value)
}
