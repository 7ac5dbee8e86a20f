//go:build jsonv2

package output

import (
	"encoding/json/jsontext"
	jsonv2 "encoding/json/v2"
	"io"
)

func jsonMarshal(value any) ([]byte, error) {
	return jsonv2.Marshal(value)
}

// encodeRecord writes value as a single NDJSON line.
func encodeRecord(w io.Writer, value any) error {
	if err := jsonv2.MarshalWrite(w, value, jsontext.EscapeForHTML(false)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
