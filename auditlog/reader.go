package auditlog

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/h2non/filetype"
)

// sniffLen matches the header size filetype needs to identify every type it knows.
const sniffLen = 261

// Decode reads CSV audit records from r. Gzip-compressed input (rotated logs)
// is detected from its magic bytes and decompressed transparently.
func Decode(r io.Reader) ([][]string, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("read audit log header: %w", err)
	}

	var src io.Reader = br
	if isGzip(head) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip audit log: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	var records [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, fmt.Errorf("parse audit log: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// ReadFile decodes the audit log stored at path.
func ReadFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return records, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func isGzip(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return false
	}
	return kind.Extension == "gz"
}
