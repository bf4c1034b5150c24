package xref

import (
	"bytes"

	"github.com/pkg/errors"
)

const startxrefMarker = "startxref"

// scanWindow is how much of the file tail is examined per step when
// hunting for the startxref marker.
const scanWindow = 1024

// findStartXref locates the newest revision's table offset: the integer
// that follows the last startxref marker in the file. The tail is scanned
// backward in 1KB windows that overlap by the marker length, so the marker
// can never be split across a window boundary. Not finding the marker at
// all is fatal; the document cannot be opened.
func findStartXref(data []byte) (int64, error) {
	marker := []byte(startxrefMarker)
	end := len(data)
	for end > 0 {
		start := end - scanWindow
		if start < 0 {
			start = 0
		}
		if i := bytes.LastIndex(data[start:end], marker); i >= 0 {
			return parseStartXrefOffset(data, start+i+len(marker))
		}
		if start == 0 {
			break
		}
		end = start + len(marker) - 1
	}
	return 0, errors.New("startxref marker not found")
}

func parseStartXrefOffset(data []byte, pos int) (int64, error) {
	for pos < len(data) && isASCIISpace(data[pos]) {
		pos++
	}
	var (
		off  int64
		seen bool
	)
	for pos < len(data) && data[pos] >= '0' && data[pos] <= '9' {
		off = off*10 + int64(data[pos]-'0')
		seen = true
		pos++
	}
	if !seen {
		return 0, errors.New("startxref is not followed by an offset")
	}
	if off <= 0 || off >= int64(len(data)) {
		return 0, errors.Errorf("startxref offset %d out of range", off)
	}
	return off, nil
}

func isASCIISpace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}
