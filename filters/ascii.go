package filters

import (
	"bytes"
	"context"
	"encoding/ascii85"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/ir/raw"
)

type asciiHexDecoder struct{}

func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

// Decode consumes case-insensitive hex digit pairs, skipping whitespace.
// A '>' ends the data early. An unpaired trailing digit is padded with 0.
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary, resolve Resolver) ([]byte, error) {
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		if isASCIIWhitespace(c) {
			continue
		}
		if c == '>' {
			break
		}
		if !isHexDigit(c) {
			return nil, errors.Errorf("invalid character %q in ASCIIHexDecode data", c)
		}
		digits = append(digits, c)
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(out, digits)
	if err != nil {
		return nil, errors.Wrap(err, "ASCIIHexDecode")
	}
	return out[:n], nil
}

type ascii85Decoder struct{}

func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

// Decode strips the optional '<~' marker, stops at the '~>' terminator and
// decodes 5-digit base-85 groups to 4 bytes each. 'z' is a whole zero group
// and is only legal on a group boundary; a final short group of k digits is
// padded with the maximum digit, decoded, and trimmed to k-1 bytes. The
// stdlib decoder implements exactly these rules.
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary, resolve Resolver) ([]byte, error) {
	data := bytes.TrimLeft(in, "\x00\t\n\f\r ")
	data = bytes.TrimPrefix(data, []byte("<~"))
	if i := bytes.IndexByte(data, '~'); i >= 0 {
		data = data[:i]
	}
	out := make([]byte, ascii85.MaxEncodedLen(len(data)))
	n, _, err := ascii85.Decode(out, data, true)
	if err != nil {
		return nil, errors.Wrap(err, "ASCII85Decode")
	}
	return out[:n], nil
}

func isASCIIWhitespace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
