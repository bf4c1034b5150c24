package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/ir/raw"
)

type flateDecoder struct{}

func NewFlateDecoder() Decoder { return flateDecoder{} }

func (flateDecoder) Name() string { return "FlateDecode" }

// Decode inflates a zlib-framed deflate stream, then undoes the row
// predictor declared in the decode parameters. Some writers emit raw
// deflate data without the zlib header; those fall back to a bare inflate.
func (flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary, resolve Resolver) ([]byte, error) {
	data, err := inflate(in)
	if err != nil {
		return nil, errors.Wrap(err, "FlateDecode")
	}

	p, err := predictorFromParams(ctx, params, resolve)
	if err != nil {
		return nil, err
	}
	if err := p.reconstruct(data); err != nil {
		return nil, errors.Wrap(err, "FlateDecode predictor")
	}
	return data, nil
}

func inflate(in []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	fr := flate.NewReader(bytes.NewReader(in))
	defer fr.Close()
	out, rawErr := io.ReadAll(fr)
	if rawErr != nil {
		// Report the zlib failure; the raw attempt was a fallback.
		return nil, err
	}
	return out, nil
}
