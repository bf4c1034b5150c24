// Package filters decodes the byte payloads of stream objects. A Pipeline
// folds a stream's declared filter chain left to right over the raw bytes.
// ASCIIHexDecode, ASCII85Decode and FlateDecode are implemented; the
// remaining standard filter kinds fail with UnsupportedFilterError.
package filters

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/ir/raw"
)

// Resolver materializes an indirect reference. Decode parameters may
// themselves be indirect, so every decode call receives this capability
// explicitly rather than reaching for ambient document state.
type Resolver interface {
	ResolveReference(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)

func (f ResolverFunc) ResolveReference(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return f(ctx, ref)
}

// UnsupportedFilterError marks a recognized filter kind this store does not
// implement. Callers match it with errors.As to distinguish "this document
// needs a codec we lack" from corrupt data.
type UnsupportedFilterError struct {
	Filter string
}

func (e *UnsupportedFilterError) Error() string {
	return fmt.Sprintf("unsupported filter %s", e.Filter)
}

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary, resolve Resolver) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with the provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewDefaultPipeline returns a pipeline with every standard filter kind
// registered: the implemented codecs plus explicit unsupported stubs so an
// unimplemented kind fails by name instead of passing bytes through.
func NewDefaultPipeline(limits Limits) *Pipeline {
	decoders := []Decoder{
		NewFlateDecoder(),
		NewASCIIHexDecoder(),
		NewASCII85Decoder(),
	}
	for _, name := range []string{
		"LZWDecode",
		"RunLengthDecode",
		"CCITTFaxDecode",
		"JBIG2Decode",
		"DCTDecode",
		"JPXDecode",
		"Crypt",
	} {
		decoders = append(decoders, unsupportedDecoder{name: name})
	}
	return NewPipeline(decoders, limits)
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Decode folds filterNames left to right over input. An empty filter list
// returns input untouched, without copying. params is positional: params[i]
// belongs to filterNames[i] and may be nil.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	return p.DecodeWithResolver(ctx, input, filterNames, params, nil)
}

// DecodeWithResolver is Decode with a capability for resolving indirect
// decode parameters.
func (p *Pipeline) DecodeWithResolver(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary, resolve Resolver) ([]byte, error) {
	if len(filterNames) == 0 {
		return input, nil
	}
	data := input
	for i, name := range filterNames {
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, errors.Errorf("unknown filter %s", name)
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param, resolve)
		if err != nil {
			return nil, err
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.Errorf("filter %s output exceeds %d bytes", name, p.limits.MaxDecompressedSize)
		}
		data = out
	}
	return data, nil
}

type unsupportedDecoder struct{ name string }

func (d unsupportedDecoder) Name() string { return d.name }
func (d unsupportedDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary, resolve Resolver) ([]byte, error) {
	return nil, &UnsupportedFilterError{Filter: d.name}
}

// paramInt reads an integer decode parameter, following one level of
// indirection through resolve when the value is a reference.
func paramInt(ctx context.Context, params raw.Dictionary, resolve Resolver, key string, def int64) (int64, error) {
	if params == nil {
		return def, nil
	}
	v, ok := params.Get(raw.NameObj{Val: key})
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case raw.NumberObj:
		return n.Int(), nil
	case raw.RefObj:
		if resolve == nil {
			return 0, errors.Errorf("decode parameter %s is indirect and no resolver was supplied", key)
		}
		obj, err := resolve.ResolveReference(ctx, n.R)
		if err != nil {
			return 0, errors.Wrapf(err, "resolve decode parameter %s", key)
		}
		num, ok := obj.(raw.NumberObj)
		if !ok {
			return 0, errors.Errorf("decode parameter %s resolves to %s, want number", key, obj.Type())
		}
		return num.Int(), nil
	default:
		return 0, errors.Errorf("decode parameter %s has type %s, want number", key, v.Type())
	}
}
