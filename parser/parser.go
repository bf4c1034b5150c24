// Package parser is the top of the store: it opens a document, resolves
// its cross-reference chain and serves objects and decoded stream data by
// reference.
package parser

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/filters"
	"github.com/wudi/pdfstore/ir/raw"
	"github.com/wudi/pdfstore/observability"
	"github.com/wudi/pdfstore/recovery"
	"github.com/wudi/pdfstore/scanner"
	"github.com/wudi/pdfstore/xref"
)

// Config configures a Document. The zero value selects strict recovery,
// a nop logger, no decode limits and an unbounded in-memory object cache.
type Config struct {
	Recovery recovery.Strategy
	Logger   observability.Logger
	Limits   filters.Limits
	Scanner  scanner.Config
	XRef     xref.ResolverConfig
	Cache    Cache
}

func (c *Config) fillDefaults() {
	if c.Recovery == nil {
		c.Recovery = recovery.NewStrictStrategy()
	}
	if c.Logger == nil {
		c.Logger = observability.NopLogger{}
	}
	if c.Cache == nil {
		c.Cache = NewMemoryCache()
	}
	if c.XRef.Recovery == nil {
		c.XRef.Recovery = c.Recovery
	}
	if c.XRef.Logger == nil {
		c.XRef.Logger = c.Logger
	}
	if c.XRef.Limits == (filters.Limits{}) {
		c.XRef.Limits = c.Limits
	}
	if c.XRef.Scanner == (scanner.Config{}) {
		c.XRef.Scanner = c.Scanner
	}
}

// Document is an open PDF: an immutable cross-reference table plus a
// loader over the file's bytes. Safe for concurrent readers.
type Document struct {
	table    *xref.Table
	loader   *objectLoader
	pipeline *filters.Pipeline
	log      observability.Logger
}

// Open resolves the document's cross-reference chain and returns a
// Document ready for lookups. The reader must stay valid for the life of
// the Document.
func Open(ctx context.Context, r io.ReaderAt, cfg Config) (*Document, error) {
	cfg.fillDefaults()

	table, err := xref.NewResolver(cfg.XRef).Resolve(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "resolve cross-reference chain")
	}

	pipeline := filters.NewDefaultPipeline(cfg.Limits)
	loader := newObjectLoader(r, table, pipeline, cfg.Scanner, cfg.Cache, cfg.Logger)
	cfg.Logger.Info("document opened",
		observability.Int("objects", table.Len()),
		observability.Int("size_hint", table.Trailer().Size))
	return &Document{
		table:    table,
		loader:   loader,
		pipeline: pipeline,
		log:      cfg.Logger,
	}, nil
}

// Table exposes the merged cross-reference table.
func (d *Document) Table() *xref.Table { return d.table }

// Trailer returns the newest revision's trailer.
func (d *Document) Trailer() xref.Trailer { return d.table.Trailer() }

// Load retrieves the object a reference points at. Dangling references
// return ErrNotFound.
func (d *Document) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return d.loader.Load(ctx, ref)
}

// LoadStreamData loads a stream object and runs its filter chain,
// returning the fully decoded payload.
func (d *Document) LoadStreamData(ctx context.Context, ref raw.ObjectRef) ([]byte, error) {
	obj, err := d.loader.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.Errorf("%s is %s, want a stream", ref, obj.Type())
	}
	names, params := filters.ExtractFilters(stm.Dict)
	data, err := d.pipeline.DecodeWithResolver(ctx, stm.Data, names, params, d.loader)
	if err != nil {
		return nil, errors.Wrapf(err, "decode stream %s", ref)
	}
	d.log.Debug("stream decoded",
		observability.Int("object", ref.Num),
		observability.Int("bytes", len(data)))
	return data, nil
}
