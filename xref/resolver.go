package xref

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/filters"
	"github.com/wudi/pdfstore/observability"
	"github.com/wudi/pdfstore/recovery"
	"github.com/wudi/pdfstore/scanner"
)

// DefaultMaxChainDepth bounds how many revisions a Prev chain may have.
// Legitimate documents rarely exceed a few dozen incremental saves.
const DefaultMaxChainDepth = 64

// ResolverConfig configures chain resolution. Zero values select the
// defaults: strict recovery, a nop logger, no decode limits and a chain
// depth of DefaultMaxChainDepth.
type ResolverConfig struct {
	MaxChainDepth int
	Recovery      recovery.Strategy
	Logger        observability.Logger
	Limits        filters.Limits
	Scanner       scanner.Config
}

// Resolver builds the merged cross-reference table of a document.
type Resolver interface {
	Resolve(ctx context.Context, r io.ReaderAt) (*Table, error)
}

type chainResolver struct {
	cfg      ResolverConfig
	pipeline *filters.Pipeline
	log      observability.Logger
	strategy recovery.Strategy
}

// NewResolver returns a Resolver that walks the revision chain from the
// startxref marker, merging older revisions under newer ones.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxChainDepth <= 0 {
		cfg.MaxChainDepth = DefaultMaxChainDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	return &chainResolver{
		cfg:      cfg,
		pipeline: filters.NewDefaultPipeline(cfg.Limits),
		log:      cfg.Logger,
		strategy: cfg.Recovery,
	}
}

func (r *chainResolver) Resolve(ctx context.Context, reader io.ReaderAt) (*Table, error) {
	data, err := readAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "read document")
	}
	if len(data) == 0 {
		return nil, errors.New("document is empty")
	}

	start, err := findStartXref(data)
	if err != nil {
		return r.fallback(ctx, data, err)
	}
	table, err := r.resolveChain(ctx, data, start)
	if err != nil {
		return r.fallback(ctx, data, err)
	}
	return table, nil
}

// fallback consults the recovery strategy and, if permitted, rebuilds the
// index by scanning the whole file for object headers.
func (r *chainResolver) fallback(ctx context.Context, data []byte, cause error) (*Table, error) {
	loc := recovery.Location{Component: "xref"}
	switch r.strategy.OnError(ctx, cause, loc) {
	case recovery.ActionFix, recovery.ActionWarn:
		r.log.Warn("cross-reference damaged, rebuilding by scan",
			observability.Error("cause", cause))
		table, rerr := repairScan(ctx, data, r.cfg.Scanner)
		if rerr != nil {
			return nil, errors.Wrapf(rerr, "repair scan after: %v", cause)
		}
		return table, nil
	default:
		return nil, cause
	}
}

func (r *chainResolver) resolveChain(ctx context.Context, data []byte, start int64) (*Table, error) {
	visited := make(map[int64]bool)
	var merged *Table

	offset := start
	depth := 0
	for offset >= 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if visited[offset] {
			return nil, errors.Errorf("cross-reference chain loops back to offset %d", offset)
		}
		visited[offset] = true
		if depth >= r.cfg.MaxChainDepth {
			return nil, errors.Errorf("cross-reference chain exceeds %d revisions", r.cfg.MaxChainDepth)
		}
		depth++

		section, err := r.parseSection(ctx, data, offset)
		if err != nil {
			return nil, errors.Wrapf(err, "cross-reference section at offset %d", offset)
		}

		// Hybrid files carry a stream twin of the classic section.
		// Its entries sit under the classic ones, above everything
		// the Prev chain contributes.
		if stm := section.Trailer().XRefStm; stm >= 0 && !visited[stm] {
			visited[stm] = true
			twin, err := r.parseSection(ctx, data, stm)
			if err != nil {
				return nil, errors.Wrapf(err, "hybrid xref stream at offset %d", stm)
			}
			section.mergePrevious(twin)
		}

		if merged == nil {
			merged = section
		} else {
			merged.mergePrevious(section)
		}
		offset = section.Trailer().Prev
	}

	r.log.Debug("cross-reference chain resolved",
		observability.Int("revisions", depth),
		observability.Int("objects", merged.Len()))
	return merged, nil
}

// parseSection parses whatever kind of section lives at offset: the xref
// keyword selects the classic grammar, anything else is tried as a
// cross-reference stream.
func (r *chainResolver) parseSection(ctx context.Context, data []byte, offset int64) (*Table, error) {
	s := scanner.New(bytes.NewReader(data), r.cfg.Scanner)
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	tok, err := s.Next()
	if err == nil && tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return parseClassic(s)
	}
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	return parseStream(ctx, s, r.pipeline)
}

const readChunkSize = 32 * 1024

// readAll slurps the document. Lookup and chain walking jump backward
// through the file, so the whole byte range is kept resident.
func readAll(r io.ReaderAt) ([]byte, error) {
	if br, ok := r.(*bytes.Reader); ok {
		data := make([]byte, br.Size())
		if _, err := br.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return data, nil
	}
	var data []byte
	buf := make([]byte, readChunkSize)
	var off int64
	for {
		n, err := r.ReadAt(buf, off)
		data = append(data, buf[:n]...)
		off += int64(n)
		if errors.Is(err, io.EOF) {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return data, nil
		}
	}
}
