package parser

import (
	"bytes"
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/filters"
	"github.com/wudi/pdfstore/ir/raw"
	"github.com/wudi/pdfstore/observability"
	"github.com/wudi/pdfstore/scanner"
	"github.com/wudi/pdfstore/xref"
)

// ErrNotFound reports a reference whose object number is absent, free or
// null in the cross-reference table.
var ErrNotFound = errors.New("object not found")

// maxLoadDepth bounds indirection while loading a single object, such as
// a stream whose /Length points at another object whose loading points
// back again.
const maxLoadDepth = 8

// Cache stores loaded objects across Load calls. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
}

// NewMemoryCache returns an unbounded in-memory Cache.
func NewMemoryCache() Cache {
	return &memoryCache{objs: make(map[raw.ObjectRef]raw.Object)}
}

type memoryCache struct {
	mu   sync.RWMutex
	objs map[raw.ObjectRef]raw.Object
}

func (c *memoryCache) Get(ref raw.ObjectRef) (raw.Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.objs[ref]
	return o, ok
}

func (c *memoryCache) Put(ref raw.ObjectRef, obj raw.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objs[ref] = obj
}

// ObjectLoader retrieves objects by reference, transparently extracting
// them from object streams when the index says they live in one.
type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

type objectLoader struct {
	reader     scanner.ReaderAt
	table      *xref.Table
	pipeline   *filters.Pipeline
	scannerCfg scanner.Config
	cache      Cache
	log        observability.Logger

	mu         sync.Mutex
	containers map[int]map[int]raw.Object
}

func newObjectLoader(r scanner.ReaderAt, table *xref.Table, pipeline *filters.Pipeline,
	scannerCfg scanner.Config, cache Cache, log observability.Logger) *objectLoader {
	return &objectLoader{
		reader:     r,
		table:      table,
		pipeline:   pipeline,
		scannerCfg: scannerCfg,
		cache:      cache,
		log:        log,
		containers: make(map[int]map[int]raw.Object),
	}
}

func (l *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return l.load(ctx, ref, 0)
}

// ResolveReference lets the loader serve as the filter pipeline's resolver
// for indirect DecodeParms values.
func (l *objectLoader) ResolveReference(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return l.Load(ctx, ref)
}

func (l *objectLoader) load(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if depth >= maxLoadDepth {
		return nil, errors.Errorf("loading %s: indirection deeper than %d levels", ref, maxLoadDepth)
	}
	if l.cache != nil {
		if obj, ok := l.cache.Get(ref); ok {
			return obj, nil
		}
	}

	loc, ok, err := l.table.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", ref)
	}

	var obj raw.Object
	switch loc := loc.(type) {
	case xref.MainFile:
		obj, err = l.loadAt(ctx, loc.Offset, ref, depth)
	case xref.ObjectStream:
		obj, err = l.loadCompressed(ctx, loc, ref, depth)
	default:
		err = errors.Errorf("%s: unhandled location kind", ref)
	}
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		l.cache.Put(ref, obj)
	}
	return obj, nil
}

// loadAt parses an object stored directly in the file: its "num gen obj"
// header, its body and, for streams, the payload sized by /Length.
func (l *objectLoader) loadAt(ctx context.Context, offset int64, ref raw.ObjectRef, depth int) (raw.Object, error) {
	s := scanner.New(l.reader, l.scannerCfg)
	if err := s.SeekTo(offset); err != nil {
		return nil, errors.Wrapf(err, "seek to %s", ref)
	}
	num, gen, err := readObjectHeader(s)
	if err != nil {
		return nil, errors.Wrapf(err, "object header of %s", ref)
	}
	if num != ref.Num {
		return nil, errors.Errorf(
			"offset %d holds object %d, index says %d", offset, num, ref.Num)
	}
	if gen != ref.Gen {
		l.log.Debug("object generation differs from reference",
			observability.Int("object", ref.Num),
			observability.Int("ref_gen", ref.Gen),
			observability.Int("stored_gen", gen))
	}

	obj, err := scanner.ReadObject(s)
	if err != nil {
		return nil, errors.Wrapf(err, "body of %s", ref)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return obj, nil
	}

	// A dictionary may be the prelude of a stream. Resolve /Length first
	// so the payload can be sliced without hunting for endstream.
	length, err := l.streamLength(ctx, dict, depth)
	if err != nil {
		return nil, errors.Wrapf(err, "stream length of %s", ref)
	}
	s.SetNextStreamLength(length)

	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenStream {
		// Plain dictionary object; the token was endobj or the file ended.
		return dict, nil
	}
	return raw.NewStream(dict, tok.Bytes), nil
}

// streamLength resolves /Length, following one indirect reference if
// needed. Returns -1 when no usable length is present, in which case the
// scanner falls back to searching for the endstream keyword.
func (l *objectLoader) streamLength(ctx context.Context, dict *raw.DictObj, depth int) (int64, error) {
	v, ok := dict.KV["Length"]
	if !ok {
		return -1, nil
	}
	switch v := v.(type) {
	case raw.NumberObj:
		if !v.IsInt || v.I < 0 {
			return -1, nil
		}
		return v.I, nil
	case raw.RefObj:
		obj, err := l.load(ctx, v.R, depth+1)
		if err != nil {
			return 0, errors.Wrapf(err, "indirect /Length %s", v.R)
		}
		n, ok := obj.(raw.NumberObj)
		if !ok || !n.IsInt || n.I < 0 {
			return 0, errors.Errorf("indirect /Length %s is not a non-negative integer", v.R)
		}
		return n.I, nil
	}
	return -1, nil
}

// loadCompressed extracts an object from its container stream. The whole
// container is parsed and memoized on first touch, so sibling lookups hit
// the parsed form.
func (l *objectLoader) loadCompressed(ctx context.Context, loc xref.ObjectStream, ref raw.ObjectRef, depth int) (raw.Object, error) {
	objs, err := l.containerObjects(ctx, loc.ContainerNum, depth)
	if err != nil {
		return nil, errors.Wrapf(err, "container of %s", ref)
	}
	obj, ok := objs[ref.Num]
	if !ok {
		return nil, errors.Errorf(
			"object stream %d does not contain object %d", loc.ContainerNum, ref.Num)
	}
	return obj, nil
}

func (l *objectLoader) containerObjects(ctx context.Context, containerNum, depth int) (map[int]raw.Object, error) {
	l.mu.Lock()
	objs, ok := l.containers[containerNum]
	l.mu.Unlock()
	if ok {
		return objs, nil
	}

	container, err := l.load(ctx, raw.ObjectRef{Num: containerNum}, depth+1)
	if err != nil {
		return nil, err
	}
	stm, ok := container.(*raw.StreamObj)
	if !ok {
		return nil, errors.Errorf("object %d is %s, want a stream", containerNum, container.Type())
	}

	n, ok := stm.Dict.Int("N")
	if !ok || n < 0 {
		return nil, errors.Errorf("object stream %d has no valid /N", containerNum)
	}
	first, ok := stm.Dict.Int("First")
	if !ok || first < 0 {
		return nil, errors.Errorf("object stream %d has no valid /First", containerNum)
	}

	names, params := filters.ExtractFilters(stm.Dict)
	decoded, err := l.pipeline.DecodeWithResolver(ctx, stm.Data, names, params, l)
	if err != nil {
		return nil, errors.Wrapf(err, "decode object stream %d", containerNum)
	}
	if first > int64(len(decoded)) {
		return nil, errors.Errorf("object stream %d: /First %d past decoded size %d",
			containerNum, first, len(decoded))
	}

	pairs, err := parseObjStmHeader(decoded, int(n))
	if err != nil {
		return nil, errors.Wrapf(err, "object stream %d header", containerNum)
	}

	objs = make(map[int]raw.Object, len(pairs))
	body := scanner.New(bytes.NewReader(decoded), l.scannerCfg)
	for _, p := range pairs {
		at := first + p.offset
		if at < first || at > int64(len(decoded)) {
			return nil, errors.Errorf(
				"object stream %d: object %d offset %d out of range", containerNum, p.num, p.offset)
		}
		obj, err := scanner.ReadObjectAt(body, at)
		if err != nil {
			return nil, errors.Wrapf(err, "object %d in object stream %d", p.num, containerNum)
		}
		objs[p.num] = obj
	}

	l.mu.Lock()
	l.containers[containerNum] = objs
	l.mu.Unlock()
	l.log.Debug("object stream parsed",
		observability.Int("container", containerNum),
		observability.Int("objects", len(objs)))
	return objs, nil
}

type objStmPair struct {
	num    int
	offset int64
}

// parseObjStmHeader reads the n pairs of "objnum offset" integers that
// open an object stream's decoded data.
func parseObjStmHeader(decoded []byte, n int) ([]objStmPair, error) {
	s := scanner.New(bytes.NewReader(decoded), scanner.Config{})
	pairs := make([]objStmPair, 0, n)
	for i := 0; i < n; i++ {
		numTok, err := s.Next()
		if err != nil {
			return nil, errors.Wrapf(err, "pair %d", i)
		}
		offTok, err := s.Next()
		if err != nil {
			return nil, errors.Wrapf(err, "pair %d", i)
		}
		if numTok.Type != scanner.TokenNumber || !numTok.IsInt ||
			offTok.Type != scanner.TokenNumber || !offTok.IsInt {
			return nil, errors.Errorf("pair %d is not two integers", i)
		}
		pairs = append(pairs, objStmPair{num: int(numTok.Int), offset: offTok.Int})
	}
	return pairs, nil
}

func readObjectHeader(s scanner.Scanner) (num, gen int, err error) {
	numTok, err := s.Next()
	if err != nil {
		return 0, 0, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt {
		return 0, 0, errors.Errorf("expected object number at %d", numTok.Pos)
	}
	genTok, err := s.Next()
	if err != nil {
		return 0, 0, err
	}
	if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return 0, 0, errors.Errorf("expected generation number at %d", genTok.Pos)
	}
	objTok, err := s.Next()
	if err != nil {
		return 0, 0, err
	}
	if objTok.Type != scanner.TokenKeyword || objTok.Str != "obj" {
		return 0, 0, errors.Errorf("expected obj keyword at %d", objTok.Pos)
	}
	return int(numTok.Int), int(genTok.Int), nil
}
