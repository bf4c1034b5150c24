package xref

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/filters"
	"github.com/wudi/pdfstore/ir/raw"
	"github.com/wudi/pdfstore/scanner"
)

// maxFieldWidth bounds a single W entry. Eight bytes already overflows
// nothing we can represent; anything wider is a corrupt dictionary.
const maxFieldWidth = 8

// parseStream parses a cross-reference stream section. The scanner is
// positioned at the "N G obj" header of the stream object. Everything the
// parser needs must be stated directly in the stream dictionary; an
// indirect Length (or W, or Index) cannot be followed, because resolving
// it would require the very index being built.
func parseStream(ctx context.Context, s scanner.Scanner, pipeline *filters.Pipeline) (*Table, error) {
	if err := skipObjectHeader(s); err != nil {
		return nil, err
	}

	obj, err := scanner.ReadObject(s)
	if err != nil {
		return nil, errors.Wrap(err, "read xref stream dictionary")
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.Errorf("xref stream object holds %s, want dictionary", obj.Type())
	}
	if typ, ok := dict.Name("Type"); ok && typ != "XRef" {
		return nil, errors.Errorf("stream at xref offset has /Type /%s, want /XRef", typ)
	}

	length, ok := dict.Int("Length")
	if !ok {
		if _, isRef := dict.Ref("Length"); isRef {
			return nil, errors.New("xref stream /Length is indirect; xref stream dictionaries must be direct")
		}
		return nil, errors.New("xref stream has no /Length")
	}
	s.SetNextStreamLength(length)

	tok, err := s.Next()
	if err != nil {
		return nil, errors.Wrap(err, "read xref stream data")
	}
	if tok.Type != scanner.TokenStream {
		return nil, errors.Errorf("expected stream keyword after xref dictionary, got token at %d", tok.Pos)
	}

	names, params := filters.ExtractFilters(dict)
	data, err := pipeline.DecodeWithResolver(ctx, tok.Bytes, names, params, noIndirection{})
	if err != nil {
		return nil, errors.Wrap(err, "decode xref stream")
	}

	entries, err := decodeEntries(dict, data)
	if err != nil {
		return nil, err
	}
	return newTable(entries, trailerFromDict(dict)), nil
}

// decodeEntries unpacks the binary entry rows according to the W widths
// and Index subsections of the stream dictionary.
func decodeEntries(dict *raw.DictObj, data []byte) (map[int]Entry, error) {
	w0, w1, w2, err := fieldWidths(dict)
	if err != nil {
		return nil, err
	}
	rowLen := w0 + w1 + w2

	index, err := indexPairs(dict)
	if err != nil {
		return nil, err
	}

	entries := make(map[int]Entry)
	pos := 0
	for _, sub := range index {
		for i := 0; i < sub.count; i++ {
			if pos+rowLen > len(data) {
				return nil, errors.Errorf(
					"xref stream truncated: need %d bytes for object %d, have %d",
					rowLen, sub.first+i, len(data)-pos)
			}
			row := data[pos : pos+rowLen]
			pos += rowLen

			// A zero-width first field means every row is type 1.
			kind := int64(1)
			if w0 > 0 {
				kind = beUint(row[:w0])
			}
			f1 := beUint(row[w0 : w0+w1])
			// A zero-width third field defaults to 0, which reads as
			// generation 0 for in-use entries.
			var f2 int64
			if w2 > 0 {
				f2 = beUint(row[w0+w1:])
			}

			num := sub.first + i
			switch kind {
			case 0:
				entries[num] = Free{NextFree: f1, Gen: int(f2)}
			case 1:
				entries[num] = InUse{Offset: f1, Gen: int(f2)}
			case 2:
				entries[num] = Compressed{Container: int(f1), Index: int(f2)}
			default:
				return nil, errors.Errorf("object %d: unknown xref entry type %d", num, kind)
			}
		}
	}
	return entries, nil
}

func fieldWidths(dict *raw.DictObj) (w0, w1, w2 int, err error) {
	arr, ok := dict.Array("W")
	if !ok {
		return 0, 0, 0, errors.New("xref stream has no /W array")
	}
	if arr.Len() != 3 {
		return 0, 0, 0, errors.Errorf("/W has %d entries, want 3", arr.Len())
	}
	var w [3]int
	for i, item := range arr.Items {
		n, ok := item.(raw.NumberObj)
		if !ok || !n.IsInt || n.I < 0 || n.I > maxFieldWidth {
			return 0, 0, 0, errors.Errorf("/W entry %d is not a valid field width", i)
		}
		w[i] = int(n.I)
	}
	if w[1] == 0 {
		// The second field carries the offset or container number; with
		// zero width every entry would point at byte 0.
		return 0, 0, 0, errors.New("/W second field width is zero")
	}
	return w[0], w[1], w[2], nil
}

type subsection struct {
	first int
	count int
}

func indexPairs(dict *raw.DictObj) ([]subsection, error) {
	arr, ok := dict.Array("Index")
	if !ok {
		size, ok := dict.Int("Size")
		if !ok {
			return nil, errors.New("xref stream has neither /Index nor /Size")
		}
		return []subsection{{first: 0, count: int(size)}}, nil
	}
	if arr.Len()%2 != 0 {
		return nil, errors.Errorf("/Index has %d entries, want an even count", arr.Len())
	}
	subs := make([]subsection, 0, arr.Len()/2)
	for i := 0; i+1 < arr.Len(); i += 2 {
		first, ok1 := arr.Items[i].(raw.NumberObj)
		count, ok2 := arr.Items[i+1].(raw.NumberObj)
		if !ok1 || !ok2 || !first.IsInt || !count.IsInt || first.I < 0 || count.I < 0 {
			return nil, errors.Errorf("/Index pair %d is not a pair of non-negative integers", i/2)
		}
		subs = append(subs, subsection{first: int(first.I), count: int(count.I)})
	}
	return subs, nil
}

// beUint reads a big-endian unsigned integer of up to 8 bytes.
func beUint(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// skipObjectHeader consumes "N G obj" ahead of the stream dictionary.
func skipObjectHeader(s scanner.Scanner) error {
	numTok, err := s.Next()
	if err != nil {
		return errors.Wrap(err, "read xref stream object number")
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt {
		return errors.Errorf("expected object number at %d", numTok.Pos)
	}
	genTok, err := s.Next()
	if err != nil {
		return errors.Wrap(err, "read xref stream generation")
	}
	if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return errors.Errorf("expected generation number at %d", genTok.Pos)
	}
	objTok, err := s.Next()
	if err != nil {
		return errors.Wrap(err, "read obj keyword")
	}
	if objTok.Type != scanner.TokenKeyword || objTok.Str != "obj" {
		return errors.Errorf("expected obj keyword at %d", objTok.Pos)
	}
	return nil
}

// noIndirection refuses every reference. Used while decoding the xref
// stream itself, where no index exists yet to resolve against.
type noIndirection struct{}

func (noIndirection) ResolveReference(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return nil, errors.Errorf(
		"cannot resolve %d %d R inside an xref stream dictionary", ref.Num, ref.Gen)
}
