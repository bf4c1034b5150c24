package xref

import (
	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/ir/raw"
	"github.com/wudi/pdfstore/scanner"
)

// parseClassic parses a plain-text cross-reference section. The scanner has
// already consumed the xref keyword. Grammar: one or more subsections of
// "first count" headers followed by exactly count records of
// "offset generation n|f", then the trailer keyword and dictionary.
// Tokens are separated by any amount of whitespace; fixed column widths are
// not assumed because real files drift from them.
func parseClassic(s scanner.Scanner) (*Table, error) {
	entries := make(map[int]Entry)

	for {
		tok, err := s.Next()
		if err != nil {
			return nil, errors.Wrap(err, "read xref subsection")
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, errors.Errorf("expected subsection header at offset %d", tok.Pos)
		}
		first := int(tok.Int)

		countTok, err := s.Next()
		if err != nil {
			return nil, errors.Wrap(err, "read subsection count")
		}
		if countTok.Type != scanner.TokenNumber || !countTok.IsInt || countTok.Int < 0 {
			return nil, errors.Errorf("invalid subsection count at offset %d", countTok.Pos)
		}
		count := int(countTok.Int)

		for i := 0; i < count; i++ {
			entry, err := parseClassicRecord(s)
			if err != nil {
				return nil, errors.Wrapf(err, "record %d of subsection starting at %d", i, first)
			}
			entries[first+i] = entry
		}
	}

	obj, err := scanner.ReadObject(s)
	if err != nil {
		return nil, errors.Wrap(err, "read trailer dictionary")
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.Errorf("trailer is %s, want dictionary", obj.Type())
	}
	return newTable(entries, trailerFromDict(dict)), nil
}

func parseClassicRecord(s scanner.Scanner) (Entry, error) {
	offTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if offTok.Type != scanner.TokenNumber || !offTok.IsInt {
		return nil, errors.Errorf("expected offset at %d", offTok.Pos)
	}
	genTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return nil, errors.Errorf("expected generation at %d", genTok.Pos)
	}
	kindTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if kindTok.Type != scanner.TokenKeyword {
		return nil, errors.Errorf("expected entry type at %d", kindTok.Pos)
	}
	switch kindTok.Str {
	case "n":
		return InUse{Offset: offTok.Int, Gen: int(genTok.Int)}, nil
	case "f":
		return Free{NextFree: offTok.Int, Gen: int(genTok.Int)}, nil
	default:
		return nil, errors.Errorf("invalid entry type %q at %d", kindTok.Str, kindTok.Pos)
	}
}
