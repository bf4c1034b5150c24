package xref

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/ir/raw"
	"github.com/wudi/pdfstore/scanner"
)

// repairScan reconstructs the index by scanning the whole file for
// "num gen obj" headers and trailer dictionaries. Later definitions of an
// object number overwrite earlier ones, matching how incremental saves
// append replacements at higher offsets.
func repairScan(ctx context.Context, data []byte, cfg scanner.Config) (*Table, error) {
	s := scanner.New(bytes.NewReader(data), cfg)
	entries := make(map[int]Entry)
	var lastTrailer *raw.DictObj

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Damaged region; keep scanning past it.
			continue
		}

		switch {
		case tok.Type == scanner.TokenNumber && tok.IsInt:
			genTok, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				continue
			}
			if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
				continue
			}
			objTok, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				continue
			}
			if objTok.Type == scanner.TokenKeyword && objTok.Str == "obj" {
				entries[int(tok.Int)] = InUse{Offset: tok.Pos, Gen: int(genTok.Int)}
				continue
			}
			// The second number may itself start a header. Rewind so a
			// sequence like "1 2 0 obj" is not swallowed.
			if err := s.SeekTo(genTok.Pos); err != nil {
				return nil, err
			}

		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			obj, err := scanner.ReadObject(s)
			if err != nil {
				continue
			}
			if dict, ok := obj.(*raw.DictObj); ok {
				lastTrailer = dict
			}
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("repair failed: no object headers found")
	}
	if lastTrailer == nil {
		lastTrailer = raw.Dict()
		lastTrailer.Set(raw.NameObj{Val: "Size"}, raw.NumberInt(int64(len(entries))))
	}
	return newTable(entries, trailerFromDict(lastTrailer)), nil
}
