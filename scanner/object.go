package scanner

import (
	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/ir/raw"
)

// ReadObject assembles the next complete object from the token stream:
// a scalar, an array, or a dictionary. Stream payloads are not consumed;
// after a dictionary the caller decides whether a stream follows and with
// what length.
func ReadObject(s Scanner) (raw.Object, error) {
	r := &tokenReader{s: s}
	return r.readObject()
}

// ReadObjectAt seeks to offset and assembles the object found there.
func ReadObjectAt(s Scanner, offset int64) (raw.Object, error) {
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	return ReadObject(s)
}

type tokenReader struct {
	s   Scanner
	buf []Token
}

func (r *tokenReader) next() (Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok Token) { r.buf = append(r.buf, tok) }

func (r *tokenReader) readObject() (raw.Object, error) {
	tok, err := r.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case TokenArray:
		return r.readArray()
	case TokenDict:
		return r.readDict()
	}
	return nil, errors.Errorf("unexpected token %q at offset %d", tok.Str, tok.Pos)
}

func (r *tokenReader) readArray() (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := r.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == "]" {
			break
		}
		r.unread(tok)
		item, err := r.readObject()
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
	return arr, nil
}

func (r *tokenReader) readDict() (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := r.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == ">>" {
			break
		}
		if tok.Type != TokenName {
			return nil, errors.Errorf("expected name key in dictionary at offset %d", tok.Pos)
		}
		val, err := r.readObject()
		if err != nil {
			return nil, err
		}
		d.Set(raw.NameObj{Val: tok.Str}, val)
	}
	return d, nil
}
