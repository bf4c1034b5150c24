package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfstore/ir/raw"
)

func zlibCompress(t *testing.T, src []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(src)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), zlibCompress(t, []byte("hello world")),
		[]string{"FlateDecode"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), out)
}

func TestFlateDecodeRawDeflateFallback(t *testing.T) {
	// Some writers omit the zlib header. The decoder retries as bare deflate.
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte("headerless"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), buf.Bytes(), []string{"FlateDecode"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("headerless"), out)
}

func TestFlateDecodeGarbageFails(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	_, err := p.Decode(context.Background(), []byte("not compressed at all"),
		[]string{"FlateDecode"}, nil)
	assert.Error(t, err)
}

func TestFlateDecodeWithUpPredictor(t *testing.T) {
	// Rows of four bytes, Up-encoded: the second row holds deltas against
	// the first.
	encoded := []byte{1, 2, 3, 4, 4, 4, 4, 4}
	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(4))

	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), zlibCompress(t, encoded),
		[]string{"FlateDecode"}, []raw.Dictionary{params})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, out)
}

func TestFlateDecodeIndirectPredictorColumns(t *testing.T) {
	encoded := []byte{1, 2, 3, 4, 4, 4, 4, 4}
	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Columns"}, raw.Ref(9, 0))

	resolver := ResolverFunc(func(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
		return raw.NumberInt(4), nil
	})

	p := NewDefaultPipeline(Limits{})
	out, err := p.DecodeWithResolver(context.Background(), zlibCompress(t, encoded),
		[]string{"FlateDecode"}, []raw.Dictionary{params}, resolver)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, out)
}
