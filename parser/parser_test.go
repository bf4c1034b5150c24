package parser

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfstore/filters"
	"github.com/wudi/pdfstore/ir/raw"
)

// buildClassicPDF builds a small document indexed by a plain-text xref
// table: a dictionary, a stream with an indirect /Length and the integer
// that length points at.
func buildClassicPDF() []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	off1 := b.Len()
	b.WriteString("1 0 obj\n<< /Length 2 0 R >>\nstream\nAB\nendstream\nendobj\n")
	off2 := b.Len()
	b.WriteString("2 0 obj\n2\nendobj\n")
	off3 := b.Len()
	b.WriteString("3 0 obj\n<< /Kind /Simple >>\nendobj\n")
	xrefOff := b.Len()
	fmt.Fprintf(&b, "xref\n0 4\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n",
		off1, off2, off3)
	b.WriteString("trailer\n<< /Size 4 /Root 3 0 R >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return b.Bytes()
}

func openDoc(t *testing.T, data []byte) *Document {
	t.Helper()
	doc, err := Open(context.Background(), bytes.NewReader(data), Config{})
	require.NoError(t, err)
	return doc
}

func TestOpenAndLoadPlainObject(t *testing.T) {
	doc := openDoc(t, buildClassicPDF())

	assert.True(t, doc.Trailer().HasRoot)
	assert.Equal(t, 3, doc.Trailer().Root.Num)

	obj, err := doc.Load(context.Background(), raw.ObjectRef{Num: 3})
	require.NoError(t, err)
	d, ok := obj.(*raw.DictObj)
	require.True(t, ok)
	kind, _ := d.Name("Kind")
	assert.Equal(t, "Simple", kind)
}

func TestLoadStreamWithIndirectLength(t *testing.T) {
	doc := openDoc(t, buildClassicPDF())

	data, err := doc.LoadStreamData(context.Background(), raw.ObjectRef{Num: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte("AB"), data)
}

func TestLoadDanglingReference(t *testing.T) {
	doc := openDoc(t, buildClassicPDF())

	_, err := doc.Load(context.Background(), raw.ObjectRef{Num: 99})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	// Object 0 is the free list head, never loadable.
	_, err = doc.Load(context.Background(), raw.ObjectRef{Num: 0})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadStreamDataOnNonStream(t *testing.T) {
	doc := openDoc(t, buildClassicPDF())

	_, err := doc.LoadStreamData(context.Background(), raw.ObjectRef{Num: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want a stream")
}

func TestLoadIsCached(t *testing.T) {
	doc := openDoc(t, buildClassicPDF())
	ctx := context.Background()

	first, err := doc.Load(ctx, raw.ObjectRef{Num: 3})
	require.NoError(t, err)
	second, err := doc.Load(ctx, raw.ObjectRef{Num: 3})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

// buildObjectStreamPDF builds a document indexed by a cross-reference
// stream, with object 3 stored compressed inside object stream 4.
func buildObjectStreamPDF() []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	off1 := b.Len()
	b.WriteString("1 0 obj\n42\nendobj\n")
	off4 := b.Len()
	b.WriteString("4 0 obj\n<< /Type /ObjStm /N 1 /First 4 /Length 8 >>\nstream\n3 0 (hi)\nendstream\nendobj\n")
	offX := b.Len()

	row := func(kind byte, field int, gen byte) []byte {
		return []byte{kind, byte(field >> 8), byte(field), gen}
	}
	var rows []byte
	rows = append(rows, row(0, 0, 255)...)    // 0: free list head
	rows = append(rows, row(1, off1, 0)...)   // 1: in use
	rows = append(rows, row(0, 0, 0)...)      // 2: free
	rows = append(rows, row(2, 4, 0)...)      // 3: in object stream 4, index 0
	rows = append(rows, row(1, off4, 0)...)   // 4: the container
	rows = append(rows, row(1, offX, 0)...)   // 5: this xref stream
	fmt.Fprintf(&b, "5 0 obj\n<< /Type /XRef /Size 6 /W [1 2 1] /Length %d >>\nstream\n", len(rows))
	b.Write(rows)
	b.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", offX)
	return b.Bytes()
}

func TestLoadFromObjectStream(t *testing.T) {
	doc := openDoc(t, buildObjectStreamPDF())
	ctx := context.Background()

	obj, err := doc.Load(ctx, raw.ObjectRef{Num: 3})
	require.NoError(t, err)
	assert.Equal(t, raw.StringObj{Bytes: []byte("hi")}, obj)

	// Directly stored siblings still resolve.
	obj, err = doc.Load(ctx, raw.ObjectRef{Num: 1})
	require.NoError(t, err)
	assert.Equal(t, raw.NumberInt(42), obj)

	// Free entries stay invisible.
	_, err = doc.Load(ctx, raw.ObjectRef{Num: 2})
	assert.True(t, errors.Is(err, ErrNotFound))

	// The container itself is an ordinary stream object.
	obj, err = doc.Load(ctx, raw.ObjectRef{Num: 4})
	require.NoError(t, err)
	_, ok := obj.(*raw.StreamObj)
	assert.True(t, ok)
}

func TestLoadStreamDataDecodesFilterChain(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	off1 := b.Len()
	b.WriteString("1 0 obj\n<< /Length 10 /Filter /ASCIIHexDecode >>\nstream\n48656C6C6F\nendstream\nendobj\n")
	xrefOff := b.Len()
	fmt.Fprintf(&b, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", off1)
	b.WriteString("trailer\n<< /Size 2 >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefOff)

	doc := openDoc(t, b.Bytes())
	data, err := doc.LoadStreamData(context.Background(), raw.ObjectRef{Num: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), data)
}

func TestLoadStreamDataUnsupportedFilter(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	off1 := b.Len()
	b.WriteString("1 0 obj\n<< /Length 4 /Filter /LZWDecode >>\nstream\nDATA\nendstream\nendobj\n")
	xrefOff := b.Len()
	fmt.Fprintf(&b, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", off1)
	b.WriteString("trailer\n<< /Size 2 >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefOff)

	doc := openDoc(t, b.Bytes())
	_, err := doc.LoadStreamData(context.Background(), raw.ObjectRef{Num: 1})
	require.Error(t, err)
	var unsup *filters.UnsupportedFilterError
	require.True(t, errors.As(err, &unsup))
	assert.Equal(t, "LZWDecode", unsup.Filter)
}

func TestLoadHeaderMismatchFails(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	off := b.Len()
	b.WriteString("7 0 obj\n(mislabeled)\nendobj\n")
	xrefOff := b.Len()
	// The table claims object 1 lives where object 7 was written.
	fmt.Fprintf(&b, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", off)
	b.WriteString("trailer\n<< /Size 2 >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefOff)

	doc := openDoc(t, b.Bytes())
	_, err := doc.Load(context.Background(), raw.ObjectRef{Num: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds object 7")
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ref := raw.ObjectRef{Num: 1}

	_, ok := c.Get(ref)
	assert.False(t, ok)

	c.Put(ref, raw.NumberInt(1))
	got, ok := c.Get(ref)
	require.True(t, ok)
	assert.Equal(t, raw.NumberInt(1), got)
}
