package xref

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfstore/filters"
	"github.com/wudi/pdfstore/scanner"
)

func testPipeline() *filters.Pipeline {
	return filters.NewDefaultPipeline(filters.Limits{})
}

// xrefStreamFixture assembles "7 0 obj << ... >> stream ... endstream" with
// the given extra dictionary entries and raw payload.
func xrefStreamFixture(dictBody string, payload []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "7 0 obj\n<< /Type /XRef /Length %d %s >>\nstream\n", len(payload), dictBody)
	b.Write(payload)
	b.WriteString("\nendstream\nendobj\n")
	return b.Bytes()
}

func parseStreamFixture(t *testing.T, fixture []byte) (*Table, error) {
	t.Helper()
	s := scanner.New(bytes.NewReader(fixture), scanner.Config{})
	return parseStream(context.Background(), s, testPipeline())
}

func TestParseStream(t *testing.T) {
	// W [1 2 1]: type byte, two-byte field, one-byte field.
	payload := []byte{
		0, 0x00, 0x00, 0xFF, // obj 0: free, gen 255
		1, 0x01, 0xF4, 0x00, // obj 1: in use at 500
		2, 0x00, 0x01, 0x03, // obj 2: in stream 1, index 3
	}
	table, err := parseStreamFixture(t, xrefStreamFixture("/Size 3 /W [1 2 1]", payload))
	require.NoError(t, err)

	require.Equal(t, 3, table.Len())
	e, _ := table.Entry(0)
	assert.Equal(t, Free{NextFree: 0, Gen: 255}, e)
	e, _ = table.Entry(1)
	assert.Equal(t, InUse{Offset: 500, Gen: 0}, e)
	e, _ = table.Entry(2)
	assert.Equal(t, Compressed{Container: 1, Index: 3}, e)
	assert.Equal(t, 3, table.Trailer().Size)
}

func TestParseStreamIndexSubsections(t *testing.T) {
	payload := []byte{
		1, 0x00, 0x0A, 0x00,
		1, 0x00, 0x14, 0x00,
		1, 0x00, 0x1E, 0x00,
	}
	table, err := parseStreamFixture(t,
		xrefStreamFixture("/Size 100 /W [1 2 1] /Index [5 2 90 1]", payload))
	require.NoError(t, err)

	for _, want := range []struct {
		num int
		off int64
	}{{5, 10}, {6, 20}, {90, 30}} {
		e, ok := table.Entry(want.num)
		require.True(t, ok, "object %d", want.num)
		assert.Equal(t, InUse{Offset: want.off}, e)
	}
	_, ok := table.Entry(7)
	assert.False(t, ok)
}

func TestParseStreamDefaultTypeWhenFirstWidthZero(t *testing.T) {
	// W [0 2 1]: every row is implicitly type 1.
	payload := []byte{0x00, 0x2A, 0x05}
	table, err := parseStreamFixture(t, xrefStreamFixture("/Size 1 /W [0 2 1]", payload))
	require.NoError(t, err)
	e, _ := table.Entry(0)
	assert.Equal(t, InUse{Offset: 42, Gen: 5}, e)
}

func TestParseStreamZeroThirdWidthDefaultsToZero(t *testing.T) {
	payload := []byte{1, 0x00, 0x2A}
	table, err := parseStreamFixture(t, xrefStreamFixture("/Size 1 /W [1 2 0]", payload))
	require.NoError(t, err)
	e, _ := table.Entry(0)
	assert.Equal(t, InUse{Offset: 42, Gen: 0}, e)
}

func TestParseStreamUnknownEntryTypeIsFatal(t *testing.T) {
	payload := []byte{3, 0x00, 0x01, 0x00}
	_, err := parseStreamFixture(t, xrefStreamFixture("/Size 1 /W [1 2 1]", payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown xref entry type 3")
}

func TestParseStreamRejectsZeroSecondWidth(t *testing.T) {
	_, err := parseStreamFixture(t, xrefStreamFixture("/Size 1 /W [1 0 1]", []byte{1, 0}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second field width")
}

func TestParseStreamRejectsBadW(t *testing.T) {
	_, err := parseStreamFixture(t, xrefStreamFixture("/Size 1 /W [1 2]", []byte{1, 0, 0}))
	assert.Error(t, err)

	_, err = parseStreamFixture(t, xrefStreamFixture("/Size 1 /W [1 2 99]", []byte{1, 0, 0}))
	assert.Error(t, err)

	_, err = parseStreamFixture(t, xrefStreamFixture("/Size 1", []byte{1, 0, 0}))
	assert.Error(t, err)
}

func TestParseStreamTruncatedData(t *testing.T) {
	payload := []byte{1, 0x00, 0x0A, 0x00, 1, 0x00} // second row cut short
	_, err := parseStreamFixture(t, xrefStreamFixture("/Size 2 /W [1 2 1]", payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestParseStreamOddIndexLength(t *testing.T) {
	_, err := parseStreamFixture(t,
		xrefStreamFixture("/Size 1 /W [1 2 1] /Index [0 1 5]", []byte{1, 0, 0, 0}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "even")
}

func TestParseStreamIndirectLengthRejected(t *testing.T) {
	fixture := []byte("7 0 obj\n<< /Type /XRef /Size 1 /W [1 2 1] /Length 8 0 R >>\nstream\n\x01\x00\x0A\x00\nendstream\n")
	s := scanner.New(bytes.NewReader(fixture), scanner.Config{})
	_, err := parseStream(context.Background(), s, testPipeline())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be direct")
}

func TestParseStreamWrongType(t *testing.T) {
	fixture := []byte("7 0 obj\n<< /Type /ObjStm /Length 4 /W [1 2 1] /Size 1 >>\nstream\n\x01\x00\x0A\x00\nendstream\n")
	s := scanner.New(bytes.NewReader(fixture), scanner.Config{})
	_, err := parseStream(context.Background(), s, testPipeline())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/XRef")
}

func TestParseStreamFlateCompressed(t *testing.T) {
	rows := []byte{
		1, 0x00, 0x0A, 0x00,
		1, 0x00, 0x14, 0x00,
	}
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	fixture := xrefStreamFixture("/Size 2 /W [1 2 1] /Filter /FlateDecode", compressed.Bytes())
	table, err := parseStreamFixture(t, fixture)
	require.NoError(t, err)
	e, _ := table.Entry(1)
	assert.Equal(t, InUse{Offset: 20}, e)
}

func TestParseStreamTrailerFields(t *testing.T) {
	payload := []byte{1, 0x00, 0x0A, 0x00}
	fixture := xrefStreamFixture("/Size 1 /W [1 2 1] /Root 4 0 R /Prev 321", payload)
	table, err := parseStreamFixture(t, fixture)
	require.NoError(t, err)

	tr := table.Trailer()
	assert.True(t, tr.HasRoot)
	assert.Equal(t, 4, tr.Root.Num)
	assert.Equal(t, int64(321), tr.Prev)
}
