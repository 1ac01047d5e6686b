package extract

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"Copilot/pkg/apperr"
	"Copilot/pkg/cache"
	"Copilot/pkg/logging"
	"Copilot/pkg/metrics"
)

type failingReader struct{ reads int }

func (r *failingReader) Read([]byte) (int, error) {
	r.reads++
	return 0, errors.New("must not be read")
}

func newExtractor(opts ...Option) *Extractor {
	return New(logging.Discard(), opts...)
}

func upload(name string, data []byte) Upload {
	return Upload{Filename: name, Size: int64(len(data)), ContentType: "application/octet-stream", Body: bytes.NewReader(data)}
}

func TestRejectsDeclaredOversizeBeforeReading(t *testing.T) {
	body := &failingReader{}
	_, err := newExtractor().Extract(context.Background(), Upload{
		Filename: "big.pdf",
		Size:     MaxFileSize + 1,
		Body:     body,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, body.reads)
}

func TestRejectsActualOversize(t *testing.T) {
	data := bytes.Repeat([]byte("a"), MaxFileSize+1)
	_, err := newExtractor().Extract(context.Background(), Upload{Filename: "big.txt", Size: 10, Body: bytes.NewReader(data)})
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestRejectsBadNames(t *testing.T) {
	ex := newExtractor()

	_, err := ex.Extract(context.Background(), upload("", []byte("x")))
	assert.ErrorIs(t, err, ErrMissingFilename)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = ex.Extract(context.Background(), upload("run.exe", []byte("x")))
	assert.ErrorIs(t, err, ErrUnsupportedExtension)
	assert.Contains(t, err.Error(), ".docx")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestPlainTextAndMarkdown(t *testing.T) {
	ex := newExtractor()

	f, err := ex.Extract(context.Background(), upload("notes.TXT", []byte("  hello world \n")))
	require.NoError(t, err)
	assert.Equal(t, "hello world", f.Text)
	assert.Equal(t, "notes.TXT", f.Name)

	f, err = ex.Extract(context.Background(), upload("readme.md", append([]byte{0xEF, 0xBB, 0xBF}, "# Title"...)))
	require.NoError(t, err)
	assert.Equal(t, "# Title", f.Text)
}

func TestEmptyTextIsRejected(t *testing.T) {
	_, err := newExtractor().Extract(context.Background(), upload("empty.txt", []byte("  \n\t")))
	assert.ErrorIs(t, err, ErrNoText)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	var xe *ExtractionError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, "empty.txt", xe.Filename)
}

func TestLegacyEncodedText(t *testing.T) {
	src := strings.Repeat("Договор поставки заключается между продавцом и покупателем на один год. ", 20)
	encoded, err := charmap.Windows1251.NewEncoder().String(src)
	require.NoError(t, err)

	f, err := newExtractor().Extract(context.Background(), upload("contract.txt", []byte(encoded)))
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(f.Text))
	assert.Greater(t, countCyrillic(f.Text), 0)
}

func TestDecodeKnownCharset(t *testing.T) {
	src := "Привет, мир"
	encoded, err := charmap.Windows1251.NewEncoder().String(src)
	require.NoError(t, err)
	assert.Equal(t, src, decode([]byte(encoded), "windows-1251"))

	// unknown charset keeps valid bytes and replaces the rest
	assert.Equal(t, "ok\uFFFD", decode([]byte{'o', 'k', 0xFF}, "x-unknown"))
}

func TestTruncation(t *testing.T) {
	long := strings.Repeat("я", MaxTextLength+10)
	f, err := newExtractor().Extract(context.Background(), upload("long.txt", []byte(long)))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(f.Text, "[...text truncated...]"))
	assert.Equal(t, MaxTextLength+utf8.RuneCountInString(TruncationMarker), utf8.RuneCountInString(f.Text))
}

func TestDOCX(t *testing.T) {
	body := para("First paragraph") +
		`<w:p></w:p>` +
		para("   ") +
		para("Second paragraph")

	for _, name := range []string{"report.docx", "legacy.doc"} {
		f, err := newExtractor().Extract(context.Background(), upload(name, buildDOCX(t, body)))
		require.NoError(t, err, name)
		assert.Equal(t, "First paragraph\n\nSecond paragraph", f.Text)
	}
}

func TestDOCXTableText(t *testing.T) {
	body := para("Intro") + `<w:tbl><w:tr><w:tc>` + para("Cell text") + `</w:tc></w:tr></w:tbl>`
	f, err := newExtractor().Extract(context.Background(), upload("table.docx", buildDOCX(t, body)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.Text, "Intro\n\n"))
	assert.Contains(t, f.Text, "Cell text")
}

func TestDOCXRejectsOversizedArchive(t *testing.T) {
	saved := MaxDocxUncompressed
	MaxDocxUncompressed = 1 << 20
	t.Cleanup(func() { MaxDocxUncompressed = saved })

	// compresses to a few KB, inflates past the cap
	data := buildDOCX(t, para(strings.Repeat("a", 2<<20)))
	require.Less(t, len(data), 64<<10)

	_, err := newExtractor().Extract(context.Background(), upload("bomb.docx", data))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDOCXStopsCollectingPastLimit(t *testing.T) {
	chunk := strings.Repeat("b", 1000)
	var body strings.Builder
	for i := 0; i < 200; i++ {
		body.WriteString(para(chunk))
	}
	f, err := newExtractor().Extract(context.Background(), upload("long.docx", buildDOCX(t, body.String())))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(f.Text, "[...text truncated...]"))
	assert.Equal(t, MaxTextLength+utf8.RuneCountInString(TruncationMarker), utf8.RuneCountInString(f.Text))
}

func TestTruncateKeepsTextAtLimit(t *testing.T) {
	exact := strings.Repeat("ж", MaxTextLength)
	assert.Equal(t, exact, truncate(exact, "exact.txt", logging.Discard()))

	over := "  " + strings.Repeat("x", MaxTextLength)
	got := truncate(over, "over.txt", logging.Discard())
	assert.Equal(t, strings.Repeat("x", MaxTextLength-2)+TruncationMarker, got)
}

func TestDOCXWithoutText(t *testing.T) {
	_, err := newExtractor().Extract(context.Background(), upload("blank.docx", buildDOCX(t, `<w:p></w:p>`+para(" "))))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestDOCXNotAZip(t *testing.T) {
	_, err := newExtractor().Extract(context.Background(), upload("fake.docx", []byte("not a zip")))
	require.Error(t, err)
	var xe *ExtractionError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, "fake.docx", xe.Filename)
	assert.NotErrorIs(t, err, ErrNoText)
}

func TestPDFText(t *testing.T) {
	data := buildPDF(t, textStream("Hello PDF"), "", textStream("Second"))
	f, err := newExtractor().Extract(context.Background(), upload("doc.pdf", data))
	require.NoError(t, err)
	assert.Contains(t, f.Text, "--- Page 1 ---")
	assert.Contains(t, f.Text, "Hello PDF")
	assert.NotContains(t, f.Text, "--- Page 2 ---")
	assert.Contains(t, f.Text, "--- Page 3 ---")
}

func TestPDFWithoutTextPages(t *testing.T) {
	_, err := newExtractor().Extract(context.Background(), upload("scan.pdf", buildPDF(t, "")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoText)
	assert.Contains(t, err.Error(), "no page of the PDF produced text")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGarbagePDF(t *testing.T) {
	_, err := newExtractor().Extract(context.Background(), upload("broken.pdf", []byte("%PDF-1.4\ngarbage")))
	require.Error(t, err)
	var xe *ExtractionError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, "broken.pdf", xe.Filename)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCacheServesRepeatUploads(t *testing.T) {
	calls := 0
	reg := NewRegistry()
	reg.Register(StrategyFunc(func(data []byte) (string, error) {
		calls++
		return string(data), nil
	}), ".txt")

	m := metrics.New(prometheus.NewRegistry())
	ex := newExtractor(WithRegistry(reg), WithCache(cache.New[string](10, 0)), WithMetrics(m))

	for i := 0; i < 3; i++ {
		f, err := ex.Extract(context.Background(), upload("same.txt", []byte("same body")))
		require.NoError(t, err)
		assert.Equal(t, "same body", f.Text)
	}
	assert.Equal(t, 1, calls)

	_, err := ex.Extract(context.Background(), upload("other.txt", []byte("other body")))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newExtractor().Extract(ctx, upload("a.txt", []byte("text")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistryExtensions(t *testing.T) {
	got := DefaultRegistry(logging.Discard()).Extensions()
	assert.Equal(t, []string{".doc", ".docx", ".md", ".pdf", ".txt"}, got)

	r := NewRegistry()
	r.Register(Text{}, "RTF")
	_, ok := r.Lookup(".rtf")
	assert.True(t, ok)
}
