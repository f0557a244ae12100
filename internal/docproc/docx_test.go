package docproc

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWordArchive assembles a minimal word-processor container from named
// parts.
func buildWordArchive(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// addCorruptZipEntry appends a stored entry whose recorded checksum does not
// match its payload, so reading it back fails with zip.ErrChecksum.
func addCorruptZipEntry(t *testing.T, zw *zip.Writer, name string, payload []byte) {
	t.Helper()
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CRC32:              0xdeadbeef,
		CompressedSize64:   uint64(len(payload)),
		UncompressedSize64: uint64(len(payload)),
	})
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
}

const wordBodyOpen = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
const wordBodyClose = `</w:body></w:document>`

func wordParagraph(text string) string {
	return `<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

// TestReadWordParagraphsAndTables ensures body paragraphs and tables are
// extracted in order and table rows appear pipe-joined in the flat text.
func TestReadWordParagraphsAndTables(t *testing.T) {
	body := wordBodyOpen +
		wordParagraph("Introduction") +
		wordParagraph("") +
		wordParagraph("Details follow.") +
		`<w:tbl>` +
		`<w:tr><w:tc><w:p><w:r><w:t>name</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:p><w:r><w:t>amount</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p><w:r><w:t>widgets</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:p><w:r><w:t>10</w:t></w:r></w:p></w:tc></w:tr>` +
		`</w:tbl>` +
		wordBodyClose

	data := buildWordArchive(t, map[string]string{"word/document.xml": body})

	content, err := readWord(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"Introduction", "Details follow."}, content.Paragraphs)

	require.Len(t, content.Tables, 1)
	tbl := content.Tables[0]
	assert.Equal(t, 2, tbl.Rows)
	assert.Equal(t, 2, tbl.Cols)
	assert.Equal(t, [][]string{{"name", "amount"}, {"widgets", "10"}}, tbl.Data)

	assert.Contains(t, content.Text, "Introduction")
	assert.Contains(t, content.Text, "name | amount")
	assert.Contains(t, content.Text, "widgets | 10")
}

// TestReadWordMissingDocument ensures a container without the main part
// fails with a clear error.
func TestReadWordMissingDocument(t *testing.T) {
	data := buildWordArchive(t, map[string]string{"word/other.xml": "<x/>"})

	_, err := readWord(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word/document.xml")
}

// TestReadWordNotAnArchive ensures arbitrary bytes fail cleanly.
func TestReadWordNotAnArchive(t *testing.T) {
	_, err := readWord([]byte("this is not a zip file"))
	require.Error(t, err)
}

// TestExtractWordImages ensures embedded media become image records in
// name order.
func TestExtractWordImages(t *testing.T) {
	data := buildWordArchive(t, map[string]string{
		"word/document.xml":     wordBodyOpen + wordParagraph("x") + wordBodyClose,
		"word/media/image2.png": "not-really-png",
		"word/media/image1.png": "also-not-png",
	})

	content, err := readWord(data)
	require.NoError(t, err)
	require.Len(t, content.Images, 2)
	assert.Equal(t, "docx_embedded_image", content.Images[0].Type)
	assert.Contains(t, content.Images[0].Description, "image1.png")
	assert.Contains(t, content.Images[1].Description, "image2.png")
	assert.Equal(t, "unknown", content.Images[0].ImageFormat)
}

// TestRewriteWordArchive ensures the transform reaches the body, headers,
// and footers, and that untouched parts survive byte-for-byte.
func TestRewriteWordArchive(t *testing.T) {
	styles := `<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"/>`
	data := buildWordArchive(t, map[string]string{
		"word/document.xml": wordBodyOpen + wordParagraph("Acme report") + wordBodyClose,
		"word/header1.xml":  `<w:hdr xmlns:w="ns"><w:p><w:r><w:t>Acme header</w:t></w:r></w:p></w:hdr>`,
		"word/footer1.xml":  `<w:ftr xmlns:w="ns"><w:p><w:r><w:t>page footer</w:t></w:r></w:p></w:ftr>`,
		"word/styles.xml":   styles,
	})

	upper := func(_ context.Context, texts []string) []string {
		out := make([]string, len(texts))
		for i, s := range texts {
			out[i] = strings.ReplaceAll(s, "Acme", "REDACTED")
		}
		return out
	}

	rewritten, err := rewriteWordArchive(context.Background(), data, upper)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(rewritten), int64(len(rewritten)))
	require.NoError(t, err)

	got := map[string]string{}
	for _, f := range zr.File {
		b, err := readZipEntry(f)
		require.NoError(t, err)
		got[f.Name] = string(b)
	}

	assert.Contains(t, got["word/document.xml"], "REDACTED report")
	assert.Contains(t, got["word/header1.xml"], "REDACTED header")
	assert.Contains(t, got["word/footer1.xml"], "page footer")
	assert.NotContains(t, got["word/document.xml"], "Acme")
	assert.Equal(t, styles, got["word/styles.xml"], "non-text parts must be preserved verbatim")
}

// TestRewriteWordArchiveCorruptMedia ensures an unreadable media stream does
// not fail the rewrite: non-text entries are carried through raw while the
// body is still transformed.
func TestRewriteWordArchiveCorruptMedia(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(wordBodyOpen + wordParagraph("Acme report") + wordBodyClose))
	require.NoError(t, err)
	addCorruptZipEntry(t, zw, "word/media/image1.png", []byte("not-really-png"))
	require.NoError(t, zw.Close())

	rewritten, err := rewriteWordArchive(context.Background(), buf.Bytes(), func(_ context.Context, texts []string) []string {
		out := make([]string, len(texts))
		for i, s := range texts {
			out[i] = strings.ReplaceAll(s, "Acme", "REDACTED")
		}
		return out
	})
	require.NoError(t, err, "a bad media checksum must not fail the rewrite")

	zr, err := zip.NewReader(bytes.NewReader(rewritten), int64(len(rewritten)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "word/media/image1.png", "media entry must survive the rewrite")

	content, err := readWord(rewritten)
	require.NoError(t, err)
	assert.Contains(t, content.Text, "REDACTED report")
	assert.NotContains(t, content.Text, "Acme")
	require.Len(t, content.Images, 1)
	assert.Contains(t, content.Images[0].ExtractedText, "[Image extraction failed")
}

// TestRewriteWordArchiveEscaping ensures entity references round-trip: the
// transform sees unescaped text and replacements are re-escaped on write.
func TestRewriteWordArchiveEscaping(t *testing.T) {
	data := buildWordArchive(t, map[string]string{
		"word/document.xml": wordBodyOpen + wordParagraph("Smith &amp; Sons") + wordBodyClose,
	})

	var seen []string
	rewritten, err := rewriteWordArchive(context.Background(), data, func(_ context.Context, texts []string) []string {
		seen = append(seen, texts...)
		out := make([]string, len(texts))
		for i := range texts {
			out[i] = "a < b & c"
		}
		return out
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Smith & Sons"}, seen)

	content, err := readWord(rewritten)
	require.NoError(t, err)
	assert.Equal(t, []string{"a < b & c"}, content.Paragraphs)
}

// TestRewriteWordArchiveNoChange ensures an identity transform leaves every
// part byte-identical.
func TestRewriteWordArchiveNoChange(t *testing.T) {
	doc := wordBodyOpen + wordParagraph("stable text") + wordBodyClose
	data := buildWordArchive(t, map[string]string{"word/document.xml": doc})

	rewritten, err := rewriteWordArchive(context.Background(), data, func(_ context.Context, texts []string) []string {
		return texts
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(rewritten), int64(len(rewritten)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	b, err := readZipEntry(zr.File[0])
	require.NoError(t, err)
	assert.Equal(t, doc, string(b))
}

// TestFindTextLeavesSkipsLookalikes ensures w:tbl and self-closing w:t
// elements are not treated as text leaves.
func TestFindTextLeavesSkipsLookalikes(t *testing.T) {
	data := []byte(`<w:tbl><w:t/>` + `<w:t xml:space="preserve">kept</w:t>` + `<w:tc>no</w:tc>`)

	leaves := findTextLeaves(data)
	require.Len(t, leaves, 1)
	assert.Equal(t, "kept", leaves[0].text)
}
