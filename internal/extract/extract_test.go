package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextPlain(t *testing.T) {
	got, err := Text([]byte("  hello world\n"), "txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)

	got, err = Text([]byte("# Heading\nbody"), "md")
	require.NoError(t, err)
	assert.Equal(t, "# Heading\nbody", got)
}

func TestTextHTMLSkipsScriptAndStyle(t *testing.T) {
	page := `<html><head>
		<style>body { color: red }</style>
		<script>alert("nope")</script>
	</head><body>
		<h1>Title</h1>
		<p>First paragraph.</p>
	</body></html>`

	got, err := Text([]byte(page), "html")
	require.NoError(t, err)
	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "First paragraph.")
	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "color: red")
}

func TestTextUnsupportedFormat(t *testing.T) {
	_, err := Text([]byte("data"), "docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTextCaseInsensitiveSourceType(t *testing.T) {
	got, err := Text([]byte("upper"), "TXT")
	require.NoError(t, err)
	assert.Equal(t, "upper", got)
}

func TestTextInvalidPDF(t *testing.T) {
	_, err := Text([]byte("not a pdf"), "pdf")
	assert.Error(t, err)
}

func TestSanitizeUTF8DropsInvalidBytes(t *testing.T) {
	got, err := Text([]byte("ok\xff\xfealso ok"), "txt")
	require.NoError(t, err)
	assert.Equal(t, "okalso ok", got)
}

func TestSupported(t *testing.T) {
	for _, st := range SourceTypes {
		assert.True(t, Supported(st))
	}
	assert.True(t, Supported("PDF"))
	assert.False(t, Supported("docx"))
	assert.False(t, Supported(""))
}
