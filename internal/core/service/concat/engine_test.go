package concat

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(documentXMLPath)
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestConcatenate_ZeroSectionsFails(t *testing.T) {
	eng := New()
	_, err := eng.Concatenate(context.Background(), nil)
	require.Error(t, err)
	e, ok := err.(*errkind.Error)
	require.True(t, ok)
	assert.Equal(t, errkind.NoSections, e.Kind)
}

func TestConcatenate_SingleSectionReturnsUnchanged(t *testing.T) {
	docx := buildDocx(t, "<w:p>only</w:p>")
	eng := New()
	out, err := eng.Concatenate(context.Background(), []port.ConcatSection{{Bytes: docx, Sequence: 10}})
	require.NoError(t, err)
	assert.Equal(t, docx, out)
}

func TestConcatenate_OrdersBySequence(t *testing.T) {
	first := buildDocx(t, "<w:p>FIRST</w:p>")
	second := buildDocx(t, "<w:p>SECOND</w:p>")

	eng := New()
	out, err := eng.Concatenate(context.Background(), []port.ConcatSection{
		{Bytes: second, Sequence: 20},
		{Bytes: first, Sequence: 10},
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	var body string
	for _, f := range zr.File {
		if f.Name == documentXMLPath {
			rc, _ := f.Open()
			var b bytes.Buffer
			b.ReadFrom(rc)
			rc.Close()
			body = b.String()
		}
	}
	assert.Less(t, indexOf(body, "FIRST"), indexOf(body, "SECOND"))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
