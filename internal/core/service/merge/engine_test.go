package merge

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(documentXMLPath)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readDocxBody(t *testing.T, docx []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == documentXMLPath {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			var b bytes.Buffer
			_, err = b.ReadFrom(rc)
			require.NoError(t, err)
			return b.String()
		}
	}
	t.Fatal("document.xml not found")
	return ""
}

func objectValue(t *testing.T, m map[string]any) entity.Value {
	t.Helper()
	return entity.FromInterface(m)
}

func TestMerge_FieldSubstitution(t *testing.T) {
	docx := buildDocx(t, `<w:p><w:t>Hello {{Account.Name}}</w:t></w:p>`)
	data := objectValue(t, map[string]any{"Account": map[string]any{"Name": "Acme"}})

	eng := New()
	out, err := eng.Merge(context.Background(), docx, data, port.MergeOptions{})
	require.NoError(t, err)
	assert.Contains(t, readDocxBody(t, out), "Hello Acme")
}

func TestMerge_MissingFieldRendersEmpty(t *testing.T) {
	docx := buildDocx(t, `<w:t>[{{Account.Missing}}]</w:t>`)
	data := objectValue(t, map[string]any{"Account": map[string]any{"Name": "Acme"}})

	eng := New()
	out, err := eng.Merge(context.Background(), docx, data, port.MergeOptions{})
	require.NoError(t, err)
	assert.Contains(t, readDocxBody(t, out), "[]")
}

func TestMerge_Conditional(t *testing.T) {
	docx := buildDocx(t, `<w:t>{{#if Active}}YES{{else}}NO{{/if}}</w:t>`)

	eng := New()
	out, err := eng.Merge(context.Background(), docx, objectValue(t, map[string]any{"Active": true}), port.MergeOptions{})
	require.NoError(t, err)
	assert.Contains(t, readDocxBody(t, out), "YES")

	out, err = eng.Merge(context.Background(), docx, objectValue(t, map[string]any{"Active": false}), port.MergeOptions{})
	require.NoError(t, err)
	assert.Contains(t, readDocxBody(t, out), "NO")
}

func TestMerge_Iteration(t *testing.T) {
	docx := buildDocx(t, `<w:t>{{#each Items}}[{{Name}}]{{/each}}</w:t>`)
	data := objectValue(t, map[string]any{
		"Items": []any{
			map[string]any{"Name": "A"},
			map[string]any{"Name": "B"},
		},
	})

	eng := New()
	out, err := eng.Merge(context.Background(), docx, data, port.MergeOptions{})
	require.NoError(t, err)
	assert.Contains(t, readDocxBody(t, out), "[A][B]")
}

func TestMerge_InlineExpression(t *testing.T) {
	docx := buildDocx(t, `<w:t>{{= Price * Qty }}</w:t>`)
	data := objectValue(t, map[string]any{"Price": float64(3), "Qty": float64(4)})

	eng := New()
	out, err := eng.Merge(context.Background(), docx, data, port.MergeOptions{})
	require.NoError(t, err)
	assert.Contains(t, readDocxBody(t, out), "12")
}

func TestMerge_MalformedContainerIsTemplateInvalid(t *testing.T) {
	eng := New()
	_, err := eng.Merge(context.Background(), []byte("not a zip"), entity.Null(), port.MergeOptions{})
	require.Error(t, err)
	kindErr, ok := errkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errkind.TemplateInvalid, kindErr.Kind)
}

func TestResolveImage_AllowlistEnforced(t *testing.T) {
	assert.NoError(t, ResolveImage("data:image/png;base64,AAA", nil))
	assert.NoError(t, ResolveImage("https://trusted.example.com/a.png", []string{"trusted.example.com"}))
	assert.Error(t, ResolveImage("https://evil.example.com/a.png", []string{"trusted.example.com"}))
}

func TestMerge_ImageDirective_DataURIPassesWithNoAllowlist(t *testing.T) {
	docx := buildDocx(t, `<w:t>{{image:Logo}}</w:t>`)
	data := objectValue(t, map[string]any{"Logo": "data:image/png;base64,AAA"})

	eng := New()
	out, err := eng.Merge(context.Background(), docx, data, port.MergeOptions{})
	require.NoError(t, err)
	assert.Contains(t, readDocxBody(t, out), "data:image/png;base64,AAA")
}

func TestMerge_ImageDirective_AllowedHostSucceeds(t *testing.T) {
	docx := buildDocx(t, `<w:t>{{image:Logo}}</w:t>`)
	data := objectValue(t, map[string]any{"Logo": "https://trusted.example.com/a.png"})

	eng := New()
	out, err := eng.Merge(context.Background(), docx, data, port.MergeOptions{ImageAllowlist: []string{"trusted.example.com"}})
	require.NoError(t, err)
	assert.Contains(t, readDocxBody(t, out), "https://trusted.example.com/a.png")
}

func TestMerge_ImageDirective_DisallowedHostFailsTemplateInvalid(t *testing.T) {
	docx := buildDocx(t, `<w:t>{{image:Logo}}</w:t>`)
	data := objectValue(t, map[string]any{"Logo": "https://evil.example.com/a.png"})

	eng := New()
	_, err := eng.Merge(context.Background(), docx, data, port.MergeOptions{ImageAllowlist: []string{"trusted.example.com"}})
	require.Error(t, err)

	kindErr, ok := errkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errkind.TemplateInvalid, kindErr.Kind)
}
