// Package concat implements the C5 concatenation engine: it combines
// several already-merged DOCX buffers into one, inserting a "next page"
// section break between consecutive sections.
//
// Same container-format reasoning as the merge package: no OOXML
// manipulation library exists in the retrieved corpus, so archive/zip +
// encoding/xml are used directly — see DESIGN.md.
package concat

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"regexp"
	"sort"

	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

const documentXMLPath = "word/document.xml"

// sectionBreak is inserted between consecutive sections' body XML — a
// "next page" section break. It carries no header/footer references, so
// sections after the first do not get their own headers/footers.
const sectionBreak = `<w:p><w:pPr><w:sectPr><w:type w:val="nextPage"/></w:sectPr></w:pPr></w:p>`

var bodyPattern = regexp.MustCompile(`(?s)<w:body>(.*)</w:body>`)

// Engine is the C5 concatenation engine.
type Engine struct{}

func New() *Engine { return &Engine{} }

// Concatenate sorts sections by Sequence (stable) and builds a single
// DOCX whose body is the ordered union of each section's body content,
// separated by section breaks. Non-document parts are taken from every
// section with content-hash dedup (a part whose bytes were already kept
// under any name is skipped); when two sections carry a part under the
// same name, only the first section's part is kept.
func (e *Engine) Concatenate(_ context.Context, sections []port.ConcatSection) ([]byte, error) {
	if len(sections) == 0 {
		return nil, errkind.New(errkind.NoSections, "no sections to concatenate")
	}
	if len(sections) == 1 {
		return sections[0].Bytes, nil
	}

	ordered := make([]port.ConcatSection, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	mergedParts := make(map[string][]byte)
	seenHashes := make(map[string]string) // content hash -> part name already kept
	var bodies []string

	for _, sec := range ordered {
		zr, err := zip.NewReader(bytes.NewReader(sec.Bytes), int64(len(sec.Bytes)))
		if err != nil {
			return nil, errkind.Wrap(errkind.TemplateInvalid, err, "open section docx")
		}

		for _, f := range zr.File {
			rc, err := f.Open()
			if err != nil {
				return nil, errkind.Wrap(errkind.TemplateInvalid, err, "open section part")
			}
			raw, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, errkind.Wrap(errkind.TemplateInvalid, err, "read section part")
			}

			if f.Name == documentXMLPath {
				m := bodyPattern.FindSubmatch(raw)
				if m == nil {
					return nil, errkind.New(errkind.TemplateInvalid, "section missing <w:body>")
				}
				bodies = append(bodies, string(m[1]))
				continue
			}

			sum := sha256.Sum256(raw)
			hash := hex.EncodeToString(sum[:])
			if existing, ok := seenHashes[hash]; ok {
				_ = existing // already kept under some name; skip duplicate bytes
				continue
			}
			seenHashes[hash] = f.Name
			if _, exists := mergedParts[f.Name]; !exists {
				mergedParts[f.Name] = raw
			}
		}
	}

	var combinedBody bytes.Buffer
	for i, b := range bodies {
		combinedBody.WriteString(b)
		if i < len(bodies)-1 {
			combinedBody.WriteString(sectionBreak)
		}
	}

	mergedParts[documentXMLPath] = []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + combinedBody.String() + `</w:body></w:document>`)

	return rebuildZip(mergedParts)
}

func rebuildZip(parts map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range parts {
		w, err := zw.Create(name)
		if err != nil {
			return nil, errkind.Wrap(errkind.Internal, err, "write docx part")
		}
		if _, err := w.Write(data); err != nil {
			return nil, errkind.Wrap(errkind.Internal, err, "write docx part")
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "close docx container")
	}
	return buf.Bytes(), nil
}

var _ port.ConcatEngine = (*Engine)(nil)
