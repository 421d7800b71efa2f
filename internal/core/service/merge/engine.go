// Package merge implements the C4 merge engine: it walks a Word document's
// body XML and resolves merge-field, iteration, conditional, inline-
// expression, and image directives against a runtime-typed data tree,
// producing a new DOCX.
//
// No OOXML/DOCX manipulation library exists anywhere in the retrieved
// reference corpus, so the document container is handled with stdlib
// archive/zip + encoding/xml — see DESIGN.md. The directive walk itself
// follows the teacher's portabledoc/typst_converter shape: parse into a
// typed node tree, then walk it to emit output, here retargeted from
// Typst emission to OOXML text-run mutation.
package merge

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

const documentXMLPath = "word/document.xml"

// directivePattern matches the directive shapes inside run text:
// {{path.to.field}}, {{#each arr}}...{{/each}}, {{#if cond}}...{{else}}
// ...{{/if}}, {{= expr }}, and {{image:path.to.field}}. Directives never
// span a w:r run boundary in well-formed templates produced by this
// system's own admin tooling. An unterminated {{#each}} or {{#if}} block
// surfaces as templateInvalid; a stray block-control token ({{/each}},
// {{/if}}, {{else}}, or an unmatched {{#...}}) is rendered as empty text.
var directivePattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

const expressionTimeout = 2 * time.Second

// Engine is the C4 merge engine.
type Engine struct {
	mu          sync.Mutex
	compileCache map[string]*vm.Program
}

func New() *Engine {
	return &Engine{compileCache: make(map[string]*vm.Program)}
}

// Merge resolves every directive in templateBytes (a DOCX) against data
// and returns the merged DOCX bytes.
func (e *Engine) Merge(ctx context.Context, templateBytes []byte, data entity.Value, opts port.MergeOptions) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(templateBytes), int64(len(templateBytes)))
	if err != nil {
		return nil, errkind.Wrap(errkind.TemplateInvalid, err, "open docx container")
	}

	var documentXML []byte
	parts := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, errkind.Wrap(errkind.TemplateInvalid, err, "open docx part")
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errkind.Wrap(errkind.TemplateInvalid, err, "read docx part")
		}
		if f.Name == documentXMLPath {
			documentXML = raw
		}
		parts[f.Name] = raw
	}
	if documentXML == nil {
		return nil, errkind.New(errkind.TemplateInvalid, "missing word/document.xml")
	}

	merged, err := e.resolveDirectives(ctx, string(documentXML), data, opts)
	if err != nil {
		return nil, err
	}
	parts[documentXMLPath] = []byte(merged)

	return rebuildZip(parts)
}

// resolveDirectives expands iteration and conditional blocks first (they
// can contain nested field/expression directives), then resolves the
// remaining field-substitution and inline-expression directives in a
// single left-to-right pass.
func (e *Engine) resolveDirectives(ctx context.Context, xmlBody string, data entity.Value, opts port.MergeOptions) (string, error) {
	expanded, err := e.expandBlocks(ctx, xmlBody, data, opts)
	if err != nil {
		return "", err
	}
	return e.substitute(ctx, expanded, data, opts)
}

var eachOpen = regexp.MustCompile(`\{\{#each ([\w.]+)\}\}`)
var ifOpen = regexp.MustCompile(`\{\{#if (.+?)\}\}`)

// expandBlocks handles {{#each}}/{{/each}} and {{#if}}/{{else}}/{{/if}}
// by locating matching close tags and recursively expanding the body per
// iteration / per branch. Blocks must not overlap with run boundaries in
// a way that splits the opening or closing tag itself — the merge engine
// operates on the raw body XML string, so directive authors keep a
// directive's braces inside one run, matching the teacher's own
// text-first template convention.
func (e *Engine) expandBlocks(ctx context.Context, xmlBody string, data entity.Value, opts port.MergeOptions) (string, error) {
	for {
		loc := eachOpen.FindStringSubmatchIndex(xmlBody)
		ifLoc := ifOpen.FindStringSubmatchIndex(xmlBody)

		switch {
		case loc == nil && ifLoc == nil:
			return xmlBody, nil
		case loc != nil && (ifLoc == nil || loc[0] < ifLoc[0]):
			path := xmlBody[loc[2]:loc[3]]
			closeIdx := strings.Index(xmlBody[loc[1]:], "{{/each}}")
			if closeIdx < 0 {
				return "", errkind.New(errkind.TemplateInvalid, "unterminated {{#each}}")
			}
			bodyStart := loc[1]
			bodyEnd := loc[1] + closeIdx
			body := xmlBody[bodyStart:bodyEnd]
			after := xmlBody[bodyEnd+len("{{/each}}"):]

			arrVal, _ := data.Get(path)
			items, _ := arrVal.AsArray()
			var out strings.Builder
			for _, item := range items {
				rendered, err := e.expandBlocks(ctx, body, item, opts)
				if err != nil {
					return "", err
				}
				rendered, err = e.substitute(ctx, rendered, item, opts)
				if err != nil {
					return "", err
				}
				out.WriteString(rendered)
			}
			xmlBody = xmlBody[:loc[0]] + out.String() + after
		default:
			cond := xmlBody[ifLoc[2]:ifLoc[3]]
			rest := xmlBody[ifLoc[1]:]
			closeIdx := strings.Index(rest, "{{/if}}")
			if closeIdx < 0 {
				return "", errkind.New(errkind.TemplateInvalid, "unterminated {{#if}}")
			}
			block := rest[:closeIdx]
			after := rest[closeIdx+len("{{/if}}"):]

			thenBranch, elseBranch := block, ""
			if idx := strings.Index(block, "{{else}}"); idx >= 0 {
				thenBranch = block[:idx]
				elseBranch = block[idx+len("{{else}}"):]
			}

			ok, err := e.evalBool(ctx, cond, data)
			if err != nil {
				return "", err
			}
			chosen := elseBranch
			if ok {
				chosen = thenBranch
			}
			rendered, err := e.expandBlocks(ctx, chosen, data, opts)
			if err != nil {
				return "", err
			}
			xmlBody = xmlBody[:ifLoc[0]] + rendered + after
		}
	}
}

// substitute resolves remaining {{path}} and {{= expr }} directives.
func (e *Engine) substitute(ctx context.Context, xmlBody string, data entity.Value, opts port.MergeOptions) (string, error) {
	var evalErr error
	result := directivePattern.ReplaceAllStringFunc(xmlBody, func(match string) string {
		if evalErr != nil {
			return match
		}
		inner := strings.TrimSpace(directivePattern.FindStringSubmatch(match)[1])
		if strings.HasPrefix(inner, "=") {
			expr := strings.TrimSpace(strings.TrimPrefix(inner, "="))
			v, err := e.evalExpr(ctx, expr, data)
			if err != nil {
				evalErr = err
				return match
			}
			return renderScalar(v)
		}
		if strings.HasPrefix(inner, "#") || inner == "/each" || inner == "/if" || inner == "else" {
			// leftover block-control token from a malformed template
			return ""
		}
		if strings.HasPrefix(inner, "image:") {
			path := strings.TrimSpace(strings.TrimPrefix(inner, "image:"))
			v, ok := data.Get(path)
			if !ok {
				return ""
			}
			ref, ok := v.AsString()
			if !ok {
				evalErr = errkind.New(errkind.TemplateInvalid, fmt.Sprintf("image directive %q did not resolve to a string", path))
				return match
			}
			if err := ResolveImage(ref, opts.ImageAllowlist); err != nil {
				evalErr = err
				return match
			}
			return escapeXML(ref)
		}
		v, ok := data.Get(inner)
		if !ok {
			return ""
		}
		return renderScalar(v)
	})
	if evalErr != nil {
		return "", evalErr
	}
	return result, nil
}

func renderScalar(v entity.Value) string {
	switch v.Kind() {
	case entity.KindString:
		s, _ := v.AsString()
		return escapeXML(s)
	case entity.KindNumber:
		n, _ := v.AsNumber()
		return fmt.Sprintf("%g", n)
	case entity.KindBool:
		b, _ := v.AsBool()
		if b {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// compile compiles (and caches) an expr-lang program for src.
func (e *Engine) compile(src string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.compileCache[src]; ok {
		return p, nil
	}
	p, err := expr.Compile(src)
	if err != nil {
		return nil, err
	}
	e.compileCache[src] = p
	return p, nil
}

// evalExpr evaluates an inline expression with a per-call timeout on a
// dedicated goroutine. expr-lang has no native preemption, so a timed-out
// evaluation's goroutine is abandoned rather than killed — acceptable
// because the sub-language is expression-only (no loops, no
// side-effects), bounding how long an abandoned evaluation can run.
func (e *Engine) evalExpr(ctx context.Context, src string, data entity.Value) (entity.Value, error) {
	prog, err := e.compile(src)
	if err != nil {
		return entity.Null(), errkind.Wrap(errkind.TemplateExpression, err, "compile expression")
	}

	type result struct {
		v   any
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := vm.Run(prog, data.Interface())
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return entity.Null(), errkind.Wrap(errkind.TemplateExpression, r.err, "evaluate expression")
		}
		return entity.FromInterface(r.v), nil
	case <-time.After(expressionTimeout):
		return entity.Null(), errkind.New(errkind.TemplateExpression, "expression evaluation timed out")
	case <-ctx.Done():
		return entity.Null(), errkind.Wrap(errkind.TemplateExpression, ctx.Err(), "merge canceled")
	}
}

func (e *Engine) evalBool(ctx context.Context, src string, data entity.Value) (bool, error) {
	v, err := e.evalExpr(ctx, src, data)
	if err != nil {
		return false, err
	}
	if b, ok := v.AsBool(); ok {
		return b, nil
	}
	return false, errkind.New(errkind.TemplateExpression, "condition did not evaluate to a boolean")
}

// ResolveImage validates an image reference against the configured
// allowlist (SSRF defense). Base64 data URIs pass through unconditionally.
func ResolveImage(ref string, allowlist []string) error {
	if strings.HasPrefix(ref, "data:") {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return errkind.Wrap(errkind.TemplateInvalid, err, "parse image reference")
	}
	for _, host := range allowlist {
		if u.Host == host {
			return nil
		}
	}
	return errkind.New(errkind.TemplateInvalid, fmt.Sprintf("image host %q not in allowlist", u.Host))
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

var _ port.MergeEngine = (*Engine)(nil)
