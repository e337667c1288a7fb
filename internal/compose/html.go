package compose

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

const preStyle = "font-family:SFMono-Regular,Consolas,'Liberation Mono',Menlo,monospace;" +
	"font-size:13px;line-height:1.45;padding:12px 14px;border-radius:6px;" +
	"background:#1f2328;color:#e6edf3;overflow-x:auto;white-space:pre;"

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		renderer.WithNodeRenderers(util.Prioritized(codeBlockRenderer{}, 100)),
	),
)

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body style="margin:0;padding:0;background:#f4f5f7;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background:#f4f5f7;">
<tr><td align="center" style="padding:24px 12px;">
<table role="presentation" width="640" cellpadding="0" cellspacing="0" style="max-width:640px;width:100%;background:#ffffff;border:1px solid #e1e4e8;border-radius:8px;">
<tr><td style="padding:16px 24px;border-bottom:1px solid #e1e4e8;font-family:-apple-system,'Segoe UI',Helvetica,Arial,sans-serif;font-size:16px;font-weight:600;color:#24292f;">{{.Title}}</td></tr>
<tr><td style="padding:20px 24px;font-family:-apple-system,'Segoe UI',Helvetica,Arial,sans-serif;font-size:14px;line-height:1.6;color:#24292f;">
{{.Body}}
</td></tr>
<tr><td style="padding:12px 24px;border-top:1px solid #e1e4e8;font-family:-apple-system,'Segoe UI',Helvetica,Arial,sans-serif;font-size:12px;color:#6e7781;">{{.Footer}}</td></tr>
</table>
</td></tr>
</table>
</body>
</html>
`))

const emailFooter = "Sent by codeask on behalf of a developer asking about your code."

// RenderEmailHTML converts a markdown email body into a standalone HTML
// document suitable as the HTML alternative of a multipart message.
// Raw HTML in the markdown is not passed through.
func RenderEmailHTML(title, body string) (string, error) {
	var rendered bytes.Buffer
	if err := markdown.Convert([]byte(body), &rendered); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}

	var out bytes.Buffer
	err := emailTemplate.Execute(&out, struct {
		Title  string
		Body   template.HTML
		Footer string
	}{
		Title:  title,
		Body:   template.HTML(rendered.String()),
		Footer: emailFooter,
	})
	if err != nil {
		return "", fmt.Errorf("rendering email template: %w", err)
	}
	return out.String(), nil
}

// codeBlockRenderer renders code blocks with inline styles. Mail clients
// strip <style> elements.
type codeBlockRenderer struct{}

func (r codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindCodeBlock, r.renderCodeBlock)
}

func (r codeBlockRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("</code></pre>\n")
		return ast.WalkContinue, nil
	}

	_, _ = w.WriteString(`<pre style="` + preStyle + `"><code`)
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		if lang := fenced.Language(source); len(lang) > 0 {
			_, _ = w.WriteString(` class="language-`)
			_, _ = w.Write(util.EscapeHTML(lang))
			_, _ = w.WriteString(`"`)
		}
	}
	_, _ = w.WriteString(">")

	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		_, _ = w.Write(util.EscapeHTML(line.Value(source)))
	}
	return ast.WalkContinue, nil
}
