// Package render is a pure, deterministic template-to-email pipeline with
// no I/O: marker preprocessing, variable substitution, empty-paragraph
// normalisation, table wrapping, stylesheet shell, and CSS inlining.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/osteele/liquid"
)

var engine = liquid.NewEngine()

const fallbackUnsentText = "Por favor habilite HTML para ver este correo."

// Context is the data a template is rendered against.
type Context struct {
	FullName       string
	TotalAmountDue string
	Invoices       []InvoiceView
	Extra          map[string]interface{}
}

// InvoiceView is one invoice line item with its amount pre-formatted for
// direct substitution.
type InvoiceView struct {
	Description string
	AmountDue   string
}

// toLiquidData flattens a Context into the map osteele/liquid expects,
// with Extra's keys layered underneath so explicit fields always win.
func (c Context) toLiquidData() map[string]interface{} {
	data := map[string]interface{}{}
	for k, v := range c.Extra {
		data[k] = v
	}
	data["full_name"] = c.FullName
	data["total_amount_due"] = c.TotalAmountDue

	invoices := make([]map[string]interface{}, len(c.Invoices))
	for i, inv := range c.Invoices {
		invoices[i] = map[string]interface{}{
			"description": inv.Description,
			"amount_due":  inv.AmountDue,
		}
	}
	data["invoices"] = invoices
	return data
}

// Render runs the full pipeline over a template body and returns the final
// HTML document ready to hand to a provider adapter, plus the fixed
// plain-text fallback body.
func Render(templateHTML string, ctx Context) (html string, plainText string, err error) {
	processed := Preprocess(templateHTML)

	substituted, err := substitute(processed, ctx.toLiquidData())
	if err != nil {
		return fallbackSubstitute(templateHTML, ctx), fallbackUnsentText, err
	}

	withParas := fixEmptyParagraphs(substituted)
	withBreaks := preserveLineBreaks(withParas)
	withTables := enhanceInvoiceTables(withBreaks)
	wrapped := wrapWithStyles(withTables)

	inlined, inlineErr := inlineCSS(wrapped)
	if inlineErr != nil {
		return wrapped, fallbackUnsentText, nil
	}
	return inlined, fallbackUnsentText, nil
}

func substitute(tmpl string, data map[string]interface{}) (string, error) {
	parsed, err := engine.ParseString(tmpl)
	if err != nil {
		return "", fmt.Errorf("render: parse template: %w", err)
	}
	out, err := parsed.RenderString(data)
	if err != nil {
		return "", fmt.Errorf("render: render template: %w", err)
	}
	return out, nil
}

// fallbackSubstitute is the two-token substitution used when the full
// pipeline's render step fails. It never fails itself.
func fallbackSubstitute(templateHTML string, ctx Context) string {
	out := strings.ReplaceAll(templateHTML, "{{nombre}}", ctx.FullName)
	out = strings.ReplaceAll(out, "{{monto}}", ctx.TotalAmountDue)
	return out
}

var emptyParaRe = regexp.MustCompile(`(?i)<p([^>]*)>\s*</p>`)

func fixEmptyParagraphs(html string) string {
	return emptyParaRe.ReplaceAllString(html, "<p$1>&nbsp;</p>")
}

func preserveLineBreaks(html string) string {
	out := strings.ReplaceAll(html, "\n\n", "<br><br>")
	out = strings.ReplaceAll(out, "\n", "<br>")
	return out
}

func enhanceInvoiceTables(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("table.tiptap-table").Each(func(_ int, sel *goquery.Selection) {
		wrapper := fmt.Sprintf(`<div style="margin: 0 auto; overflow-x: auto;">%s</div>`, nodeHTML(sel))
		sel.ReplaceWithHtml(wrapper)
	})
	body := doc.Find("body")
	if body.Length() > 0 {
		inner, err := body.Html()
		if err == nil {
			return inner
		}
	}
	return html
}

func nodeHTML(sel *goquery.Selection) string {
	out, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	return out
}

const styleSheet = `body { font-family: Arial, sans-serif; margin: 0; padding: 0; line-height: 1.6; }
table { border-collapse: collapse; width: 100%; margin: 0 auto; }
th, td { border: 1px solid #e5e7eb; text-align: left; font-size: 14px; padding: 8px; }
th { background-color: #f9fafb; font-weight: 600; }
tr:nth-child(even) { background-color: #f9fafb; }
img { max-width: 100%; height: auto; display: block; border: 0; }
p { margin-top: 0; margin-bottom: 0.75em; min-height: 1em; }
blockquote { border-left: 3px solid #e1e4e9; padding-left: 1rem; margin: 1rem 0; font-style: italic; color: #6b7280; }
a { color: blue; text-decoration: underline; }`

func wrapWithStyles(body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<style>%s</style>
</head>
<body style="margin: 0; padding: 0; background-color: #f4f4f4;">
<table role="presentation" style="width: 100%%; border-collapse: collapse; background-color: #f4f4f4;">
<tr><td align="center" style="padding: 0;">
<table role="presentation" style="width: 720px; max-width: 720px; border-collapse: collapse; background-color: #ffffff;">
<tr><td style="padding: 20px;">%s</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`, styleSheet, body)
}

// inlineCSS copies each rule in the document's <style> block onto every
// element it matches, then drops the <style> tag, so the final HTML
// renders consistently in mail clients that strip <style> elements. It is
// a mechanical selector-matching subset of full CSS inlining, not a CSS
// cascade implementation. Where a rule and an element's existing style
// attribute set the same property (the shell tables' width and cell
// padding), the existing inline declaration wins.
func inlineCSS(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("render: parse for CSS inlining: %w", err)
	}

	rules := parseStyleRules(doc.Find("style").Text())
	for _, rule := range rules {
		doc.Find(rule.selector).Each(func(_ int, sel *goquery.Selection) {
			existing, _ := sel.Attr("style")
			merged := mergeStyle(existing, rule.declarations)
			sel.SetAttr("style", merged)
		})
	}
	doc.Find("style").Remove()

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render: serialize inlined document: %w", err)
	}
	return out, nil
}

type styleRule struct {
	selector     string
	declarations string
}

var ruleRe = regexp.MustCompile(`(?s)([^{}]+)\{([^{}]*)\}`)

func parseStyleRules(css string) []styleRule {
	var rules []styleRule
	for _, m := range ruleRe.FindAllStringSubmatch(css, -1) {
		selectors := strings.Split(m[1], ",")
		decls := strings.TrimSpace(m[2])
		if decls == "" {
			continue
		}
		for _, s := range selectors {
			s = strings.TrimSpace(s)
			if s == "" || strings.ContainsAny(s, ":") {
				// skip pseudo-selectors (:nth-child, :hover, ...); not
				// expressible as a static inline style attribute.
				continue
			}
			rules = append(rules, styleRule{selector: s, declarations: decls})
		}
	}
	return rules
}

func mergeStyle(existing, additions string) string {
	existing = strings.TrimSpace(existing)
	additions = strings.TrimRight(strings.TrimSpace(additions), ";")
	if existing == "" {
		return additions + ";"
	}
	// Existing declarations go last so they take precedence.
	return additions + "; " + strings.TrimRight(existing, ";") + ";"
}
