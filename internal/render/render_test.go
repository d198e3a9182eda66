package render

import (
	"strings"
	"testing"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	html, text, err := Render("<p>Hola {{full_name}}, debe {{total_amount_due}}</p>", Context{
		FullName:       "Ana",
		TotalAmountDue: "1.500.000",
	})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if !strings.Contains(html, "Hola Ana, debe 1.500.000") {
		t.Errorf("rendered html missing substituted values: %s", html)
	}
	if text != fallbackUnsentText {
		t.Errorf("plain text = %q, want fixed fallback text", text)
	}
}

func TestRenderStripsBlockHelperMarkersBeforeSubstitution(t *testing.T) {
	tmpl := `<table class="tiptap-table"><tr><td><p>{{#each invoices}}</p></td><td><p></p></td></tr>
<tr><td>{{description}}</td><td>{{amount_due}}</td></tr>
<tr><td><p>{{/each}}</p></td><td><p></p></td></tr></table>`

	html, _, err := Render(tmpl, Context{FullName: "Ana", TotalAmountDue: "0"})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if strings.Contains(html, "{{#each") || strings.Contains(html, "{{/each}}") {
		t.Errorf("block helper markers survived rendering: %s", html)
	}
}

func TestRenderFixesEmptyParagraphs(t *testing.T) {
	html, _, err := Render("<p></p><p>text</p>", Context{FullName: "Ana", TotalAmountDue: "0"})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	// The DOM passes may re-serialize the entity as a raw U+00A0.
	if !strings.Contains(html, "&nbsp;") && !strings.Contains(html, "\u00a0") {
		t.Errorf("empty paragraph was not normalised: %s", html)
	}
}

func TestRenderInlinesCSSAndDropsStyleTag(t *testing.T) {
	html, _, err := Render("<p>hi</p>", Context{FullName: "Ana", TotalAmountDue: "0"})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if strings.Contains(html, "<style>") {
		t.Errorf("style tag was not removed after inlining: %s", html)
	}
	if !strings.Contains(html, `font-family`) {
		t.Errorf("body style rule was not inlined: %s", html)
	}
}

func TestFallbackSubstituteReplacesNombreAndMonto(t *testing.T) {
	got := fallbackSubstitute("Hola {{nombre}}, debe {{monto}}", Context{FullName: "Ana", TotalAmountDue: "500"})
	want := "Hola Ana, debe 500"
	if got != want {
		t.Errorf("fallbackSubstitute = %q, want %q", got, want)
	}
}
