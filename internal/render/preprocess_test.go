package render

import "testing"

func TestPreprocessBareTD(t *testing.T) {
	in := "<tr><td>{{#each invoices}}</td></tr>"
	want := ""
	if got := Preprocess(in); got != want {
		t.Errorf("Preprocess(%q) = %q, want %q", in, got, want)
	}
}

func TestPreprocessBareTDEmptySiblings(t *testing.T) {
	in := `<tr><td style="color:gray">{{#each invoices}}</td><td></td><td></td><td></td><td></td></tr>`
	want := ""
	if got := Preprocess(in); got != want {
		t.Errorf("Preprocess(%q) = %q, want %q", in, got, want)
	}
}

func TestPreprocessPWrapperInsideTD(t *testing.T) {
	in := `<tr><td style="color:gray"><p>{{#each invoices}}</p></td><td><p></p></td><td><p></p></td><td><p></p></td><td><p></p></td></tr>`
	want := ""
	if got := Preprocess(in); got != want {
		t.Errorf("Preprocess(%q) = %q, want %q", in, got, want)
	}
}

func TestPreprocessEndHelperWithPWrapper(t *testing.T) {
	in := `<tr><td style="color:gray"><p>{{/each}}</p></td><td><p></p></td><td><p></p></td></tr>`
	want := ""
	if got := Preprocess(in); got != want {
		t.Errorf("Preprocess(%q) = %q, want %q", in, got, want)
	}
}

func TestPreprocessCommentMarker(t *testing.T) {
	in := "before {{! a stray authoring comment }} after"
	want := "before  after"
	if got := Preprocess(in); got != want {
		t.Errorf("Preprocess(%q) = %q, want %q", in, got, want)
	}
}

func TestPreprocessLeavesPlainVariablesAlone(t *testing.T) {
	in := "Hola {{full_name}}, debe {{monto}}"
	if got := Preprocess(in); got != in {
		t.Errorf("Preprocess(%q) = %q, want unchanged", in, got)
	}
}

func TestPreprocessIsIdempotent(t *testing.T) {
	cases := []string{
		"<tr><td>{{#each invoices}}</td></tr>",
		`<tr><td><p>{{/each}}</p></td><td><p></p></td></tr>`,
		"before {{! comment }} after",
		"Hola {{full_name}}, debe {{monto}}",
	}
	for _, in := range cases {
		once := Preprocess(in)
		if twice := Preprocess(once); twice != once {
			t.Errorf("Preprocess not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
