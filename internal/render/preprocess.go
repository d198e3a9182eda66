package render

import "regexp"

// trTableWrapperRe matches a single table row whose sole non-empty cell
// holds one block-helper marker, with any number of trailing empty
// sibling cells — the shape TipTap authoring emits for an {{#each}},
// {{/each}}, or {{!comment}} marker left in a table layout.
var trTableWrapperRe = regexp.MustCompile(
	`(?is)<tr[^>]*>\s*<td[^>]*>(?:\s*<[^>]+>)*\s*(\{\{[/#!][^}]+\}\})\s*(?:</[^>]+>)*\s*</td>(?:\s*<td[^>]*>(?:\s*<[^>]+>\s*</[^>]+>)?\s*</td>)*\s*</tr>`,
)

// blockHelperRe matches any block-helper marker, wrapped in a table row or
// bare in running text.
var blockHelperRe = regexp.MustCompile(`\{\{[/#!][^}]*\}\}`)

// Preprocess strips the authoring tool's block-helper markers (loop/section
// openers, closers, comments) out of a template before substitution. The
// markers are dead authoring artifacts: rendering performs flat variable
// substitution only, never loop execution, so every marker is removed
// rather than interpreted. The table
// wrapper is unwrapped first so its empty sibling cells disappear along
// with the marker, matching the authoring tool's row layout; anything the
// wrapper pass misses is caught by the bare-marker pass.
func Preprocess(tmpl string) string {
	out := trTableWrapperRe.ReplaceAllString(tmpl, "$1")
	out = blockHelperRe.ReplaceAllString(out, "")
	return out
}
