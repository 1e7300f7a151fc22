package resolver

import (
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const (
	idA = "aaaaaaaa-0000-4000-8000-000000000001"
	idB = "bbbbbbbb-0000-4000-8000-000000000002"
	idC = "cccccccc-0000-4000-8000-000000000003"
	idX = "dddddddd-0000-4000-8000-00000000dead"
)

type table map[string]string

func (t table) Lookup(id string) (string, bool) {
	c, ok := t[id]
	return c, ok
}

func hasDiag(diags []models.Diagnostic, target error) bool {
	for _, d := range diags {
		if d.Is(target) {
			return true
		}
	}
	return false
}

func TestResolve_KnownReference(t *testing.T) {
	r := New(table{idB: "Hello"}, Options{})
	got, diags := r.Resolve("((" + idB + "))")
	if got != "Hello" {
		t.Errorf("got %q, want %q", got, "Hello")
	}
	if len(diags) != 0 {
		t.Errorf("diags = %+v", diags)
	}
}

func TestResolve_UnknownReference(t *testing.T) {
	r := New(table{}, Options{})
	got, diags := r.Resolve("see ((" + idX + ")) here")
	if !strings.Contains(got, idX) || got != "see "+NotFoundMarker(idX)+" here" {
		t.Errorf("got %q", got)
	}
	if !hasDiag(diags, apperr.ErrMissingReference) {
		t.Errorf("diags = %+v, want ErrMissingReference", diags)
	}
}

func TestResolve_UppercaseIDMatches(t *testing.T) {
	r := New(table{idB: "Hello"}, Options{})
	got, _ := r.Resolve("((" + strings.ToUpper(idB) + "))")
	if got != "Hello" {
		t.Errorf("got %q", got)
	}
}

func TestExpand_ChainResolvesWithinBound(t *testing.T) {
	blocks := table{
		idA: "a ((" + idB + "))",
		idB: "b ((" + idC + "))",
		idC: "c",
	}
	r := New(blocks, Options{MaxExpansions: 3})
	got, diags := r.Expand("((" + idA + "))")
	if got != "a b c" {
		t.Errorf("got %q, want %q", got, "a b c")
	}
	if len(diags) != 0 {
		t.Errorf("diags = %+v", diags)
	}
}

func TestExpand_ChainStopsAtBound(t *testing.T) {
	blocks := table{
		idA: "a ((" + idB + "))",
		idB: "b ((" + idC + "))",
		idC: "c",
	}
	r := New(blocks, Options{MaxExpansions: 2})
	got, diags := r.Expand("((" + idA + "))")
	if got != "a b (("+idC+"))" {
		t.Errorf("got %q", got)
	}
	if !hasDiag(diags, apperr.ErrDepthExceeded) {
		t.Errorf("diags = %+v, want ErrDepthExceeded", diags)
	}
}

func TestExpand_CycleTerminates(t *testing.T) {
	blocks := table{
		idA: "((" + idB + "))",
		idB: "((" + idA + "))",
	}
	r := New(blocks, Options{MaxExpansions: 5})
	got, diags := r.Expand("start ((" + idA + "))")
	if !strings.HasPrefix(got, "start ((") {
		t.Errorf("got %q, want residual reference", got)
	}
	if !hasDiag(diags, apperr.ErrDepthExceeded) {
		t.Errorf("diags = %+v, want ErrDepthExceeded", diags)
	}
}

func TestExpand_EmbedSinglePass(t *testing.T) {
	blocks := table{
		idA: "embedded {{embed ((" + idB + "))}}",
		idB: "inner",
	}
	r := New(blocks, Options{})
	got, _ := r.Expand("{{embed ((" + idA + "))}}")
	if got != "embedded {{embed inner}}" {
		t.Errorf("got %q", got)
	}
}

func TestExpand_LeavesPageLinks(t *testing.T) {
	r := New(table{}, Options{})
	got, diags := r.Expand("link [[Page]] and #[[Tag]]")
	if got != "link [[Page]] and #[[Tag]]" || len(diags) != 0 {
		t.Errorf("got %q, %+v", got, diags)
	}
}

func TestResolve_NoPlaceholdersUnchanged(t *testing.T) {
	r := New(table{}, Options{})
	in := "- plain text\n  - nested *emphasis*\n- done"
	got, diags := r.Resolve("\ufeff" + in + "\n\n")
	if got != in || len(diags) != 0 {
		t.Errorf("got %q, want %q", got, in)
	}
}

func TestClampExpansions(t *testing.T) {
	cases := map[int]int{0: DefaultMaxExpansions, -3: 1, 1: 1, 50: 50, 1000: 100}
	for in, want := range cases {
		if got := ClampExpansions(in); got != want {
			t.Errorf("ClampExpansions(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRenderPageLinks(t *testing.T) {
	cases := []struct{ in, want string }{
		{"see [[Page]]", "see *Page*"},
		{"alias [[Target|Shown]]", "alias *Shown*"},
		{"tag #[[Multi Word]]", "tag *Multi Word*"},
		{"{{embed [[Other Page]]}}", "*Other Page*"},
		{"![[image.png]] stays", "![[image.png]] stays"},
		{"unclosed [[oops", "unclosed [[oops"},
		{"empty [[]]", "empty [[]]"},
		{"two [[a]] [[b/c]]", "two *a* *b/c*"},
		{"![[Other Note]] inline", "*Other Note* inline"},
		{"![[Other.md|Shown]]", "*Shown*"},
		{"code `[[Page]]` and [[Page]]", "code `[[Page]]` and *Page*"},
		{"double ``a ` [[x]]`` [[y]]", "double ``a ` [[x]]`` *y*"},
		{"lone ` tick [[z]]", "lone ` tick *z*"},
		{"```\n[[In Fence]]\n```\n[[After]]", "```\n[[In Fence]]\n```\n*After*"},
	}
	for _, c := range cases {
		if got := RenderPageLinks(c.in); got != c.want {
			t.Errorf("RenderPageLinks(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCleanup(t *testing.T) {
	cases := []struct{ name, in, want string }{
		{"bom", "\ufefftext", "text"},
		{"drawer", "* H\n:PROPERTIES:\n:ID: x\n:END:\nbody", "* H\nbody"},
		{"flags", "- a\n  collapsed:: true\n  heading:: 2\n  id:: " + idA + "\n- b", "- a\n- b"},
		{"caret", "- idea ^" + idA + "\n- next", "- idea\n- next"},
		{"cloze", "answer {{cloze forty two}}", "answer *forty two*"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"two blanks kept", "a\n\n\nb", "a\n\n\nb"},
		{"trim", "  \n a \n\n", "a"},
	}
	for _, c := range cases {
		if got := Cleanup(c.in); got != c.want {
			t.Errorf("%s: Cleanup(%q) = %q, want %q", c.name, c.in, got, c.want)
		}
	}
}
