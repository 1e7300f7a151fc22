package tags

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestExtract_LinkHeuristic(t *testing.T) {
	got := Extract("#project/alpha and [[standalone]] and [[Page With Spaces]]")
	want := []string{"project/alpha", "standalone"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtract_Sources(t *testing.T) {
	content := strings.Join([]string{
		"#+tags: org1, org2",
		"#+filetags: :ft1:ft2:",
		"tags:: [[Multi Word]], plain, #hashed",
		"- block with #inline and #[[Bracket Tag]]",
		"  +tags:: extra",
		"- ![[image.png]] is not a tag",
		"- alias [[real|Shown]]",
	}, "\n")
	got := Extract(content)
	want := []string{"org1", "org2", "ft1", "ft2", "Multi Word", "plain", "hashed", "inline", "extra", "real"}
	// "#[[Bracket Tag]]" has whitespace, so the default predicate rejects it.
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v\nwant      %v", got, want)
	}
}

func TestExtract_SkipsCodeAndFragments(t *testing.T) {
	content := strings.Join([]string{
		"see http://example.com/#anchor and page#frag",
		"entity &#123; and heading ## not",
		"inline `#code` span",
		"```",
		"#fenced",
		"```",
		"after #real",
	}, "\n")
	got := Extract(content)
	want := []string{"real"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtract_Dedup(t *testing.T) {
	got := Extract("#a [[a]] #b #a\ntags:: b, c")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtractor_CustomPredicate(t *testing.T) {
	e := Extractor{IsTag: func(string) bool { return true }}
	got := e.Extract("[[Page With Spaces]]")
	if len(got) != 1 || got[0] != "Page With Spaces" {
		t.Errorf("Extract = %v", got)
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"a", "b"}, []string{"b", "c"}, []string{"", "a", "d"})
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %v, want %v", got, want)
	}
}

func TestToPath(t *testing.T) {
	sep := string(filepath.Separator)
	cases := map[string]string{
		"a:b*c":             "a-b-c",
		"project/alpha":     "project" + sep + "alpha",
		" a / b ":           "a" + sep + "b",
		"a//b":              "a" + sep + "b",
		"many   spaces/x":   "many spaces" + sep + "x",
		"../escape":         "escape",
		"q?<>|\"":           "q-----",
		"tab\there":         "tab here",
		"a\t b":             "a b",
		"a  \t b/c:d":       "a b" + sep + "c-d",
		"bell\x07ring":      "bell-ring",
		"trailing./dots...": "trailing" + sep + "dots",
	}
	for in, want := range cases {
		if got := ToPath(in); got != want {
			t.Errorf("ToPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("a/b:c"); got != "a-b-c" {
		t.Errorf("SanitizeName = %q", got)
	}
}
