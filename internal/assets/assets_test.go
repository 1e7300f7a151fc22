package assets

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/testutil"
)

func TestResolve_DedupsIdenticalBytes(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{
		"pages/note.md":     "",
		"assets/one.png":    "PNGDATA",
		"assets/copy.png":   "PNGDATA",
		"assets/other.jpeg": "JPEG",
	})
	r := New(root, Container)
	scope := NewScope()

	content := "![a](../assets/one.png) and ![b](../assets/copy.png)"
	got, diags := r.Resolve(content, []string{filepath.Join(root, "pages")}, scope)
	if len(diags) != 0 {
		t.Fatalf("diags = %+v", diags)
	}
	if scope.Len() != 1 {
		t.Fatalf("resources = %d, want 1", scope.Len())
	}
	digest := checksum.MediaHash([]byte("PNGDATA"))
	media := `<en-media type="image/png" hash="` + digest + `"/>`
	if got != media+" and "+media {
		t.Errorf("got %q", got)
	}
	res := scope.Resources()[0]
	if res.Mime != "image/png" || res.DisplayName != "one.png" || string(res.Data) != "PNGDATA" {
		t.Errorf("resource = %+v", res)
	}
}

func TestResolve_FolderModeSharesFileName(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{
		"pages/note.md":   "",
		"assets/one.png":  "PNGDATA",
		"assets/copy.png": "PNGDATA",
	})
	r := New(root, Folder)
	scope := NewScope()

	got, _ := r.Resolve("![](../assets/one.png)\n<img src=\"../assets/copy.png\" width=\"10\">",
		[]string{filepath.Join(root, "pages")}, scope)

	name := FileName("one.png", checksum.MediaHash([]byte("PNGDATA")))
	want := "![](assets/" + name + ")\n<img src=\"assets/" + name + "\" width=\"10\">"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
	if scope.Len() != 1 {
		t.Errorf("resources = %d, want 1", scope.Len())
	}
}

func TestResolve_WikiEmbedAndCorpusSearch(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{
		"pages/note.md":           "",
		"deep/nested/diagram.svg": "<svg/>",
	})
	r := New(root, Folder)
	scope := NewScope()

	got, diags := r.Resolve("see ![[diagram.svg]]", []string{filepath.Join(root, "pages")}, scope)
	if len(diags) != 0 {
		t.Fatalf("diags = %+v", diags)
	}
	name := FileName("diagram.svg", checksum.MediaHash([]byte("<svg/>")))
	if got != "see ![diagram.svg](assets/"+name+")" {
		t.Errorf("got %q", got)
	}
}

func TestResolve_PageTransclusionUntouched(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{"pages/note.md": ""})
	r := New(root, Container)
	scope := NewScope()

	in := "![[Other Note]] and ![[Other.md]] and ![[Alias|shown]]"
	got, diags := r.Resolve(in, []string{filepath.Join(root, "pages")}, scope)
	if got != in || len(diags) != 0 || scope.Len() != 0 {
		t.Errorf("got %q, diags %+v, resources %d", got, diags, scope.Len())
	}
}

func TestResolve_SearchSkipsExcludedDirs(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{
		"pages/note.md":             "",
		"export/assets/chart.png":   "OLD-EXPORT",
		"export/notes/chart.png":    "OLD-EXPORT",
		"media/library/chart.png":   "SOURCE",
		"export/assets/orphan.jpeg": "ONLY-IN-EXPORT",
	})
	r := New(root, Container, "export")
	scope := NewScope()

	_, diags := r.Resolve("![](chart.png) ![](orphan.jpeg)", []string{filepath.Join(root, "pages")}, scope)
	if scope.Len() != 1 || string(scope.Resources()[0].Data) != "SOURCE" {
		t.Errorf("resources = %+v", scope.Resources())
	}
	if len(diags) != 1 || diags[0].Ref != "orphan.jpeg" || !errors.Is(diags[0].Err, apperr.ErrAssetNotFound) {
		t.Errorf("diags = %+v", diags)
	}
}

func TestResolve_CandidateDirOrder(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{
		"media/pic.png": "FROM-MEDIA",
		"pages/pic.png": "FROM-NOTE-DIR",
	})
	r := New(root, Container)
	scope := NewScope()
	_, _ = r.Resolve("![](pic.png)", []string{filepath.Join(root, "media"), filepath.Join(root, "pages")}, scope)
	if scope.Len() != 1 || string(scope.Resources()[0].Data) != "FROM-MEDIA" {
		t.Errorf("resources = %+v", scope.Resources())
	}
}

func TestResolve_PercentEncodedName(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{
		"pages/my pic.png": "X",
	})
	r := New(root, Container)
	scope := NewScope()
	_, diags := r.Resolve("![](my%20pic.png)", []string{filepath.Join(root, "pages")}, scope)
	if len(diags) != 0 || scope.Len() != 1 {
		t.Errorf("diags = %+v, resources = %d", diags, scope.Len())
	}
}

func TestResolve_MissingAssetKept(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{"pages/note.md": ""})
	r := New(root, Container)
	scope := NewScope()

	in := "![gone](missing.png)"
	got, diags := r.Resolve(in, []string{filepath.Join(root, "pages")}, scope)
	if got != in {
		t.Errorf("got %q, want reference preserved", got)
	}
	if len(diags) != 1 || !errors.Is(diags[0].Err, apperr.ErrAssetNotFound) {
		t.Errorf("diags = %+v", diags)
	}
}

func TestResolve_AbsoluteRefsPassThrough(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{"pages/note.md": ""})
	r := New(root, Container)
	in := strings.Join([]string{
		"![](https://example.com/x.png)",
		"![](/abs/path.png)",
		"![](data:image/png;base64,AAAA)",
		"[doc](https://example.com/file.pdf)",
		"[page](Other.md)",
		"[section](#anchor)",
	}, "\n")
	got, diags := r.Resolve(in, []string{filepath.Join(root, "pages")}, NewScope())
	if got != in || len(diags) != 0 {
		t.Errorf("got %q, diags %+v", got, diags)
	}
}

func TestResolve_AttachmentLink(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{"pages/report.pdf": "%PDF"})
	r := New(root, Container)
	scope := NewScope()
	got, _ := r.Resolve("[report](report.pdf)", []string{filepath.Join(root, "pages")}, scope)
	if !strings.HasPrefix(got, `<en-media type="application/pdf"`) {
		t.Errorf("got %q", got)
	}
}

func TestResolve_ConverterMediaAbsolutePath(t *testing.T) {
	root, _ := testutil.TestCorpus(t, map[string]string{"pages/note.md": ""})
	media := t.TempDir()
	testutil.WriteFile(t, media, "media/image1.png", "IMG")
	r := New(root, Container)
	scope := NewScope()
	ref := filepath.ToSlash(filepath.Join(media, "media", "image1.png"))
	_, diags := r.Resolve("![]("+ref+")", []string{media, filepath.Join(root, "pages")}, scope)
	if len(diags) != 0 || scope.Len() != 1 {
		t.Errorf("diags = %+v, resources = %d", diags, scope.Len())
	}
}

func TestFileName(t *testing.T) {
	cases := []struct{ name, digest, want string }{
		{"photo.PNG", "0123456789abcdef", "photo_01234567.png"},
		{"my file:1.jpg", "ffffffffffff", "my_file-1_ffffffff.jpg"},
		{".png", "abcd", "asset_abcd.png"},
	}
	for _, c := range cases {
		if got := FileName(c.name, c.digest); got != c.want {
			t.Errorf("FileName(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestMimeType(t *testing.T) {
	cases := map[string]string{
		"a.PNG":  "image/png",
		"b.jpeg": "image/jpeg",
		"c.pdf":  "application/pdf",
		"d.xyz":  DefaultMime,
		"noext":  DefaultMime,
	}
	for in, want := range cases {
		if got := MimeType(in); got != want {
			t.Errorf("MimeType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMimeTypeAndExtensions(t *testing.T) {
	if got := MimeType("Photo.JPG"); got != "image/jpeg" {
		t.Errorf("MimeType = %q", got)
	}
	if got := MimeType("data.unknown"); got != DefaultMime {
		t.Errorf("MimeType(unknown) = %q", got)
	}
	exts := Extensions()
	if len(exts) == 0 || exts[0] != ".bmp" {
		t.Errorf("Extensions() = %v", exts)
	}
	for i := 1; i < len(exts); i++ {
		if exts[i-1] >= exts[i] {
			t.Fatalf("not sorted: %v", exts)
		}
	}
}
