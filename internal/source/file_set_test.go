package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSetVersions(t *testing.T) {
	fs := NewFileSet()
	id1 := fs.Add("prog.json", []byte("hello world"), 0)
	id2 := fs.Add("./prog.json", []byte("hello universe"), 0)
	if id1 != 0 || id2 != 1 {
		t.Fatalf("ids = %d, %d", id1, id2)
	}
	if latest, ok := fs.GetLatest("prog.json"); !ok || latest != id2 {
		t.Errorf("latest = %d, %v", latest, ok)
	}
	if got := string(fs.Get(id1).Content); got != "hello world" {
		t.Errorf("first version = %q", got)
	}
	if fs.Get(7) != nil {
		t.Errorf("unknown id resolved")
	}
}

func TestResolve(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("prog", []byte("fn f() {\n  x / d\n}\n"))
	tests := []struct {
		span       Span
		start, end LineCol
	}{
		{Span{File: id, Start: 0, End: 2}, LineCol{1, 1}, LineCol{1, 3}},
		{Span{File: id, Start: 11, End: 16}, LineCol{2, 3}, LineCol{2, 8}},
		// the newline itself belongs to the line it ends
		{Span{File: id, Start: 8, End: 9}, LineCol{1, 9}, LineCol{2, 1}},
		{Span{File: id, Start: 17, End: 18}, LineCol{3, 1}, LineCol{3, 2}},
	}
	for _, tt := range tests {
		start, end, ok := fs.Resolve(tt.span)
		if !ok || start != tt.start || end != tt.end {
			t.Errorf("Resolve(%v) = %v %v %v, want %v %v", tt.span, start, end, ok, tt.start, tt.end)
		}
	}
	if _, _, ok := fs.Resolve(Span{File: id, Start: 0, End: 99}); ok {
		t.Errorf("span past the end resolved")
	}
	if _, _, ok := fs.Resolve(Span{File: 3}); ok {
		t.Errorf("span in unknown file resolved")
	}
}

func TestLine(t *testing.T) {
	f := NewFileSet()
	id := f.AddVirtual("prog", []byte("first\n\nthird"))
	file := f.Get(id)
	for n, want := range map[uint32]string{0: "", 1: "first", 2: "", 3: "third", 4: ""} {
		if got := file.Line(n); got != want {
			t.Errorf("Line(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestLoadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.txt")
	if err := os.WriteFile(path, []byte("\xEF\xBB\xBFa\r\nb\rc\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs := NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	f := fs.Get(id)
	if got := string(f.Content); got != "a\nb\rc\n" {
		t.Errorf("content = %q", got)
	}
	if f.Flags&FileHadBOM == 0 || f.Flags&FileNormalizedCRLF == 0 {
		t.Errorf("flags = %b", f.Flags)
	}
	if len(f.LineIdx) != 2 {
		t.Errorf("line index = %v", f.LineIdx)
	}
}
