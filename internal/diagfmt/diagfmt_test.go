package diagfmt

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"refine/internal/ast"
	"refine/internal/engine"
	"refine/internal/source"
	"refine/internal/testkit"
)

const program = "fn greet(hello: String) -> String {\n    return helo\n}\n"

// misspelled compiles greet with the use of "helo" spanning bytes 47..51 of
// program in file 0.
func misspelled(t *testing.T) (*engine.Result, *source.FileSet) {
	t.Helper()
	use := ast.Ident("helo")
	use.Span = &source.Span{File: 0, Start: 47, End: 51}
	tree := ast.MustBuild(3, ast.Module(ast.Fn("greet", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("hello", ast.TypeName("String"))},
		Result: ast.TypeName("String"),
	}, ast.Return(use))))

	res, err := engine.Compile(context.Background(), tree, engine.Options{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Diagnostics) != 1 || len(res.Diagnostics[0].RepairRefs) == 0 {
		t.Fatalf("diagnostics = %+v", res.Diagnostics)
	}
	if err := testkit.CheckResult(res); err != nil {
		t.Fatal(err)
	}
	fs := source.NewFileSet()
	fs.AddVirtual("src/prog.rf", []byte(program))
	return res, fs
}

func TestPrettyResolvesSpans(t *testing.T) {
	res, fs := misspelled(t)
	var buf bytes.Buffer
	Pretty(&buf, res, fs, PrettyOpts{PathMode: PathModeBasename, Preview: true})
	out := buf.String()

	for _, want := range []string{
		"error[SEM3001]: cannot find 'helo' in this scope\n",
		"  --> prog.rf:2:12\n",
		" 2 |     return helo\n",
		"   | " + strings.Repeat(" ", 11) + "^^^^\n",
		"= repair " + res.Diagnostics[0].RepairRefs[0] + ": rename 'helo' to 'hello' (high, ",
		"      -     return helo\n",
		"      +     return hello\n",
		"status error: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("escape codes with color off:\n%s", out)
	}
}

func TestPrettyWithoutSource(t *testing.T) {
	res, _ := misspelled(t)
	var buf bytes.Buffer
	Pretty(&buf, res, nil, PrettyOpts{})
	out := buf.String()
	d := res.Diagnostics[0]
	if want := "  --> " + d.Primary.String() + " @ 47..51\n"; !strings.Contains(out, want) {
		t.Errorf("output lacks %q:\n%s", want, out)
	}
	if strings.Contains(out, "= repair ") {
		t.Errorf("repairs listed without the option:\n%s", out)
	}
	if !strings.Contains(out, ", 1 repair\n") {
		t.Errorf("summary lacks the repair count:\n%s", out)
	}
}

func TestPrettyWidth(t *testing.T) {
	res, _ := misspelled(t)
	var buf bytes.Buffer
	Pretty(&buf, res, nil, PrettyOpts{Width: 12})
	if !strings.Contains(buf.String(), ": cannot fi...\n") {
		t.Errorf("message not truncated:\n%s", buf.String())
	}
}

func TestJSONLocations(t *testing.T) {
	res, fs := misspelled(t)
	var buf bytes.Buffer
	if err := JSON(&buf, res, fs, JSONOpts{IncludePositions: true, PathMode: PathModeRelative, BaseDir: "src", OmitAST: true}); err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Status       string                  `json:"status"`
		CanonicalAST json.RawMessage         `json:"canonical_ast"`
		Locations    map[string]LocationJSON `json:"locations"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Status != "error" || string(doc.CanonicalAST) != "null" {
		t.Errorf("status = %s, canonical_ast = %s", doc.Status, doc.CanonicalAST)
	}
	want := map[string]LocationJSON{
		res.Diagnostics[0].ID: {File: "prog.rf", StartByte: 47, EndByte: 51, StartLine: 2, StartCol: 12, EndLine: 2, EndCol: 16},
	}
	if diff := cmp.Diff(want, doc.Locations); diff != "" {
		t.Errorf("locations (-want +got):\n%s", diff)
	}
	if res.CanonicalAST == nil {
		t.Errorf("OmitAST modified the result")
	}
}

func TestJSONMatchesResult(t *testing.T) {
	res, _ := misspelled(t)
	var buf bytes.Buffer
	if err := JSON(&buf, res, nil, JSONOpts{IncludePositions: true}); err != nil {
		t.Fatal(err)
	}
	plain, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSuffix(buf.String(), "\n"); got != string(plain) {
		t.Errorf("JSON differs from the result encoding:\n%s\n%s", got, plain)
	}
}

func TestUnderline(t *testing.T) {
	tests := []struct {
		line       string
		start, end source.LineCol
		want       string
	}{
		{"a / d", source.LineCol{Line: 1, Col: 5}, source.LineCol{Line: 1, Col: 6}, "    ^"},
		{"x", source.LineCol{Line: 1, Col: 1}, source.LineCol{Line: 1, Col: 1}, "^"},
		{"let s = 日本", source.LineCol{Line: 1, Col: 9}, source.LineCol{Line: 1, Col: 15}, "        ^^^^"},
		{"call(", source.LineCol{Line: 1, Col: 1}, source.LineCol{Line: 3, Col: 2}, "^^^^^"},
	}
	for _, tt := range tests {
		if got := underline(tt.line, tt.start, tt.end); got != tt.want {
			t.Errorf("underline(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
