package diagfmt

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"refine/internal/engine"
	"refine/internal/source"
)

// LocationJSON is a span resolved against the FileSet.
type LocationJSON struct {
	File      string `json:"file"`
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
	StartLine uint32 `json:"start_line"`
	StartCol  uint32 `json:"start_col"`
	EndLine   uint32 `json:"end_line"`
	EndCol    uint32 `json:"end_col"`
}

// ResultJSON is the document written by JSON: the pass result plus the
// optional locations table keyed by diagnostic, obligation or hole ID.
type ResultJSON struct {
	*engine.Result
	Locations map[string]LocationJSON `json:"locations,omitempty"`
}

func formatPath(path string, mode PathMode, baseDir string) string {
	switch mode {
	case PathModeAbsolute:
		if abs, err := filepath.Abs(path); err == nil {
			return filepath.ToSlash(abs)
		}
	case PathModeRelative:
		base, err := os.Getwd()
		if baseDir != "" {
			base, err = filepath.Abs(baseDir)
		}
		if err != nil {
			return path
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path
		}
		if rel, err := filepath.Rel(base, abs); err == nil {
			return filepath.ToSlash(rel)
		}
	case PathModeBasename:
		return filepath.Base(path)
	}
	return path
}

func makeLocation(span source.Span, fs *source.FileSet, mode PathMode, baseDir string) (LocationJSON, bool) {
	start, end, ok := fs.Resolve(span)
	if !ok {
		return LocationJSON{}, false
	}
	return LocationJSON{
		File:      formatPath(fs.Get(span.File).Path, mode, baseDir),
		StartByte: span.Start,
		EndByte:   span.End,
		StartLine: start.Line,
		StartCol:  start.Col,
		EndLine:   end.Line,
		EndCol:    end.Col,
	}, true
}

// BuildResultJSON builds the JSON document without serializing it. fs may
// be nil, in which case no locations are added.
func BuildResultJSON(res *engine.Result, fs *source.FileSet, opts JSONOpts) ResultJSON {
	r := *res
	if opts.OmitAST {
		r.CanonicalAST = nil
	}
	out := ResultJSON{Result: &r}
	if !opts.IncludePositions || fs == nil {
		return out
	}

	locs := make(map[string]LocationJSON)
	add := func(id string, span source.Span) {
		if loc, ok := makeLocation(span, fs, opts.PathMode, opts.BaseDir); ok {
			locs[id] = loc
		}
	}
	for _, d := range r.Diagnostics {
		add(d.ID, d.Span)
	}
	for _, o := range r.Obligations {
		add(o.ID, o.Span)
	}
	for _, h := range r.Holes {
		add(h.ID, h.Span)
	}
	if len(locs) > 0 {
		out.Locations = locs
	}
	return out
}

// JSON writes res as one JSON document followed by a newline.
func JSON(w io.Writer, res *engine.Result, fs *source.FileSet, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	if opts.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(BuildResultJSON(res, fs, opts))
}
