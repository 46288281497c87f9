package diagfmt

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	// PathModeAuto uses the path as given to the FileSet.
	PathModeAuto PathMode = iota
	// PathModeAbsolute always uses absolute paths.
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

// PrettyOpts configures the human-readable report.
type PrettyOpts struct {
	Color    bool
	PathMode PathMode
	// BaseDir is the root for PathModeRelative; empty means the working
	// directory.
	BaseDir string
	Width   int // max message width in columns, 0 - unlimited
	// Repairs lists the repairs referenced by each item.
	Repairs bool
	// Preview shows the lines each listed repair changes. It implies Repairs.
	Preview bool
	// Discharged also lists discharged obligations.
	Discharged bool
	Timings    bool
}

// JSONOpts configures JSON output of pass results.
type JSONOpts struct {
	Indent bool
	// IncludePositions adds a locations table with line/col for every
	// diagnostic, obligation and hole whose span resolves in the FileSet.
	IncludePositions bool
	PathMode         PathMode
	BaseDir          string
	// OmitAST drops canonical_ast from the output.
	OmitAST bool
}
