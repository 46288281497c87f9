package source

// FileFlags encodes metadata about a loaded source file.
type FileFlags uint8

const (
	// FileVirtual marks a file added from memory (stdin, tests).
	FileVirtual FileFlags = 1 << iota
	FileHadBOM
	FileNormalizedCRLF
)

// File is the text a tree's spans point into. The engine never reads it;
// renderers use it to turn spans into lines and columns.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32 // offsets of '\n'
	Flags   FileFlags
}

// LineCol is a 1-based position. Col counts bytes.
type LineCol struct {
	Line uint32
	Col  uint32
}
