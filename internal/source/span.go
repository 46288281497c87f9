package source

import (
	"fmt"
)

// FileID identifies the originating file of a span. The core never opens files;
// the driver assigns IDs when it loads a tree.
type FileID uint32

type Span struct {
	File  FileID `json:"file" msgpack:"f"`
	Start uint32 `json:"start" msgpack:"s"` // byte offset, inclusive
	End   uint32 `json:"end" msgpack:"e"`   // byte offset, exclusive
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Contains reports whether other lies within s.
func (s Span) Contains(other Span) bool {
	return s.File == other.File && s.Start <= other.Start && other.End <= s.End
}

// Compare orders spans by file, start, then end.
func (s Span) Compare(other Span) int {
	switch {
	case s.File != other.File:
		if s.File < other.File {
			return -1
		}
		return 1
	case s.Start != other.Start:
		if s.Start < other.Start {
			return -1
		}
		return 1
	case s.End != other.End:
		if s.End < other.End {
			return -1
		}
		return 1
	}
	return 0
}

// Point returns an empty span at the start of s.
func (s Span) Point() Span {
	return Span{File: s.File, Start: s.Start, End: s.Start}
}
