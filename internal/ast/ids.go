package ast

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NodeID is the stable identity of a node within a compilation session.
// It is derived from the session seed and the node's structural position
// when the node is first created, and is stored in the node afterwards.
type NodeID uint64

const NoNodeID NodeID = 0

func (id NodeID) IsValid() bool { return id != NoNodeID }

func (id NodeID) String() string {
	return fmt.Sprintf("n%016x", uint64(id))
}

// MarshalText renders the ID in its "n<hex>" form.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the "n<hex>" form produced by MarshalText.
func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseNodeID parses an ID in "n<hex>" form. The empty string yields NoNodeID.
func ParseNodeID(s string) (NodeID, error) {
	if s == "" {
		return NoNodeID, nil
	}
	if !strings.HasPrefix(s, "n") {
		return NoNodeID, fmt.Errorf("invalid node id %q: missing n prefix", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 64)
	if err != nil {
		return NoNodeID, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return NodeID(v), nil
}

// DeriveID computes the ID of a node created under parent in the given role
// slot. The result is a pure function of its inputs.
func DeriveID(seed uint64, parent NodeID, role string, index int) NodeID {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(parent))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(index))
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(role)
	id := NodeID(d.Sum64())
	if id == NoNodeID {
		id = 1
	}
	return id
}
