package ast

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Current snapshot schema - increment when the Node layout changes
const snapshotSchema uint16 = 1

type snapshot struct {
	Schema uint16 `json:"schema" msgpack:"schema"`
	Seed   uint64 `json:"seed" msgpack:"seed"`
	Root   NodeID `json:"root" msgpack:"root"`
	Nodes  []Node `json:"nodes" msgpack:"nodes"`
}

func snapshotOf(t *Tree) snapshot {
	order := t.PreOrder()
	snap := snapshot{
		Schema: snapshotSchema,
		Seed:   t.seed,
		Root:   t.root,
		Nodes:  make([]Node, 0, len(order)),
	}
	for _, id := range order {
		snap.Nodes = append(snap.Nodes, *t.Node(id))
	}
	return snap
}

func (snap snapshot) tree() (*Tree, error) {
	if snap.Schema != snapshotSchema {
		return nil, fmt.Errorf("decode ast: schema %d, want %d", snap.Schema, snapshotSchema)
	}
	t := newTree(snap.Seed, uint(len(snap.Nodes)))
	for _, n := range snap.Nodes {
		if err := t.Add(n); err != nil {
			return nil, err
		}
	}
	t.root = snap.Root
	if err := Validate(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Encode serializes the reachable part of t in pre-order with msgpack.
func Encode(t *Tree) ([]byte, error) {
	snap := snapshotOf(t)
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(&snap); err != nil {
		return nil, fmt.Errorf("encode ast: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode restores a tree written by Encode and validates it.
func Decode(data []byte) (*Tree, error) {
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode ast: %w", err)
	}
	return snap.tree()
}

// MarshalJSON writes the same snapshot as Encode in JSON form.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotOf(t))
}

// UnmarshalJSON restores a tree written by MarshalJSON and validates it.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode ast: %w", err)
	}
	out, err := snap.tree()
	if err != nil {
		return err
	}
	*t = *out
	return nil
}

// Fingerprint is a content hash of the encoded tree; equal trees have equal
// fingerprints.
func Fingerprint(t *Tree) (uint64, error) {
	data, err := Encode(t)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
