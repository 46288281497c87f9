package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"refine/internal/ast"
)

// Programs are read from three encodings:
//
//	*.msgpack, *.mp   a tree snapshot written by ast.Encode
//	JSON with "nodes" a tree snapshot as written by `refine canon -o x.json`
//	other JSON        an ast.Fragment, built with --seed
func isMsgpack(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp":
		return true
	}
	return false
}

// readProgram loads a tree from path, or from stdin when path is "-".
func readProgram(path string, stdin io.Reader, seed uint64) (*ast.Tree, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		// #nosec G304 -- path is provided by the user
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return decodeProgram(path, data, seed)
}

func decodeProgram(path string, data []byte, seed uint64) (*ast.Tree, error) {
	if isMsgpack(path) {
		t, err := ast.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return t, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, ok := probe["nodes"]; ok {
		t := new(ast.Tree)
		if err := json.Unmarshal(data, t); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return t, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var frag ast.Fragment
	if err := dec.Decode(&frag); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t, err := ast.Build(seed, &frag)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// writeTree stores t at path in the encoding its extension names; "-" and
// JSON paths get an indented JSON snapshot.
func writeTree(path string, stdout io.Writer, t *ast.Tree) error {
	var (
		data []byte
		err  error
	)
	if isMsgpack(path) {
		data, err = ast.Encode(t)
	} else {
		data, err = json.MarshalIndent(t, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
