// Package structure tracks the structural models that are currently open
// and locates the TS files that belong to them.
package structure

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fogleman/ribbon/pdb"
)

var (
	// ErrObjectNotFound is returned when no open object matches an identifier.
	ErrObjectNotFound = errors.New("object not found")

	// ErrAmbiguousObject is returned when an identifier matches several open objects.
	ErrAmbiguousObject = errors.New("ambiguous object identifier")

	// ErrMalformedPDB is returned when a structure file cannot be read as PDB.
	ErrMalformedPDB = errors.New("malformed pdb")
)

// The pdb reader slices fixed columns up to 80 without checking line length.
const pdbLineWidth = 80

// Object is one open structural model.
type Object struct {
	Name   string   `json:"name"`
	Path   string   `json:"path,omitempty"`
	Models int      `json:"models"`
	Atoms  int      `json:"atoms"`
	Chains []string `json:"chains,omitempty"`
}

// Workspace is the set of open objects, keyed by object name.
type Workspace struct {
	objects  map[string]*Object
	objectsL sync.Mutex
}

// NewWorkspace returns a Workspace with nothing open.
func NewWorkspace() *Workspace {
	return &Workspace{objects: make(map[string]*Object)}
}

// Load reads a PDB file and opens it under name. An empty name defaults
// to the file's base name without extension.
func (w *Workspace) Load(path, name string) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	models, err := readModels(f)
	if err != nil {
		return nil, fmt.Errorf("pdb %s: %w", path, err)
	}
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	obj := &Object{
		Name:   name,
		Path:   path,
		Models: len(models),
	}
	chains := make(map[string]struct{})
	for _, m := range models {
		obj.Atoms += len(m.Atoms)
		for _, a := range m.Atoms {
			chains[a.ChainID] = struct{}{}
		}
	}
	for c := range chains {
		obj.Chains = append(obj.Chains, c)
	}
	sort.Strings(obj.Chains)
	w.put(obj)
	return obj, nil
}

// readModels pads every line to full PDB width before handing it to the
// pdb reader. Truncated coordinate lines, common in CASP models, are valid.
func readModels(r io.Reader) (models []*pdb.Model, err error) {
	var buf bytes.Buffer
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		buf.WriteString(line)
		if n := len(line); n < pdbLineWidth {
			buf.WriteString(strings.Repeat(" ", pdbLineWidth-n))
		}
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPDB, err)
	}
	defer func() {
		if p := recover(); p != nil {
			models, err = nil, fmt.Errorf("%w: %v", ErrMalformedPDB, p)
		}
	}()
	return pdb.NewReader(&buf).ReadAll()
}

// Open declares an object that is already loaded elsewhere, such as in a
// viewer that reports its object names.
func (w *Workspace) Open(name string) *Object {
	obj := &Object{Name: name}
	w.put(obj)
	return obj
}

func (w *Workspace) put(obj *Object) {
	w.objectsL.Lock()
	defer w.objectsL.Unlock()
	w.objects[obj.Name] = obj
}

// Get returns the object open under exactly name.
func (w *Workspace) Get(name string) (*Object, bool) {
	w.objectsL.Lock()
	defer w.objectsL.Unlock()
	obj, ok := w.objects[name]
	return obj, ok
}

// Names lists open object names in sorted order.
func (w *Workspace) Names() []string {
	w.objectsL.Lock()
	defer w.objectsL.Unlock()
	names := make([]string, 0, len(w.objects))
	for n := range w.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve maps an identifier to an open object name. An exact name wins;
// otherwise the identifier must be a substring of exactly one name.
func (w *Workspace) Resolve(identifier string) (string, error) {
	names := w.Names()
	var matches []string
	for _, n := range names {
		if n == identifier {
			return n, nil
		}
		if strings.Contains(n, identifier) {
			matches = append(matches, n)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("%w: '%s', options are %v", ErrObjectNotFound, identifier, names)
	}
	return "", fmt.Errorf("%w: '%s' matches %v", ErrAmbiguousObject, identifier, matches)
}
