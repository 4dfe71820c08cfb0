// Package directory maps lookup keys to parsed TS records. One record
// may be reachable under several keys: the TS file's own source name and
// the names of structural objects it was attached to.
package directory

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/thavlik/tsmeta/tsfile"
)

var (
	// ErrNotFound is returned by Lookup when no record is bound to a key.
	ErrNotFound = errors.New("metadata not found")

	// ErrKeyNotFound is returned by RegisterAlias when the alias target is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrAmbiguousOrMissing is matched by every ResolveImplicit failure.
	ErrAmbiguousOrMissing = errors.New("could not uniquely resolve metadata")
)

// ResolveError describes why ResolveImplicit could not pick a record.
type ResolveError struct {
	// Open is every object name that was offered.
	Open []string
	// Cached is the subset of Open that has a record.
	Cached []string
}

func (e *ResolveError) Error() string {
	switch len(e.Open) {
	case 0:
		return fmt.Sprintf("%v: no open objects", ErrAmbiguousOrMissing)
	case 1:
		return fmt.Sprintf("%v: no metadata for '%s'", ErrAmbiguousOrMissing, e.Open[0])
	}
	return fmt.Sprintf("%v: %d open objects %v", ErrAmbiguousOrMissing, len(e.Open), e.Open)
}

// Is lets errors.Is match ErrAmbiguousOrMissing.
func (e *ResolveError) Is(target error) bool {
	return target == ErrAmbiguousOrMissing
}

// NoCandidates reports whether nothing was open.
func (e *ResolveError) NoCandidates() bool { return len(e.Open) == 0 }

// MultipleCandidates reports whether more than one object was open.
func (e *ResolveError) MultipleCandidates() bool { return len(e.Open) > 1 }

// Directory is an in-memory record store. Registering an existing key
// replaces its record; nothing is ever merged or deleted.
type Directory struct {
	records  map[string]*tsfile.Record
	recordsL sync.Mutex
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{records: make(map[string]*tsfile.Record)}
}

// Register binds key to rec, replacing any previous binding.
func (d *Directory) Register(key string, rec *tsfile.Record) {
	d.recordsL.Lock()
	defer d.recordsL.Unlock()
	d.records[key] = rec
}

// RegisterAlias binds alias to the record already bound to existing.
func (d *Directory) RegisterAlias(existing, alias string) error {
	d.recordsL.Lock()
	defer d.recordsL.Unlock()
	rec, ok := d.records[existing]
	if !ok {
		return fmt.Errorf("alias '%s': %w: '%s'", alias, ErrKeyNotFound, existing)
	}
	d.records[alias] = rec
	return nil
}

// Lookup returns the record bound to key.
func (d *Directory) Lookup(key string) (*tsfile.Record, error) {
	d.recordsL.Lock()
	defer d.recordsL.Unlock()
	rec, ok := d.records[key]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, key)
	}
	return rec, nil
}

// ResolveImplicit picks a record when the caller gave no key. It only
// succeeds when exactly one object is open and that object, or a key
// derived from its name, has a record. The returned string is the key
// that matched.
func (d *Directory) ResolveImplicit(open []string) (string, *tsfile.Record, error) {
	names := dedupe(open)
	d.recordsL.Lock()
	defer d.recordsL.Unlock()
	if len(names) == 1 {
		for _, key := range DerivedKeys(names[0]) {
			if rec, ok := d.records[key]; ok {
				return key, rec, nil
			}
		}
	}
	return "", nil, &ResolveError{Open: names, Cached: d.cachedLocked(names)}
}

// Keys returns every bound key in sorted order.
func (d *Directory) Keys() []string {
	d.recordsL.Lock()
	defer d.recordsL.Unlock()
	keys := make([]string, 0, len(d.records))
	for k := range d.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of bound keys.
func (d *Directory) Len() int {
	d.recordsL.Lock()
	defer d.recordsL.Unlock()
	return len(d.records)
}

func (d *Directory) cachedLocked(names []string) []string {
	var cached []string
	for _, name := range names {
		for _, key := range DerivedKeys(name) {
			if _, ok := d.records[key]; ok {
				cached = append(cached, name)
				break
			}
		}
	}
	return cached
}

// DerivedKeys lists the keys an object name may be registered under, in
// lookup order: the name itself, the name without a file extension, and
// the name with a "_TS" suffix.
func DerivedKeys(name string) []string {
	keys := []string{name}
	if ext := filepath.Ext(name); ext != "" {
		keys = append(keys, strings.TrimSuffix(name, ext))
	}
	return append(keys, name+"_TS")
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
