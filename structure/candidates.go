package structure

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

// IsStructurePath reports whether path names an existing PDB file.
func IsStructurePath(path string) bool {
	lower := strings.ToLower(path)
	if !strings.HasSuffix(lower, ".pdb") && !strings.HasSuffix(lower, ".ent") {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FindTSCandidate looks for the TS file that sits beside a PDB file. It
// tries the usual suffixes on the PDB's base name first, then any .txt or
// .ts file in the same directory whose name contains the base name and
// "TS".
func FindTSCandidate(pdbPath string) (string, bool) {
	base := strings.TrimSuffix(pdbPath, filepath.Ext(pdbPath))
	for _, suffix := range []string{".ts", ".TS", "_TS.txt", "_ts.txt", ".txt"} {
		if isFile(base + suffix) {
			return base + suffix, true
		}
	}
	dir := filepath.Dir(pdbPath)
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return "", false
	}
	stem := filepath.Base(base)
	for _, e := range entries {
		if e.IsDir() || !hasTSExtension(e.Name()) {
			continue
		}
		if strings.Contains(e.Name(), stem) && strings.Contains(strings.ToUpper(e.Name()), "TS") {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// SearchTS looks through dirs for a TS file matching key. A file whose
// base name equals key (ignoring case) is preferred over one whose name
// merely contains it.
func SearchTS(dirs []string, key string) (string, bool) {
	upper := strings.ToUpper(key)
	var partial string
	for _, dir := range dirs {
		entries, err := ioutil.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !hasTSExtension(e.Name()) {
				continue
			}
			name := strings.ToUpper(e.Name())
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			path := filepath.Join(dir, e.Name())
			if stem == upper {
				return path, true
			}
			if partial == "" && strings.Contains(name, upper) {
				partial = path
			}
		}
	}
	return partial, partial != ""
}

func hasTSExtension(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".txt") || strings.HasSuffix(lower, ".ts")
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
