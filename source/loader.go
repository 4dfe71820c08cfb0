// Package source turns file patterns, paths and cluster ConfigMaps into
// parsed TS records.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Jeffail/tunny"
	"go.uber.org/zap"

	"github.com/thavlik/tsmeta/tsfile"
)

// ErrNoMatch is returned by Expand when a pattern matches nothing.
var ErrNoMatch = errors.New("no files matched pattern")

// Result is the outcome of parsing one file.
type Result struct {
	Path   string
	Record *tsfile.Record
	Err    error
}

// Expand resolves a shell-style pattern (a leading ~ is the home
// directory) to sorted file paths. A pattern that matches nothing but
// names an existing file is returned as is.
func Expand(pattern string) ([]string, error) {
	p := ExpandHome(pattern)
	matches, err := filepath.Glob(p)
	if err != nil {
		return nil, fmt.Errorf("glob '%s': %w", pattern, err)
	}
	if len(matches) == 0 {
		if _, err := os.Stat(p); err == nil {
			return []string{p}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Loader parses TS files on a bounded pool of workers.
type Loader struct {
	pool *tunny.Pool
	log  *zap.Logger
}

// NewLoader starts a Loader with the given number of workers.
func NewLoader(concurrency int, log *zap.Logger) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Loader{
		pool: tunny.NewFunc(concurrency, func(payload interface{}) interface{} {
			path := payload.(string)
			rec, err := tsfile.ReadFile(path)
			return &Result{Path: path, Record: rec, Err: err}
		}),
		log: log,
	}
}

// LoadAll parses every path. Results come back in the order of paths;
// a failure on one file does not stop the others.
func (l *Loader) LoadAll(paths []string) []*Result {
	results := make([]*Result, len(paths))
	done := make(chan struct{}, len(paths))
	for i, path := range paths {
		go func(i int, path string) {
			defer func() { done <- struct{}{} }()
			results[i] = l.pool.Process(path).(*Result)
			if err := results[i].Err; err != nil {
				l.log.Warn("parse failed", zap.String("path", path), zap.Error(err))
			} else {
				l.log.Debug("parsed", zap.String("path", path), zap.String("key", results[i].Record.SourceName))
			}
		}(i, path)
	}
	for range paths {
		<-done
	}
	return results
}

// Close stops the workers.
func (l *Loader) Close() {
	l.pool.Close()
}
