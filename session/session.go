// Package session implements the TS helper commands on top of the record
// parser and the metadata directory: parse files, load or attach
// structures, and show metadata for a key or for the only open object.
package session

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thavlik/tsmeta/directory"
	"github.com/thavlik/tsmeta/display"
	"github.com/thavlik/tsmeta/source"
	"github.com/thavlik/tsmeta/structure"
	"github.com/thavlik/tsmeta/tsfile"
)

var (
	// ErrNoMetadata is returned by ShowTSInfo when nothing is cached and no
	// TS file could be found for the key.
	ErrNoMetadata = errors.New("no metadata")

	// ErrNotFound is returned when a path or object argument names nothing.
	ErrNotFound = errors.New("neither file nor open object found")
)

// Publisher announces registered records to other processes.
type Publisher interface {
	Publish(key, correlationID string, rec *tsfile.Record) error
}

// Session owns the state of one host process.
type Session struct {
	Directory  *directory.Directory
	Workspace  *structure.Workspace
	Renderer   *display.Renderer
	Publisher  Publisher
	Loader     *source.Loader
	SearchDirs []string
	Log        *zap.Logger
}

// Parsed is one file handled by ParseTS.
type Parsed struct {
	Key    string         `json:"key"`
	Path   string         `json:"ts"`
	Record *tsfile.Record `json:"meta"`
}

// Loaded is the outcome of LoadModelWithTS.
type Loaded struct {
	Object string         `json:"object"`
	TSPath string         `json:"ts,omitempty"`
	Record *tsfile.Record `json:"meta,omitempty"`
}

// ParseTS parses every file matching pattern and registers each record
// under its source name. Files that fail to parse are logged and skipped.
func (s *Session) ParseTS(pattern string) ([]*Parsed, error) {
	paths, err := source.Expand(pattern)
	if err != nil {
		return nil, err
	}
	return s.RegisterResults(s.Loader.LoadAll(paths)), nil
}

// ParseContent parses TS text held in memory, such as an uploaded body,
// and registers the record under the source name derived from name.
func (s *Session) ParseContent(name string, content []byte, correlationID string) (*tsfile.Record, error) {
	rec, err := tsfile.ParseString(string(content), tsfile.SourceName(name))
	if err != nil {
		return nil, err
	}
	s.register(rec.SourceName, rec, correlationID)
	return rec, nil
}

// RegisterResults registers and announces every successful result.
func (s *Session) RegisterResults(results []*source.Result) []*Parsed {
	correlationID := uuid.New().String()
	var parsed []*Parsed
	for _, r := range results {
		if r.Err != nil {
			s.Log.Warn("skipping TS file", zap.String("path", r.Path), zap.Error(r.Err))
			continue
		}
		key := r.Record.SourceName
		s.register(key, r.Record, correlationID)
		s.Renderer.Render(key, r.Record)
		parsed = append(parsed, &Parsed{Key: key, Path: r.Path, Record: r.Record})
	}
	return parsed
}

// LoadModelWithTS opens a PDB file, or picks an already open object, and
// attaches its TS metadata. tsPath may be empty; for a PDB path the TS
// file is then looked for beside it. A missing TS file is not an error:
// the returned Loaded has no Record.
func (s *Session) LoadModelWithTS(pdbOrObject, tsPath string) (*Loaded, error) {
	var (
		objName string
		pdbPath string
	)
	if p := source.ExpandHome(pdbOrObject); structure.IsStructurePath(p) {
		obj, err := s.Workspace.Load(p, "")
		if err != nil {
			return nil, err
		}
		objName, pdbPath = obj.Name, p
		s.Log.Info("loaded structure",
			zap.String("object", obj.Name),
			zap.String("path", p),
			zap.Int("atoms", obj.Atoms),
			zap.Strings("chains", obj.Chains))
	} else {
		name, err := s.Workspace.Resolve(pdbOrObject)
		if err != nil {
			return nil, fmt.Errorf("%w: '%s': %v", ErrNotFound, pdbOrObject, err)
		}
		objName = name
	}

	if tsPath != "" {
		tsPath = source.ExpandHome(tsPath)
		if !fileExists(tsPath) {
			s.Renderer.Message("load_model_with_ts: provided TS not found: %s", tsPath)
			tsPath = ""
		}
	}
	if tsPath == "" && pdbPath != "" {
		tsPath, _ = structure.FindTSCandidate(pdbPath)
	}

	loaded := &Loaded{Object: objName, TSPath: tsPath}
	if tsPath == "" {
		s.Renderer.Message("TS file: not found (searched common candidates).")
		s.Renderer.Render(objName, nil)
		return loaded, nil
	}
	rec, err := s.attach(tsPath, objName)
	if err != nil {
		return nil, err
	}
	loaded.Record = rec
	s.Renderer.Message("TS used: %s", tsPath)
	s.Renderer.Render(objName, rec)
	return loaded, nil
}

// AttachTS parses tsPath and makes its record reachable under the open
// object matching objectIdentifier as well as under its own source name.
func (s *Session) AttachTS(tsPath, objectIdentifier string) (string, *tsfile.Record, error) {
	tsPath = source.ExpandHome(tsPath)
	if !fileExists(tsPath) {
		return "", nil, fmt.Errorf("%w: TS file '%s'", ErrNotFound, tsPath)
	}
	objName, err := s.Workspace.Resolve(objectIdentifier)
	if err != nil {
		return "", nil, err
	}
	rec, err := s.attach(tsPath, objName)
	if err != nil {
		return "", nil, err
	}
	s.Renderer.Message("attach_ts: attached metadata from %s to object %s", tsPath, objName)
	s.Renderer.Render(objName, rec)
	return objName, rec, nil
}

func (s *Session) attach(tsPath, objName string) (*tsfile.Record, error) {
	rec, err := tsfile.ReadFile(tsPath)
	if err != nil {
		return nil, err
	}
	correlationID := uuid.New().String()
	s.register(rec.SourceName, rec, correlationID)
	if objName != rec.SourceName {
		if err := s.Directory.RegisterAlias(rec.SourceName, objName); err != nil {
			return nil, err
		}
		s.publish(objName, rec, correlationID)
	}
	return rec, nil
}

// ShowTSInfo renders the metadata for key. With an empty key the only
// open object is used. When nothing is cached, tsPath is parsed if given,
// otherwise the search directories are scanned for a matching TS file.
func (s *Session) ShowTSInfo(key, tsPath string) (string, *tsfile.Record, error) {
	if key == "" {
		open := s.Workspace.Names()
		k, rec, err := s.Directory.ResolveImplicit(open)
		if err == nil {
			s.Renderer.Render(k, rec)
			return k, rec, nil
		}
		var re *directory.ResolveError
		if !errors.As(err, &re) || len(re.Open) != 1 {
			return "", nil, err
		}
		key = re.Open[0]
		s.Renderer.Message("show_ts_info: one object open, using: %s", key)
	}

	if rec, err := s.Directory.Lookup(key); err == nil {
		s.Renderer.Render(key, rec)
		return key, rec, nil
	} else if !errors.Is(err, directory.ErrNotFound) {
		return "", nil, err
	}

	if tsPath == "" {
		var ok bool
		if tsPath, ok = s.searchTS(key); !ok {
			return "", nil, fmt.Errorf("%w for '%s' and no TS file found", ErrNoMetadata, key)
		}
	}
	tsPath = source.ExpandHome(tsPath)
	rec, err := tsfile.ReadFile(tsPath)
	if err != nil {
		return "", nil, err
	}
	s.register(key, rec, uuid.New().String())
	s.Renderer.Message("show_ts_info: parsed and cached TS from: %s -> key: %s", tsPath, key)
	s.Renderer.Render(key, rec)
	return key, rec, nil
}

func (s *Session) searchTS(key string) (string, bool) {
	dirs := make([]string, len(s.SearchDirs))
	for i, d := range s.SearchDirs {
		dirs[i] = source.ExpandHome(d)
	}
	return structure.SearchTS(dirs, key)
}

func (s *Session) register(key string, rec *tsfile.Record, correlationID string) {
	s.Directory.Register(key, rec)
	s.Log.Debug("registered",
		zap.String("key", key),
		zap.String("correlation_id", correlationID))
	s.publish(key, rec, correlationID)
}

func (s *Session) publish(key string, rec *tsfile.Record, correlationID string) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(key, correlationID, rec); err != nil {
		s.Log.Warn("publish failed", zap.String("key", key), zap.Error(err))
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
