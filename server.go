package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thavlik/tsmeta/directory"
	"github.com/thavlik/tsmeta/session"
	"github.com/thavlik/tsmeta/structure"
	"github.com/thavlik/tsmeta/tsfile"
)

type server struct {
	session  *session.Session
	handler  *http.ServeMux
	log      *zap.Logger
	maxBytes int64
}

func newServer(s *session.Session, log *zap.Logger) *server {
	srv := &server{
		session:  s,
		handler:  http.NewServeMux(),
		log:      log,
		maxBytes: 16 * 1024 * 1024,
	}
	srv.buildRoutes()
	return srv
}

type showResponse struct {
	Key    string         `json:"key"`
	Record *tsfile.Record `json:"meta"`
}

type errorResponse struct {
	Error  string   `json:"error"`
	Open   []string `json:"open,omitempty"`
	Cached []string `json:"cached,omitempty"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

// wrap assigns a correlation ID and turns a handler error into a JSON body.
func (s *server) wrap(f func(w http.ResponseWriter, r *http.Request, correlationID string) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := uuid.New().String()
		w.Header().Set("X-Correlation-ID", correlationID)
		if statusCode, err := f(w, r, correlationID); err != nil {
			s.log.Info("request failed",
				zap.String("uri", r.RequestURI),
				zap.String("correlation_id", correlationID),
				zap.Int("status", statusCode),
				zap.Error(err))
			resp := &errorResponse{Error: err.Error()}
			var re *directory.ResolveError
			if errors.As(err, &re) {
				resp.Open, resp.Cached = re.Open, re.Cached
			}
			s.writeJSON(w, statusCode, resp)
		}
	}
}

func (s *server) handleParse() http.HandlerFunc {
	return s.wrap(func(w http.ResponseWriter, r *http.Request, correlationID string) (int, error) {
		if r.Method != http.MethodPost {
			return http.StatusMethodNotAllowed, fmt.Errorf("expected POST, got %s", r.Method)
		}
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			return http.StatusBadRequest, fmt.Errorf("missing name")
		}
		body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBytes))
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("body: %v", err)
		}
		rec, err := s.session.ParseContent(name, body, correlationID)
		if err != nil {
			return http.StatusBadRequest, err
		}
		s.log.Info("parsed TS",
			zap.String("key", rec.SourceName),
			zap.String("correlation_id", correlationID))
		s.writeJSON(w, http.StatusOK, &showResponse{Key: rec.SourceName, Record: rec})
		return 0, nil
	})
}

func (s *server) handleAttach() http.HandlerFunc {
	return s.wrap(func(w http.ResponseWriter, r *http.Request, correlationID string) (int, error) {
		if r.Method != http.MethodPost {
			return http.StatusMethodNotAllowed, fmt.Errorf("expected POST, got %s", r.Method)
		}
		key := r.URL.Query().Get("key")
		object := r.URL.Query().Get("object")
		if key == "" || object == "" {
			return http.StatusBadRequest, fmt.Errorf("missing key or object")
		}
		if err := s.session.Directory.RegisterAlias(key, object); err != nil {
			if errors.Is(err, directory.ErrKeyNotFound) {
				return http.StatusNotFound, err
			}
			return http.StatusInternalServerError, err
		}
		rec, err := s.session.Directory.Lookup(object)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		s.writeJSON(w, http.StatusOK, &showResponse{Key: object, Record: rec})
		return 0, nil
	})
}

func (s *server) handleShow() http.HandlerFunc {
	return s.wrap(func(w http.ResponseWriter, r *http.Request, correlationID string) (int, error) {
		key := r.URL.Query().Get("key")
		var (
			rec *tsfile.Record
			err error
		)
		if key != "" {
			rec, err = s.session.Directory.Lookup(key)
		} else {
			key, rec, err = s.session.Directory.ResolveImplicit(s.session.Workspace.Names())
		}
		switch {
		case errors.Is(err, directory.ErrNotFound):
			return http.StatusNotFound, err
		case errors.Is(err, directory.ErrAmbiguousOrMissing):
			return http.StatusConflict, err
		case err != nil:
			return http.StatusInternalServerError, err
		}
		s.writeJSON(w, http.StatusOK, &showResponse{Key: key, Record: rec})
		return 0, nil
	})
}

func (s *server) handleObjects() http.HandlerFunc {
	return s.wrap(func(w http.ResponseWriter, r *http.Request, correlationID string) (int, error) {
		switch r.Method {
		case http.MethodGet:
			objects := []*structure.Object{}
			for _, n := range s.session.Workspace.Names() {
				if obj, ok := s.session.Workspace.Get(n); ok {
					objects = append(objects, obj)
				}
			}
			s.writeJSON(w, http.StatusOK, objects)
		case http.MethodPost:
			name := strings.TrimSpace(r.URL.Query().Get("name"))
			if name == "" {
				return http.StatusBadRequest, fmt.Errorf("missing name")
			}
			s.writeJSON(w, http.StatusOK, s.session.Workspace.Open(name))
		default:
			return http.StatusMethodNotAllowed, fmt.Errorf("unsupported method %s", r.Method)
		}
		return 0, nil
	})
}

func (s *server) handleKeys() http.HandlerFunc {
	return s.wrap(func(w http.ResponseWriter, r *http.Request, correlationID string) (int, error) {
		s.writeJSON(w, http.StatusOK, s.session.Directory.Keys())
		return 0, nil
	})
}

func (s *server) buildRoutes() {
	s.handler.HandleFunc("/parse", s.handleParse())
	s.handler.HandleFunc("/attach", s.handleAttach())
	s.handler.HandleFunc("/show", s.handleShow())
	s.handler.HandleFunc("/objects", s.handleObjects())
	s.handler.HandleFunc("/keys", s.handleKeys())
}

func (s *server) listen(port int) error {
	s.log.Info("listening", zap.Int("port", port))
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), s.handler); err != nil {
		return fmt.Errorf("ListenAndServe: %v", err)
	}
	return nil
}
