package main

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thavlik/tsmeta/directory"
	"github.com/thavlik/tsmeta/display"
	"github.com/thavlik/tsmeta/session"
	"github.com/thavlik/tsmeta/structure"
)

const sampleTS = "Stoichiometry: A2B2\nAuthor: MultiFOLD2\nMethod: Method text\nScore: 0.9110\nModel: 1"

func newTestServer(t *testing.T) *server {
	color.NoColor = true
	s := &session.Session{
		Directory: directory.New(),
		Workspace: structure.NewWorkspace(),
		Renderer:  display.NewRenderer(ioutil.Discard),
		Log:       zap.NewNop(),
	}
	return newServer(s, zap.NewNop())
}

func do(t *testing.T, s *server, method, url, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	doc := make(map[string]interface{})
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	}
	return w, doc
}

func TestParseAndShow(t *testing.T) {
	s := newTestServer(t)

	w, doc := do(t, s, "POST", "/parse?name=H0232_TS.txt", sampleTS)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "H0232_TS", doc["key"])

	w, doc = do(t, s, "GET", "/show?key=H0232_TS", "")
	require.Equal(t, http.StatusOK, w.Code)
	meta := doc["meta"].(map[string]interface{})
	assert.Equal(t, "A2B2", meta["stoichiometry"])
	assert.Equal(t, "MultiFOLD2", meta["author"])
	assert.Equal(t, "Method text", meta["method"])
	assert.Equal(t, []interface{}{"0.9110"}, meta["scores"])
	assert.Equal(t, float64(1), meta["model_number"])
	assert.Equal(t, "H0232_TS", meta["source_name"])
}

func TestParseErrors(t *testing.T) {
	s := newTestServer(t)

	w, _ := do(t, s, "POST", "/parse?name=empty", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, s, "POST", "/parse", sampleTS)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, s, "GET", "/parse?name=x", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestShowMissing(t *testing.T) {
	s := newTestServer(t)
	w, doc := do(t, s, "GET", "/show?key=nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, doc["error"], "metadata not found")
}

func TestAttach(t *testing.T) {
	s := newTestServer(t)
	w, _ := do(t, s, "POST", "/attach?key=H0232_TS&object=Model_H0232", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	do(t, s, "POST", "/parse?name=H0232_TS", sampleTS)
	w, doc := do(t, s, "POST", "/attach?key=H0232_TS&object=Model_H0232", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Model_H0232", doc["key"])

	w, _ = do(t, s, "GET", "/keys", "")
	require.Equal(t, http.StatusOK, w.Code)
	var keys []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	assert.Equal(t, []string{"H0232_TS", "Model_H0232"}, keys)
}

func TestShowImplicit(t *testing.T) {
	s := newTestServer(t)
	do(t, s, "POST", "/parse?name=H0232_TS", sampleTS)

	w, _ := do(t, s, "GET", "/show", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, s, "POST", "/objects?name=H0232", "")
	require.Equal(t, http.StatusOK, w.Code)
	w, doc := do(t, s, "GET", "/show", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "H0232_TS", doc["key"])

	do(t, s, "POST", "/objects?name=H0233", "")
	w, doc = do(t, s, "GET", "/show", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, []interface{}{"H0232", "H0233"}, doc["open"])
	assert.Equal(t, []interface{}{"H0232"}, doc["cached"])

	w, _ = do(t, s, "GET", "/objects", "")
	require.Equal(t, http.StatusOK, w.Code)
	var objects []*structure.Object
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &objects))
	require.Len(t, objects, 2)
	assert.Equal(t, "H0232", objects[0].Name)
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, "tsmeta", cmd.Use)
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"serve", "parse", "load", "attach", "show", "watch", "configmap"} {
		assert.Contains(t, names, expected)
	}
}
