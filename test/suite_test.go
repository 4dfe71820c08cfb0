package test

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Jeffail/tunny"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a live `tsmeta serve`, addressed by TSMETA_SERVER
// (host:port).
func serverAddress(t *testing.T) string {
	addr, ok := os.LookupEnv("TSMETA_SERVER")
	if !ok {
		t.Skip("TSMETA_SERVER not set")
	}
	return addr
}

var cl = http.Client{Timeout: time.Minute}

func post(t *testing.T, addr, path string, query url.Values, body string) (int, []byte) {
	u := fmt.Sprintf("http://%s%s?%s", addr, path, query.Encode())
	resp, err := cl.Post(u, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func get(t *testing.T, addr, path string, query url.Values) (int, []byte) {
	resp, err := cl.Get(fmt.Sprintf("http://%s%s?%s", addr, path, query.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

type showResponse struct {
	Key  string `json:"key"`
	Meta struct {
		SourceName    string   `json:"source_name"`
		Stoichiometry string   `json:"stoichiometry"`
		Author        string   `json:"author"`
		Method        string   `json:"method"`
		Scores        []string `json:"scores"`
		ModelNumber   *int     `json:"model_number"`
	} `json:"meta"`
}

func TestParseThenShow(t *testing.T) {
	addr := serverAddress(t)
	name := fmt.Sprintf("it_%d_TS", time.Now().UnixNano())
	status, body := post(t, addr, "/parse", url.Values{"name": {name}},
		"Stoichiometry: A2B2\nAuthor: MultiFOLD2\nMethod: Method text\nScore: 0.9110\nModel: 1")
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = get(t, addr, "/show", url.Values{"key": {name}})
	require.Equal(t, http.StatusOK, status, string(body))
	resp := &showResponse{}
	require.NoError(t, json.Unmarshal(body, resp))
	assert.Equal(t, name, resp.Meta.SourceName)
	assert.Equal(t, "A2B2", resp.Meta.Stoichiometry)
	assert.Equal(t, []string{"0.9110"}, resp.Meta.Scores)
	require.NotNil(t, resp.Meta.ModelNumber)
	assert.Equal(t, 1, *resp.Meta.ModelNumber)
}

func TestErrEmptyBody(t *testing.T) {
	addr := serverAddress(t)
	status, body := post(t, addr, "/parse", url.Values{"name": {"empty_TS"}}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "unreadable input")
}

func TestErrMissingName(t *testing.T) {
	addr := serverAddress(t)
	status, body := post(t, addr, "/parse", nil, "Author: x")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "missing name")
}

func TestErrAttachUnknownKey(t *testing.T) {
	addr := serverAddress(t)
	status, _ := post(t, addr, "/attach", url.Values{
		"key":    {fmt.Sprintf("missing_%d", time.Now().UnixNano())},
		"object": {"Model_X"},
	}, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestConcurrentParse(t *testing.T) {
	addr := serverAddress(t)
	concurrency := 4
	prefix := fmt.Sprintf("c%d", time.Now().UnixNano())

	var failedL sync.Mutex
	var failed []string
	pool := tunny.NewFunc(concurrency, func(payload interface{}) interface{} {
		i := payload.(int)
		name := fmt.Sprintf("%s_%03d_TS", prefix, i)
		u := fmt.Sprintf("http://%s/parse?%s", addr, url.Values{"name": {name}}.Encode())
		resp, err := cl.Post(u, "text/plain", strings.NewReader(fmt.Sprintf("Model: %d\n", i)))
		if err == nil {
			resp.Body.Close()
		}
		if err != nil || resp.StatusCode != http.StatusOK {
			failedL.Lock()
			failed = append(failed, name)
			failedL.Unlock()
		}
		return nil
	})
	defer pool.Close()

	n := 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pool.Process(i)
		}(i)
	}
	wg.Wait()
	require.Empty(t, failed)

	status, body := get(t, addr, "/keys", nil)
	require.Equal(t, http.StatusOK, status)
	var keys []string
	require.NoError(t, json.Unmarshal(body, &keys))
	count := 0
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			count++
		}
	}
	assert.Equal(t, n, count)
}
