package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/taskchain/internal/design"
	"github.com/rendis/taskchain/internal/engine"
	"github.com/rendis/taskchain/pkg/schema"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "taskchain version dev\n", out)
}

func TestValidateCommand(t *testing.T) {
	good := writeDoc(t, "good.yaml", "name: good\nbody: { invoke: noop }\n")
	bad := writeDoc(t, "bad.yaml", "name: bad\nbody: { invoke: noop, sync: { listen: x } }\n")

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "good.yaml: ok")

	out, err = execute(t, "validate", good, bad)
	require.Error(t, err)
	assert.Contains(t, out, "bad.yaml: /body")
	assert.Contains(t, err.Error(), "1 of 2 documents are invalid")
}

func TestGraphCommand(t *testing.T) {
	doc := writeDoc(t, "p.yaml", `
name: p
body:
  sequence:
    - invoke: custom_stage
    - invoke: "sleep:1ms"
`)

	out, err := execute(t, "graph", doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD"))
	assert.Contains(t, out, `custom_stage["custom_stage"]`)

	out, err = execute(t, "graph", "--format", "ascii", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "└── 2: sleep [invoke]")

	_, err = execute(t, "graph", "--format", "svg", doc)
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	doc := writeDoc(t, "p.yaml", `
name: counted
body:
  concurrency:
    - invoke: noop
    - invoke: "sleep:1ms"
`)

	out, err := execute(t, "run", "-n", "3", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "counted")
	assert.Contains(t, out, "iterations=3 succeeded=3 shutdown=ok")
}

func TestRunCommand_FailuresExitNonZero(t *testing.T) {
	doc := writeDoc(t, "p.yaml", "name: broken\nbody: { invoke: \"fail:boom\" }\n")

	out, err := execute(t, "run", "-n", "2", doc)
	require.Error(t, err)
	assert.Contains(t, out, "iterations=2 succeeded=0")
	assert.Contains(t, out, "iteration 1:")
	assert.True(t, schema.IsCode(err, schema.ErrCodeUser))
}

func TestRunDocuments_Pipeline(t *testing.T) {
	s := defaultSettings()
	s.Timeout = 10 * time.Second

	var docs []*schema.ProgramDocument
	for _, src := range pipelineDemo {
		doc, err := design.Parse([]byte(src))
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	catalog, err := demoCatalog(nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runDocuments(context.Background(), &out, s, nil, catalog, docs, 2))
	for _, name := range []string{"clock", "camera", "detection"} {
		assert.Contains(t, out.String(), name)
	}
	assert.Equal(t, 3, strings.Count(out.String(), "shutdown=ok"))
}

func TestRunDocuments_BasicDemo(t *testing.T) {
	doc, err := design.Parse([]byte(basicDemo))
	require.NoError(t, err)
	catalog, err := demoCatalog(nil)
	require.NoError(t, err)

	var out bytes.Buffer
	err = runDocuments(context.Background(), &out, defaultSettings(), nil, catalog, []*schema.ProgramDocument{doc}, 2)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "iterations=2 succeeded=2")
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := engine.NewMetrics(reg)
	require.NoError(t, err)
	m.RunFinished("smoke", nil, nil)

	srv := httptest.NewServer(newMetricsHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `taskchain_runs_total{program="smoke",result="success"} 1`)
}
