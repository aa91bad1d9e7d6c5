package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/steptrace/internal/export"
	"github.com/kalambet/steptrace/internal/model"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"No episode.","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// use points the commands at ts for the duration of the test.
func (ts *testServer) use(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

var ctx = context.Background()

const recordingJSON = `{"isRecording":true,"episodeId":"ep-1","startedAt":"2026-04-01T09:00:00Z","stepCount":0,"lastMessage":"Recording started.","options":{"captureScreenshots":false,"captureDomState":true}}`

func TestStartCommand_Options(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /recording/start": recordingJSON,
	})
	ts.use(t)

	if err := execute(t, "start", "--screenshots=false"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/recording/start" {
		t.Errorf("request = %s %s, want POST /recording/start", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["captureScreenshots"] != false {
		t.Errorf("body.captureScreenshots = %v, want false", body["captureScreenshots"])
	}
	if _, ok := body["captureDomState"]; ok {
		t.Errorf("body carries captureDomState although the flag was not given: %s", r.Body)
	}
}

func TestStartCommand_NoFlagsSendsNoBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /recording/start": recordingJSON,
	})
	ts.use(t)

	if err := execute(t, "start"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Body != "" {
		t.Errorf("body = %q, want empty", ts.requests[0].Body)
	}
}

func TestStopCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /recording/stop": `{"isRecording":false,"episodeId":"ep-1","stepCount":3,"lastMessage":"Recording stopped.","options":{"captureScreenshots":true,"captureDomState":true}}`,
	})
	ts.use(t)

	if err := execute(t, "stop"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/recording/stop" {
		t.Fatalf("requests = %+v, want one POST /recording/stop", ts.requests)
	}
}

func TestClearCommand_RequiresConfirm(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.use(t)

	if err := execute(t, "clear"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 0 {
		t.Errorf("clear without --confirm sent %d requests", len(ts.requests))
	}
}

func TestClearCommand_Confirm(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /recording/clear": `{"isRecording":false,"episodeId":null,"stepCount":0,"lastMessage":"Cleared.","options":{"captureScreenshots":true,"captureDomState":true}}`,
	})
	ts.use(t)

	if err := execute(t, "clear", "--confirm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/recording/clear" {
		t.Fatalf("requests = %+v, want one POST /recording/clear", ts.requests)
	}
}

func TestOptionsSet_RequiresFlag(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.use(t)

	err := execute(t, "options", "set")
	if err == nil {
		t.Fatal("expected error without flags")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
	if len(ts.requests) != 0 {
		t.Errorf("sent %d requests, want none", len(ts.requests))
	}
}

func TestOptionsSet(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /options": `{"isRecording":false,"stepCount":0,"lastMessage":"Options updated.","options":{"captureScreenshots":true,"captureDomState":false}}`,
	})
	ts.use(t)

	if err := execute(t, "options", "set", "--dom-state=false"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "PATCH" || r.Path != "/options" {
		t.Errorf("request = %s %s, want PATCH /options", r.Method, r.Path)
	}
	if r.Body != `{"captureDomState":false}` {
		t.Errorf("body = %s", r.Body)
	}
}

func episodeJSON(t *testing.T) string {
	t.Helper()
	ep := export.New(model.Episode{
		EpisodeID: "ep-1",
		CreatedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}, []model.Step{
		{StepID: "s0", StepNumber: 0, Action: model.Action{Type: model.ActionScroll, DY: 400}},
		{StepID: "s1", StepNumber: 1, Action: model.Action{Type: model.ActionKey, Keys: "Enter"}},
	})
	var buf bytes.Buffer
	if err := export.Encode(&buf, ep); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestExportCommand_WritesFile(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /export": episodeJSON(t),
	})
	ts.use(t)
	dir := t.TempDir()

	if err := execute(t, "export", "--dir", dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Path != "/export?download=1" {
		t.Errorf("path = %q, want /export?download=1", ts.requests[0].Path)
	}

	got, err := export.ReadFile(filepath.Join(dir, "episode_ep-1.json"))
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(got.Steps))
	}
	if got.Steps[0].Action.DY != 400 || got.Steps[1].Action.Keys != "Enter" {
		t.Errorf("steps = %+v", got.Steps)
	}
}

func TestExportCommand_NoEpisode(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.use(t)

	err := execute(t, "export", "--dir", t.TempDir())
	if err == nil {
		t.Fatal("expected error when there is no episode")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "No episode.") {
		t.Errorf("error = %q, want status and server message", err.Error())
	}
}

func TestFetchSettings(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /status": recordingJSON,
	})

	st, err := fetchSettings(ctx, ts.client())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.IsRecording || st.ActiveEpisode() != "ep-1" {
		t.Errorf("settings = %+v", st)
	}
	if st.Options.CaptureScreenshots || !st.Options.CaptureDOMState {
		t.Errorf("options = %+v", st.Options)
	}
}

func TestClientServerDown(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()
	ts.server.Close()

	_, err := client.get(ctx, "/status")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "nested"))

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removing PID file")
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := logLevel(in); got != want {
			t.Errorf("logLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestScanPage(t *testing.T) {
	page := `<html><body>
		<input name="passcode" value="hunter2secret" style="left:10px;top:10px;width:200px;height:24px">
		<input name="tax_ssn" value="123-45-6789" style="left:10px;top:40px;width:200px;height:24px">
		<a href="/help" style="left:10px;top:70px;width:60px;height:20px">Help</a>
	</body></html>`

	var out bytes.Buffer
	err := scanPage(&out, strings.NewReader(page), scanOptions{
		URL:            "https://shop.test/login",
		Limit:          10,
		SensitiveNames: []string{"ssn"},
	})
	if err != nil {
		t.Fatalf("scanPage: %v", err)
	}
	if want := "[1] input\n[2] input\n[3] Help\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestScanPage_JSON(t *testing.T) {
	var out bytes.Buffer
	err := scanPage(&out, strings.NewReader(`<body><button style="left:0;top:0;width:40px;height:20px">Go</button></body>`), scanOptions{JSON: true})
	if err != nil {
		t.Fatalf("scanPage: %v", err)
	}
	var state model.DOMState
	if err := json.Unmarshal(out.Bytes(), &state); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if state.ElementsCount != 1 || state.SelectorMap["1"].Label != "Go" {
		t.Errorf("state = %+v", state)
	}
}
