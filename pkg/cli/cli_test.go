package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psaab/gwcli/pkg/gateway"
	"github.com/psaab/gwcli/pkg/gateway/gatewaytest"
	"github.com/psaab/gwcli/pkg/logging"
	"github.com/psaab/gwcli/pkg/output"
	"github.com/psaab/gwcli/pkg/session"
	"github.com/psaab/gwcli/pkg/shell"
)

type harness struct {
	srv  *gatewaytest.Server
	sess *session.Session
	rt   *shell.Runtime
	root *shell.Shell
	log  *bytes.Buffer
}

// newHarness builds a root shell talking to a fake gateway. input is what
// the shell (and any login prompt) reads unless opts carries a reader.
func newHarness(t *testing.T, opts shell.Options, input ...string) *harness {
	t.Helper()
	h := &harness{
		srv:  gatewaytest.New(t),
		sess: session.New(filepath.Join(t.TempDir(), "session.json")),
		log:  &bytes.Buffer{},
	}
	h.srv.AddUser("me@example.com", "hunter2")
	h.srv.AddDevice(map[string]any{
		"id":              "dev1",
		"activeEndpoints": map[string]any{"1": map[string]any{"profileId": "0104"}},
	})
	h.srv.AddDevice(map[string]any{"id": "dev2"})
	h.srv.AddThing("lamp", map[string]any{
		"title":      "Lamp",
		"properties": map[string]any{"on": map[string]any{"type": "boolean"}},
	}, map[string]any{"on": true})

	handler := logging.NewConsoleHandler(h.log, slog.LevelInfo, termenv.WithProfile(termenv.Ascii))
	opts.Output = output.New(slog.New(handler), nil)
	opts.Output.SetCapture(true)
	if opts.Input == nil {
		opts.Input = shell.NewScriptReader(strings.NewReader(strings.Join(input, "\n")))
	}
	h.rt = shell.NewRuntime(opts)
	h.root = NewRoot(Config{Runtime: h.rt, Session: h.sess})
	return h
}

// login stores a valid credential for the fake gateway.
func (h *harness) login() {
	h.sess.SetRoot(session.GatewaysKey, h.srv.URL)
	h.sess.Set(gateway.CredentialKey, h.srv.Token("me@example.com"))
}

// run executes line as a one-shot command at the root level.
func (h *harness) run(line string) bool {
	return h.root.AutoLoop(context.Background(), line)
}

func (h *harness) logged() []string {
	text := strings.TrimRight(h.log.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func (h *harness) errors() []string { return h.rt.Out().CapturedText(output.Error) }

func (h *harness) puts() []gatewaytest.Request {
	var puts []gatewaytest.Request
	for _, r := range h.srv.Requests() {
		if r.Method == "PUT" {
			puts = append(puts, r)
		}
	}
	return puts
}

func TestDevicesPrintedInColumns(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	assert.False(t, h.run("gateway "+h.srv.URL+" devices"))
	assert.Equal(t, []string{"dev1 dev2"}, h.logged())
	assert.Empty(t, h.errors())
	assert.Equal(t, 0, h.rt.Depth())
}

func TestDevicesWithoutDebugPrintsHint(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()
	h.srv.DisableDebug()

	h.run("gateway " + h.srv.URL + " devices")
	assert.Equal(t, []string{debugHint}, h.errors())
}

func TestReadWithoutActiveEndpoints(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " device dev2 read 1 0006 0000")
	assert.Equal(t, 1, h.rt.Out().ErrorCount())
	assert.Equal(t, []string{"No activeEndpoints found in device"}, h.errors())
	assert.Empty(t, h.puts(), "no command sent to the device")
}

func TestReadUnknownEndpoint(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " device dev1 read 9 0006 0000")
	assert.Equal(t, []string{"Error: Unknown endpoint: 9"}, h.errors())
	assert.Empty(t, h.puts())
}

func TestReadTooFewArguments(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " device dev1 read 1 6")
	assert.Equal(t, 1, h.rt.Out().ErrorCount())
	assert.Equal(t, []string{"Error: Expecting 3 or more arguments, found 2"}, h.errors())
	assert.Empty(t, h.puts())
}

func TestReadSendsAttributeRead(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " device dev1 read 1 6 0000 0001")
	assert.Empty(t, h.errors())
	puts := h.puts()
	require.Len(t, puts, 1)
	assert.Equal(t, "/debug/device/dev1/cmd/readAttr", puts[0].Path)
	assert.Equal(t, map[string]any{
		"endpoint":  "1",
		"profileId": 260.0,
		"clusterId": "0006",
		"attrId":    []any{"0000", "0001"},
	}, puts[0].Body)
	assert.Contains(t, h.rt.Out().CapturedText(output.Good), "Sent readAttr to dev1")
}

func TestDeviceCommands(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantPath string
		wantBody map[string]any
	}{
		{
			name:     "bind pads cluster",
			line:     "bind 1 6",
			wantPath: "/debug/device/dev1/cmd/bind",
			wantBody: map[string]any{"srcEndpoint": "1", "clusterId": "0006"},
		},
		{
			name:     "bindings",
			line:     "bindings",
			wantPath: "/debug/device/dev1/cmd/bindings",
			wantBody: map[string]any{},
		},
		{
			name:     "adapter devices",
			line:     "adapter-devices",
			wantPath: "/debug/device/dev1/cmd/devices",
			wantBody: map[string]any{},
		},
		{
			name:     "adapter info with address",
			line:     "adapter-info 00124b0001",
			wantPath: "/debug/device/dev1/cmd/info",
			wantBody: map[string]any{"addr64": "00124b0001"},
		},
		{
			name:     "discover everything",
			line:     "discover",
			wantPath: "/debug/device/dev1/cmd/discoverAttr",
			wantBody: map[string]any{},
		},
		{
			name:     "discover cluster",
			line:     "discover 1 300",
			wantPath: "/debug/device/dev1/cmd/discoverAttr",
			wantBody: map[string]any{"endpoint": "1", "clusterId": "0300"},
		},
		{
			name:     "debug flags",
			line:     "debug flow noframes detail",
			wantPath: "/debug/device/dev1/cmd/debug",
			wantBody: map[string]any{"debugFlow": true, "debugFrames": false, "debugDumpFrameDetail": true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, shell.Options{})
			h.login()

			h.run("gateway " + h.srv.URL + " device dev1 " + tt.line)
			assert.Empty(t, h.errors())
			puts := h.puts()
			require.Len(t, puts, 1)
			assert.Equal(t, tt.wantPath, puts[0].Path)
			assert.Equal(t, tt.wantBody, puts[0].Body)
		})
	}
}

func TestBindWrongArgCount(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " device dev1 bind 1")
	assert.Equal(t, 1, h.rt.Out().ErrorCount())
	assert.Equal(t, []string{"Error: Expecting 2 arguments, found 1"}, h.errors())
}

func TestDebugIgnoresUnknownOptions(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " device dev1 debug bogus flow")
	assert.Contains(t, h.rt.Out().CapturedText(output.Info), "Unrecognized option: bogus (ignored)")
	puts := h.puts()
	require.Len(t, puts, 1)
	assert.Equal(t, map[string]any{"debugFlow": true}, puts[0].Body)
	assert.Empty(t, h.errors())
}

func TestDeviceNotFound(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " device nope")
	assert.Equal(t, []string{`No device found with the id "nope"`}, h.errors())
	assert.Equal(t, 0, h.rt.Depth())
}

func TestDeviceInfoPrintsJSON(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " device dev2 info")
	assert.Equal(t, []string{"{", `  "id": "dev2"`, "}"}, h.logged())
}

func TestThings(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()
	h.srv.AddThing("door", nil, nil)

	h.run("gateway " + h.srv.URL + " things")
	assert.Equal(t, []string{"door lamp"}, h.logged())
}

func TestThingsLong(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " things -l")
	text := strings.Join(h.logged(), "\n")
	assert.Contains(t, text, `"href": "/things/lamp"`)
	assert.Contains(t, text, `"title": "Lamp"`)
}

func TestThingProperties(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " thing lamp properties")
	assert.Equal(t, []string{"{", `  "on": true`, "}"}, h.logged())
}

func TestThingProperty(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " thing lamp property on missing")
	assert.Equal(t, []string{"{", `  "on": true`, "}", `No property "missing" on lamp`}, h.logged())
	assert.Equal(t, 1, h.rt.Out().ErrorCount())
}

func TestThingNotFound(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " thing nope")
	assert.Equal(t, []string{`No thing found with the id "nope"`}, h.errors())
}

func TestLoginThroughShell(t *testing.T) {
	h := newHarness(t, shell.Options{Interactive: true}, "me@example.com", "hunter2")

	h.run("gateway " + h.srv.URL + " devices")
	assert.Equal(t, 1, h.srv.Logins())
	assert.Equal(t, []string{"dev1 dev2"}, h.logged())
	assert.True(t, h.sess.Dirty())
	assert.NotEmpty(t, h.sess.Get(gateway.CredentialKey))
	require.NoError(t, h.sess.Save())

	reloaded := session.Load(h.sess.Path())
	reloaded.SetRoot(session.GatewaysKey, h.srv.URL)
	assert.Equal(t, h.sess.Get(gateway.CredentialKey), reloaded.Get(gateway.CredentialKey))
}

func TestLoginAbortedThroughShell(t *testing.T) {
	h := newHarness(t, shell.Options{Interactive: true})

	assert.False(t, h.run("gateway "+h.srv.URL+" devices"))
	assert.Equal(t, 0, h.srv.Logins())
	assert.Empty(t, h.errors())
	assert.Empty(t, h.logged())
}

func TestLoginNeedsTerminal(t *testing.T) {
	h := newHarness(t, shell.Options{}, "me@example.com", "hunter2")

	assert.False(t, h.run("gateway "+h.srv.URL+" devices"))
	assert.Equal(t, 0, h.srv.Logins())
	assert.Equal(t, []string{"Error: Login required: cannot prompt for input"}, h.errors())
	assert.False(t, h.rt.Failed())
}

func TestFileModeLoginIsFatal(t *testing.T) {
	h := newHarness(t, shell.Options{})
	// Rebuilt so the script can name the harness server.
	h.rt = shell.NewRuntime(shell.Options{
		Output:   h.rt.Out(),
		Input:    shell.NewScriptReader(strings.NewReader("gateway " + h.srv.URL + "\ndevices\nthings\nquit\n")),
		Filename: "cmds.txt",
	})
	h.root = NewRoot(Config{Runtime: h.rt, Session: h.sess})

	assert.True(t, h.root.AutoLoop(context.Background(), ""))
	assert.True(t, h.rt.Failed())
	assert.Equal(t, 0, h.srv.Logins())
	assert.Equal(t, []string{"File: cmds.txt Line: 2 Error: Login required: cannot prompt for input"},
		h.rt.Out().CapturedText(output.Fatal))
	reqs := h.srv.Requests()
	require.Len(t, reqs, 1, "things never dispatched")
	assert.Equal(t, "/debug/devices", reqs[0].Path)
}

func TestUnreachableGateway(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()
	url := h.srv.URL
	h.srv.Close()

	h.run("gateway " + url + " devices")
	assert.Equal(t, []string{"Unable to connect to server: " + url + "/debug/devices"}, h.errors())
}

func TestGatewayScopesSession(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.sess.SetRoot(session.GatewaysKey, "https://b.local")
	h.sess.SetRoot(session.GatewaysKey, "https://a.local")

	h.run("gateways")
	assert.Equal(t, []string{"https://a.local", "https://b.local"}, h.logged())
}

func TestRootEchoAndArgs(t *testing.T) {
	h := newHarness(t, shell.Options{})

	h.run("echo hello there")
	h.run("args one two")
	assert.Equal(t, []string{"hello there", "args line = 'one two'"}, h.logged())
}

func TestGatewayWithoutName(t *testing.T) {
	h := newHarness(t, shell.Options{})

	h.run("gateway")
	assert.Equal(t, []string{"Error: Expecting 1 argument, found 0"}, h.errors())
}

func TestQuitFromThingLevelUnwinds(t *testing.T) {
	h := newHarness(t, shell.Options{}, "thing lamp", "properties", "quit", "echo never")
	h.login()

	assert.True(t, h.run("gateway "+h.srv.URL))
	assert.True(t, h.rt.Quitting())
	assert.Equal(t, 0, h.rt.Depth())
	assert.Equal(t, []string{"{", `  "on": true`, "}"}, h.logged())
}

func TestInteractivePrompts(t *testing.T) {
	term := &promptRecorder{lines: []string{"device dev1", "bindings"}}
	h := newHarness(t, shell.Options{Interactive: true, Input: term})
	h.login()

	h.run("gateway " + h.srv.URL)
	assert.Equal(t, []string{
		"cli " + h.srv.URL + "> ",
		"cli " + h.srv.URL + " dev1> ",
		"cli " + h.srv.URL + " dev1> ",
		"cli " + h.srv.URL + "> ",
		"cli> ",
	}, term.prompts)
	assert.Equal(t, []string{"Requested bindings of dev1"}, h.logged())
}

func TestTokenAndLogout(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " token")
	assert.Contains(t, h.logged(), "Subject: me@example.com")
	assert.Len(t, h.rt.Out().CapturedText(output.Good), 1)

	h.run("gateway " + h.srv.URL + " logout")
	assert.Empty(t, h.sess.Get(gateway.CredentialKey))

	h.log.Reset()
	h.run("gateway " + h.srv.URL + " token")
	assert.Equal(t, []string{"No credential stored for " + h.srv.URL}, h.logged())
}

func TestStats(t *testing.T) {
	h := newHarness(t, shell.Options{}, "devices", "stats")
	h.login()

	h.run("gateway " + h.srv.URL)
	logged := h.logged()
	assert.Contains(t, logged, `gwcli_http_requests_total{code="200",method="GET"} 1`)
	found := false
	for _, line := range logged {
		if strings.HasPrefix(line, `gwcli_http_request_duration_seconds{method="GET"} count=1 `) {
			found = true
		}
	}
	assert.True(t, found, "duration histogram listed: %v", logged)
}

func TestHelpAtDeviceLevel(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()

	h.run("gateway " + h.srv.URL + " device dev1 help bind")
	logged := h.logged()
	require.NotEmpty(t, logged)
	assert.Equal(t, "bind endpoint clusterId", logged[0])
}

func TestCompletion(t *testing.T) {
	h := newHarness(t, shell.Options{})
	h.login()
	ctx := context.Background()

	got, _ := h.root.Complete(ctx, "gateway ")
	assert.Equal(t, []string{h.srv.URL}, got)

	e := newEnv(Config{Runtime: h.rt, Session: h.sess})
	gs := e.gatewayShell(e.connect(h.srv.URL))
	got, _ = gs.Complete(ctx, "device d")
	assert.Equal(t, []string{"dev1", "dev2"}, got)
	got, _ = gs.Complete(ctx, "thing l")
	assert.Equal(t, []string{"lamp"}, got)
}

func TestCompletionNeverLogsIn(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		line  string
	}{
		{name: "devices without credential", line: "device "},
		{name: "things without credential", line: "thing l"},
		{
			name: "expired credential",
			setup: func(h *harness) {
				h.sess.SetRoot(session.GatewaysKey, h.srv.URL)
				h.sess.Set(gateway.CredentialKey, h.srv.ExpiredToken("me@example.com"))
			},
			line: "device d",
		},
		{
			name: "debug disabled",
			setup: func(h *harness) {
				h.login()
				h.srv.DisableDebug()
			},
			line: "device ",
		},
		{
			name: "unreachable devices",
			setup: func(h *harness) {
				h.login()
				h.srv.Close()
			},
			line: "device ",
		},
		{
			name: "unreachable things",
			setup: func(h *harness) {
				h.login()
				h.srv.Close()
			},
			line: "thing ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, shell.Options{Interactive: true}, "me@example.com", "hunter2")
			if tt.setup != nil {
				tt.setup(h)
			}
			e := newEnv(Config{Runtime: h.rt, Session: h.sess})
			gs := e.gatewayShell(e.connect(h.srv.URL))

			got, _ := gs.Complete(context.Background(), tt.line)
			assert.Empty(t, got)
			assert.Equal(t, 0, h.srv.Logins())
			assert.Empty(t, h.errors())
			assert.Empty(t, h.logged())
		})
	}
}

func TestTabBeforeLoginDoesNotHang(t *testing.T) {
	term := &completingTerminal{promptRecorder: promptRecorder{lines: []string{"quit"}}}
	h := newHarness(t, shell.Options{Interactive: true, Input: term})
	term.complete = func() ([][]rune, int) {
		return h.rt.Completer().Do([]rune("device "), 7)
	}

	assert.True(t, h.run("gateway "+h.srv.URL))
	assert.True(t, term.tabbed)
	assert.Empty(t, term.candidates)
	assert.Equal(t, 0, h.srv.Logins())
	assert.Empty(t, h.logged())
	assert.Len(t, h.srv.Requests(), 1)
}

// promptRecorder is a LineReader that records the prompt of every read.
type promptRecorder struct {
	lines   []string
	prompt  string
	prompts []string
}

func (p *promptRecorder) Readline() (string, error) {
	p.prompts = append(p.prompts, p.prompt)
	if len(p.lines) == 0 {
		return "", io.EOF
	}
	line := p.lines[0]
	p.lines = p.lines[1:]
	return line, nil
}

func (p *promptRecorder) SetPrompt(s string) { p.prompt = s }

func (p *promptRecorder) ReadPassword(string) ([]byte, error) { return nil, io.EOF }

// completingTerminal presses TAB during its first read, the way readline
// calls the completer from inside Readline.
type completingTerminal struct {
	promptRecorder
	complete   func() ([][]rune, int)
	tabbed     bool
	candidates [][]rune
}

func (c *completingTerminal) Readline() (string, error) {
	if c.complete != nil && !c.tabbed {
		c.tabbed = true
		c.candidates, _ = c.complete()
	}
	return c.promptRecorder.Readline()
}
