// Package cli defines the shell levels of gwcli: the root level, one
// level per gateway, and the device and thing levels beneath it. Each
// level is a shell.Shell whose commands close over the resource it is
// bound to.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/psaab/gwcli/pkg/cmdtree"
	"github.com/psaab/gwcli/pkg/gateway"
	"github.com/psaab/gwcli/pkg/output"
	"github.com/psaab/gwcli/pkg/session"
	"github.com/psaab/gwcli/pkg/shell"
)

// RootPrompt is the prompt fragment of the outermost level.
const RootPrompt = "cli"

// Config holds what every level needs.
type Config struct {
	Runtime *shell.Runtime
	Session *session.Session
	// HTTPClient overrides the transport used to reach gateways.
	HTTPClient *http.Client
	VerifyTLS  bool
}

type env struct {
	rt   *shell.Runtime
	out  *output.Output
	sess *session.Session
	cfg  Config
}

func newEnv(cfg Config) *env {
	return &env{rt: cfg.Runtime, out: cfg.Runtime.Out(), sess: cfg.Session, cfg: cfg}
}

// connect selects the session scope of the named gateway and returns a
// client for it. The gateway name is its base URL.
func (e *env) connect(name string) *gateway.Gateway {
	e.sess.SetRoot(session.GatewaysKey, name)
	client := gateway.NewClient(name, gateway.Options{
		HTTPClient: e.cfg.HTTPClient,
		VerifyTLS:  e.cfg.VerifyTLS,
		Store:      e.sess,
		Prompter:   e.rt,
		Reporter:   e.out,
	})
	return gateway.New(name, client)
}

// result turns a gateway error into a command error. The client reports
// most failures itself; only those it leaves silent are returned. A login
// that cannot prompt is an error, fatal in a command file.
func (e *env) result(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shell.ErrPromptUnavailable):
		e.out.Debug("%v", err)
		return fmt.Errorf("login required: %w", shell.ErrPromptUnavailable)
	case errors.Is(err, gateway.ErrLoginAborted):
		e.out.Debug("%v", err)
		return nil
	case errors.Is(err, gateway.ErrBadResponse):
		return err
	default:
		return nil
	}
}

func (e *env) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	fmt.Fprintln(e.out, string(data))
	return nil
}

// printColumns prints words sorted and laid out in columns.
func (e *env) printColumns(words []string) {
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)
	for _, line := range cmdtree.Columns(sorted, e.rt.Width()) {
		e.out.Info("%s", line)
	}
}

// splitTarget splits "ID [COMMAND...]" into the id and the command to run
// at the level it opens.
func splitTarget(args string) (string, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", "", shell.ExpectArgs(fields, 1)
	}
	return fields[0], strings.Join(fields[1:], " "), nil
}
