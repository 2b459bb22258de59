package cli

import (
	"context"

	"github.com/psaab/gwcli/pkg/session"
	"github.com/psaab/gwcli/pkg/shell"
)

// NewRoot creates the outermost shell level.
func NewRoot(cfg Config) *shell.Shell {
	e := newEnv(cfg)
	return e.rt.NewShell(RootPrompt,
		&shell.Command{
			Name: "gateway",
			Doc: `gateway gateway-url [command]

			Connect to the indicated gateway. With a command, run it at the
			gateway level and return.`,
			Run: e.gateway,
			Complete: func(_ context.Context, prefix string) []string {
				return e.sess.Names(session.GatewaysKey)
			},
		},
		&shell.Command{
			Name: "gateways",
			Doc: `gateways

			List configured gateways.`,
			Run: func(context.Context, string) (bool, error) {
				for _, name := range e.sess.Names(session.GatewaysKey) {
					e.out.Info("%s", name)
				}
				return false, nil
			},
		},
		&shell.Command{
			Name: "args",
			Doc: `args [text]

			Prints out the command line arguments.`,
			Run: func(_ context.Context, args string) (bool, error) {
				e.out.Info("args line = '%s'", args)
				return false, nil
			},
		},
		&shell.Command{
			Name: "echo",
			Doc: `echo [text]

			Prints the rest of the line to the output.

			This is mostly useful when processing from a script.`,
			Run: func(_ context.Context, args string) (bool, error) {
				e.out.Info("%s", args)
				return false, nil
			},
		},
	)
}

func (e *env) gateway(ctx context.Context, args string) (bool, error) {
	name, line, err := splitTarget(args)
	if err != nil {
		return false, err
	}
	g := e.connect(name)
	return e.gatewayShell(g).AutoLoop(ctx, line), nil
}
