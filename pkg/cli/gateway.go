package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/psaab/gwcli/pkg/gateway"
	"github.com/psaab/gwcli/pkg/shell"
)

// debugHint is printed when the gateway does not serve the debug API.
const debugHint = "Are you running with debug enabled? (i.e. npm start -- -d)"

type gatewayLevel struct {
	*env
	gw *gateway.Gateway
}

func (e *env) gatewayShell(g *gateway.Gateway) *shell.Shell {
	l := &gatewayLevel{env: e, gw: g}
	return e.rt.NewShell(g.Name(),
		&shell.Command{
			Name: "devices",
			Doc: `devices

			Prints a list of devices that the gateway knows about.`,
			Run: l.devices,
		},
		&shell.Command{
			Name: "device",
			Doc: `device device-id [command]

			Sets the current device. With a command, run it at the device
			level and return.`,
			Run:      l.device,
			Complete: l.completeDevice,
		},
		&shell.Command{
			Name: "things",
			Doc: `things [-l]

			Prints a list of things that the gateway knows about. -l prints
			the full thing descriptions.`,
			Run: l.things,
		},
		&shell.Command{
			Name: "thing",
			Doc: `thing thing-id [command]

			Sets the current thing. With a command, run it at the thing level
			and return.`,
			Run:      l.thing,
			Complete: l.completeThing,
		},
		&shell.Command{
			Name: "token",
			Doc: `token

			Shows the claims of the stored credential.`,
			Run: l.token,
		},
		&shell.Command{
			Name: "logout",
			Doc: `logout

			Forgets the stored credential. The next request asks for a login.`,
			Run: l.logout,
		},
		&shell.Command{
			Name: "stats",
			Doc: `stats

			Shows request counters for this gateway.`,
			Run: l.stats,
		},
	)
}

// deviceIDs lists the device ids, printing the debug hint when the
// gateway has no debug API.
func (l *gatewayLevel) deviceIDs(ctx context.Context) ([]string, error) {
	ids, err := l.gw.Devices(ctx)
	if errors.Is(err, gateway.ErrNotFound) {
		l.out.Error(debugHint)
	}
	return ids, err
}

func (l *gatewayLevel) devices(ctx context.Context, _ string) (bool, error) {
	ids, err := l.deviceIDs(ctx)
	if err != nil {
		return false, l.result(err)
	}
	l.printColumns(ids)
	return false, nil
}

// completeDevice runs inside the line editor, so it must not prompt or
// print.
func (l *gatewayLevel) completeDevice(ctx context.Context, _ string) []string {
	ids, _ := l.gw.Devices(gateway.WithoutLogin(ctx))
	return ids
}

func (l *gatewayLevel) device(ctx context.Context, args string) (bool, error) {
	id, line, err := splitTarget(args)
	if err != nil {
		return false, err
	}
	d, err := l.gw.Device(ctx, id)
	if errors.Is(err, gateway.ErrNotFound) {
		l.out.Error("No device found with the id %q", id)
		return false, nil
	}
	if err != nil {
		return false, l.result(err)
	}
	return l.deviceShell(l.gw, d).AutoLoop(ctx, line), nil
}

func (l *gatewayLevel) things(ctx context.Context, args string) (bool, error) {
	long := false
	for _, arg := range strings.Fields(args) {
		if arg != "-l" {
			return false, shell.Usagef("Unrecognized option: %s", arg)
		}
		long = true
	}
	if long {
		things, err := l.gw.Things(ctx)
		if err != nil {
			return false, l.result(err)
		}
		if len(things) > 0 {
			return false, l.printJSON(things)
		}
		return false, nil
	}
	ids, err := l.gw.ThingIDs(ctx)
	if err != nil {
		return false, l.result(err)
	}
	l.printColumns(ids)
	return false, nil
}

func (l *gatewayLevel) completeThing(ctx context.Context, _ string) []string {
	ids, _ := l.gw.ThingIDs(gateway.WithoutLogin(ctx))
	return ids
}

func (l *gatewayLevel) thing(ctx context.Context, args string) (bool, error) {
	id, line, err := splitTarget(args)
	if err != nil {
		return false, err
	}
	t, err := l.gw.Thing(ctx, id)
	if errors.Is(err, gateway.ErrNotFound) {
		l.out.Error("No thing found with the id %q", id)
		return false, nil
	}
	if err != nil {
		return false, l.result(err)
	}
	return l.thingShell(l.gw, t).AutoLoop(ctx, line), nil
}

func (l *gatewayLevel) token(_ context.Context, _ string) (bool, error) {
	tok := l.gw.Client().Token()
	if tok == "" {
		l.out.Info("No credential stored for %s", l.gw.Name())
		return false, nil
	}
	info, err := gateway.ParseToken(tok)
	if err != nil {
		return false, err
	}
	if info.Subject != "" {
		l.out.Info("Subject: %s", info.Subject)
	}
	if info.Issuer != "" {
		l.out.Info("Issuer:  %s", info.Issuer)
	}
	if !info.IssuedAt.IsZero() {
		l.out.Info("Issued:  %s", info.IssuedAt.Format(time.RFC3339))
	}
	switch {
	case info.ExpiresAt.IsZero():
		l.out.Info("Expires: never")
	case info.Expired(time.Now()):
		l.out.Error("Expired: %s", info.ExpiresAt.Format(time.RFC3339))
	default:
		l.out.Good("Expires: %s", info.ExpiresAt.Format(time.RFC3339))
	}
	return false, nil
}

func (l *gatewayLevel) logout(_ context.Context, _ string) (bool, error) {
	l.gw.Client().SetToken("")
	l.out.Good("Logged out of %s", l.gw.Name())
	return false, nil
}

func (l *gatewayLevel) stats(_ context.Context, _ string) (bool, error) {
	families, err := l.gw.Client().Metrics().Gather()
	if err != nil {
		return false, fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName() + formatLabels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				lines = append(lines,
					fmt.Sprintf("%s count=%d sum=%.3fs", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	if len(lines) == 0 {
		l.out.Info("No requests sent to %s yet", l.gw.Name())
		return false, nil
	}
	sort.Strings(lines)
	for _, line := range lines {
		l.out.Info("%s", line)
	}
	return false, nil
}

func formatLabels(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, lp := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
