package cli

import (
	"context"
	"strings"

	"github.com/psaab/gwcli/pkg/gateway"
	"github.com/psaab/gwcli/pkg/shell"
)

// debugOptions maps the words accepted by the debug command to adapter
// flags.
var debugOptions = map[string]struct {
	flag  string
	value bool
}{
	"flow":     {"debugFlow", true},
	"noflow":   {"debugFlow", false},
	"frames":   {"debugFrames", true},
	"noframes": {"debugFrames", false},
	"detail":   {"debugDumpFrameDetail", true},
	"nodetail": {"debugDumpFrameDetail", false},
}

type deviceLevel struct {
	*env
	gw     *gateway.Gateway
	device gateway.Device
}

func (e *env) deviceShell(g *gateway.Gateway, d gateway.Device) *shell.Shell {
	l := &deviceLevel{env: e, gw: g, device: d}
	return e.rt.NewShell(d.ID(),
		&shell.Command{
			Name: "adapter_devices",
			Doc: `{command}

			Sends a command to the adapter to report its devices.
			The information will show up on the gateway console.`,
			Run: func(ctx context.Context, _ string) (bool, error) {
				return false, l.send(ctx, "devices", map[string]any{})
			},
		},
		&shell.Command{
			Name: "adapter_info",
			Doc: `{command} [addr64]

			Sends a command to the adapter to report info on a device.
			The information will show up on the gateway console.`,
			Run: l.adapterInfo,
		},
		&shell.Command{
			Name: "bind",
			Doc: `{command} endpoint clusterId

			Binds an endpoint/cluster to the gateway. Note that this
			command just initiates the bind. You'll need to look at the
			gateway log to see the results.`,
			Run: l.bind,
		},
		&shell.Command{
			Name: "bindings",
			Doc: `{command}

			Queries the current bindings from the current device. Note
			that this command just initiates the bindings table retrieval.
			You'll need to look at the gateway log to see the results.`,
			Run: func(ctx context.Context, _ string) (bool, error) {
				if err := l.gw.Bindings(ctx, l.device.ID()); err != nil {
					return false, l.result(err)
				}
				l.out.Good("Requested bindings of %s", l.device.ID())
				return false, nil
			},
		},
		&shell.Command{
			Name: "debug",
			Doc: `{command} [[no]flow] [[no]frames] [[no]detail]

			Turns on frame dumping/debugging.`,
			Run: l.debug,
			Complete: func(context.Context, string) []string {
				opts := make([]string, 0, len(debugOptions))
				for opt := range debugOptions {
					opts = append(opts, opt)
				}
				return opts
			},
		},
		&shell.Command{
			Name: "discover",
			Doc: `{command} [endpointNum [clusterId]]

			Discovers attributes for the various clusters associated with
			a device.`,
			Run: l.discover,
		},
		&shell.Command{
			Name: "info",
			Doc: `{command}

			Prints information about the current device.`,
			Run: l.info,
		},
		&shell.Command{
			Name: "read",
			Doc: `{command} endpoint clusterId attrId [attrId...]

			Reads one or more attributes from a zigbee device. Note that this
			command just initiates the read. You'll need to look at the gateway
			log to see the results.`,
			Run:      l.read,
			Complete: l.completeEndpoint,
		},
	)
}

// send issues an adapter debug command and reports the gateway's answer.
func (l *deviceLevel) send(ctx context.Context, cmd string, params map[string]any) error {
	resp, err := l.gw.DebugCmd(ctx, l.device.ID(), cmd, params)
	if err != nil {
		return l.result(err)
	}
	l.report(cmd, resp)
	return nil
}

func (l *deviceLevel) report(cmd string, resp *gateway.Response) {
	l.out.Good("Sent %s to %s", cmd, l.device.ID())
	if body := strings.TrimSpace(string(resp.Body)); body != "" && body != "{}" {
		l.out.Info("%s", body)
	}
}

func (l *deviceLevel) adapterInfo(ctx context.Context, args string) (bool, error) {
	params := map[string]any{}
	if fields := strings.Fields(args); len(fields) == 1 {
		params["addr64"] = fields[0]
	}
	return false, l.send(ctx, "info", params)
}

func (l *deviceLevel) bind(ctx context.Context, args string) (bool, error) {
	fields := strings.Fields(args)
	if err := shell.ExpectArgs(fields, 2); err != nil {
		return false, err
	}
	endpoint, cluster := fields[0], gateway.PadClusterID(fields[1])
	if err := l.gw.Bind(ctx, l.device.ID(), endpoint, cluster); err != nil {
		return false, l.result(err)
	}
	l.out.Good("Requested bind of endpoint %s cluster %s", endpoint, cluster)
	return false, nil
}

func (l *deviceLevel) debug(ctx context.Context, args string) (bool, error) {
	params := map[string]any{}
	for _, arg := range strings.Fields(args) {
		opt, ok := debugOptions[arg]
		if !ok {
			l.out.Info("Unrecognized option: %s (ignored)", arg)
			continue
		}
		params[opt.flag] = opt.value
	}
	return false, l.send(ctx, "debug", params)
}

func (l *deviceLevel) discover(ctx context.Context, args string) (bool, error) {
	var endpoint, cluster string
	fields := strings.Fields(args)
	if len(fields) >= 1 {
		endpoint = fields[0]
	}
	if len(fields) >= 2 {
		cluster = gateway.PadClusterID(fields[1])
	}
	resp, err := l.gw.DiscoverAttr(ctx, l.device.ID(), endpoint, cluster)
	if err != nil {
		return false, l.result(err)
	}
	l.report("discoverAttr", resp)
	return false, nil
}

func (l *deviceLevel) info(ctx context.Context, _ string) (bool, error) {
	d, err := l.gw.Device(ctx, l.device.ID())
	if err != nil {
		return false, l.result(err)
	}
	l.device = d
	return false, l.printJSON(d)
}

func (l *deviceLevel) read(ctx context.Context, args string) (bool, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return false, shell.Usagef("Expecting 3 or more arguments, found %d", len(fields))
	}
	endpoint, cluster, attrs := fields[0], gateway.PadClusterID(fields[1]), fields[2:]

	endpoints, ok := l.device.ActiveEndpoints()
	if !ok {
		l.out.Error("No activeEndpoints found in device")
		return false, nil
	}
	if _, ok := endpoints[endpoint]; !ok {
		return false, shell.Usagef("Unknown endpoint: %s", endpoint)
	}
	resp, err := l.gw.ReadAttr(ctx, l.device.ID(), endpoint, cluster, attrs)
	if err != nil {
		return false, l.result(err)
	}
	l.report("readAttr", resp)
	return false, nil
}

func (l *deviceLevel) completeEndpoint(context.Context, string) []string {
	endpoints, _ := l.device.ActiveEndpoints()
	names := make([]string, 0, len(endpoints))
	for ep := range endpoints {
		names = append(names, ep)
	}
	return names
}
