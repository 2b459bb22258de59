package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/psaab/gwcli/pkg/gateway"
	"github.com/psaab/gwcli/pkg/shell"
)

type thingLevel struct {
	*env
	gw    *gateway.Gateway
	thing gateway.Thing
}

func (e *env) thingShell(g *gateway.Gateway, t gateway.Thing) *shell.Shell {
	l := &thingLevel{env: e, gw: g, thing: t}
	return e.rt.NewShell(t.ID(),
		&shell.Command{
			Name: "info",
			Doc: `info

			Prints information about the current thing.`,
			Run: l.info,
		},
		&shell.Command{
			Name: "properties",
			Doc: `properties

			Prints the properties associated with the current thing.`,
			Run: l.properties,
		},
		&shell.Command{
			Name: "property",
			Doc: `property property-name [property-name...]

			Prints information about the indicated property.`,
			Run:      l.property,
			Complete: l.completeProperty,
		},
	)
}

func (l *thingLevel) info(ctx context.Context, _ string) (bool, error) {
	t, err := l.gw.Thing(ctx, l.thing.ID())
	if err != nil {
		return false, l.result(err)
	}
	l.thing = t
	return false, l.printJSON(t)
}

func (l *thingLevel) properties(ctx context.Context, _ string) (bool, error) {
	props, err := l.gw.Properties(ctx, l.thing.ID())
	if err != nil {
		return false, l.result(err)
	}
	return false, l.printJSON(props)
}

func (l *thingLevel) property(ctx context.Context, args string) (bool, error) {
	names := strings.Fields(args)
	if len(names) == 0 {
		return false, shell.Usagef("Expecting 1 or more arguments, found 0")
	}
	for _, name := range names {
		v, err := l.gw.Property(ctx, l.thing.ID(), name)
		if errors.Is(err, gateway.ErrNotFound) {
			l.out.Error("No property %q on %s", name, l.thing.ID())
			continue
		}
		if err != nil {
			return false, l.result(err)
		}
		if err := l.printJSON(v); err != nil {
			return false, err
		}
	}
	return false, nil
}

// completeProperty offers the property names declared by the thing
// description.
func (l *thingLevel) completeProperty(context.Context, string) []string {
	props, _ := l.thing["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	return names
}
