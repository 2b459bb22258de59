package gateway

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
)

// HomeAutomationProfile is the Zigbee profile id used for attribute reads.
const HomeAutomationProfile = 260

// Device is a device record as returned by the gateway debug API.
type Device map[string]any

// ID returns the device identifier.
func (d Device) ID() string {
	id, _ := d["id"].(string)
	return id
}

// ActiveEndpoints returns the activeEndpoints mapping, or nil and false when
// the device does not carry one.
func (d Device) ActiveEndpoints() (map[string]any, bool) {
	eps, ok := d["activeEndpoints"].(map[string]any)
	return eps, ok
}

// Thing is a thing description as returned by the web-of-things API.
type Thing map[string]any

// ID returns the last element of the thing's href.
func (t Thing) ID() string {
	href, _ := t["href"].(string)
	if href == "" {
		return ""
	}
	return path.Base(href)
}

// Gateway exposes the resources of one gateway.
type Gateway struct {
	name   string
	client *Client
}

// New binds name (the gateway URL) to client.
func New(name string, client *Client) *Gateway {
	return &Gateway{name: name, client: client}
}

// Name returns the gateway name, which is also its base URL.
func (g *Gateway) Name() string { return g.name }

// Client returns the underlying authenticated client.
func (g *Gateway) Client() *Client { return g.client }

// Devices returns the ids of every device the gateway knows about.
func (g *Gateway) Devices(ctx context.Context) ([]string, error) {
	resp, err := g.client.Get(ctx, "/debug/devices")
	if err != nil {
		return nil, err
	}
	var devices []Device
	if err := resp.Decode(&devices); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID())
	}
	return ids, nil
}

// Device fetches one device record.
func (g *Gateway) Device(ctx context.Context, id string) (Device, error) {
	resp, err := g.client.Get(ctx, "/debug/device/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var d Device
	if err := resp.Decode(&d); err != nil {
		return nil, err
	}
	return d, nil
}

// Things returns the full thing descriptions.
func (g *Gateway) Things(ctx context.Context) ([]Thing, error) {
	resp, err := g.client.Get(ctx, "/things")
	if err != nil {
		return nil, err
	}
	var things []Thing
	if err := resp.Decode(&things); err != nil {
		return nil, err
	}
	return things, nil
}

// ThingIDs returns the ids of every thing, sorted.
func (g *Gateway) ThingIDs(ctx context.Context) ([]string, error) {
	things, err := g.Things(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(things))
	for _, t := range things {
		ids = append(ids, t.ID())
	}
	sort.Strings(ids)
	return ids, nil
}

// Thing fetches one thing description.
func (g *Gateway) Thing(ctx context.Context, id string) (Thing, error) {
	resp, err := g.client.Get(ctx, "/things/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var t Thing
	if err := resp.Decode(&t); err != nil {
		return nil, err
	}
	return t, nil
}

// Properties returns the property values of a thing.
func (g *Gateway) Properties(ctx context.Context, id string) (any, error) {
	return g.getJSON(ctx, fmt.Sprintf("/things/%s/properties", url.PathEscape(id)))
}

// Property returns one property value of a thing.
func (g *Gateway) Property(ctx context.Context, id, name string) (any, error) {
	return g.getJSON(ctx, fmt.Sprintf("/things/%s/properties/%s", url.PathEscape(id), url.PathEscape(name)))
}

func (g *Gateway) getJSON(ctx context.Context, p string) (any, error) {
	resp, err := g.client.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	var v any
	if err := resp.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Bind asks the device to bind endpoint/cluster to the gateway. The result
// shows up in the gateway log.
func (g *Gateway) Bind(ctx context.Context, deviceID, endpoint, clusterID string) error {
	_, err := g.DebugCmd(ctx, deviceID, "bind", map[string]any{
		"srcEndpoint": endpoint,
		"clusterId":   clusterID,
	})
	return err
}

// Bindings asks the device to report its binding table.
func (g *Gateway) Bindings(ctx context.Context, deviceID string) error {
	_, err := g.DebugCmd(ctx, deviceID, "bindings", map[string]any{})
	return err
}

// DiscoverAttr starts attribute discovery. Empty endpoint or clusterID are
// left out of the request.
func (g *Gateway) DiscoverAttr(ctx context.Context, deviceID, endpoint, clusterID string) (*Response, error) {
	params := map[string]any{}
	if endpoint != "" {
		params["endpoint"] = endpoint
	}
	if clusterID != "" {
		params["clusterId"] = clusterID
	}
	return g.DebugCmd(ctx, deviceID, "discoverAttr", params)
}

// ReadAttr starts a read of attrIDs from endpoint/cluster.
func (g *Gateway) ReadAttr(ctx context.Context, deviceID, endpoint, clusterID string, attrIDs []string) (*Response, error) {
	return g.DebugCmd(ctx, deviceID, "readAttr", map[string]any{
		"endpoint":  endpoint,
		"profileId": HomeAutomationProfile,
		"clusterId": clusterID,
		"attrId":    attrIDs,
	})
}

// DebugCmd sends an adapter debug command for a device.
func (g *Gateway) DebugCmd(ctx context.Context, deviceID, cmd string, params map[string]any) (*Response, error) {
	p := fmt.Sprintf("/debug/device/%s/cmd/%s", url.PathEscape(deviceID), cmd)
	return g.client.Put(ctx, p, params)
}

// PadClusterID normalises a cluster id to four characters: shorter ids
// are zero padded and longer ones keep their last four characters.
func PadClusterID(id string) string {
	s := "000" + id
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return s
}
