package thing

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Property and action names used by actuation.
const (
	PropertyIsOn      = "isOn"
	PropertyIntensity = "intensity"
	ActionToggle      = "toggle"
	ActionSetLow      = "setLow"
	ActionSetHigh     = "setHigh"
)

// Handle is a live binding to one device's control surface.
type Handle interface {
	// DeviceID returns the device identifier the handle was resolved for.
	DeviceID() string

	// ReadProperty reads the current value of a property.
	ReadProperty(ctx context.Context, name string) (Value, error)

	// InvokeAction invokes an action with no input.
	InvokeAction(ctx context.Context, name string) error

	// Supports reports whether the Thing Description declares the property or action.
	Supports(affordance string) bool
}

// Client resolves devices to Handles over HTTP.
//
// Thread Safety:
//   - Client and every Handle it returns are safe for concurrent use.
type Client struct {
	http    *resty.Client
	baseURL string
}

// Options configures a Client.
type Options struct {
	Timeout time.Duration
}

// NewClient creates a Client for Things published under baseURL.
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    rc,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Resolve fetches the Thing Description for deviceID and returns a Handle
// whose property and action URLs come from the description's forms, falling
// back to {base}/{device}/properties/{name} and {base}/{device}/actions/{name}.
func (c *Client) Resolve(ctx context.Context, deviceID string) (Handle, error) {
	tdURL := c.baseURL + "/" + url.PathEscape(deviceID)

	resp, err := c.http.R().SetContext(ctx).Get(tdURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDescription, deviceID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: %s", ErrDescription, deviceID, resp.Status())
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, fmt.Errorf("%w: %s: body is not a JSON object", ErrDescription, deviceID)
	}

	return newDevice(c.http, deviceID, tdURL, gjson.ParseBytes(body)), nil
}

// device implements Handle.
type device struct {
	http       *resty.Client
	id         string
	tdURL      string
	properties map[string]string
	actions    map[string]string
}

func newDevice(rc *resty.Client, id, tdURL string, td gjson.Result) *device {
	d := &device{
		http:       rc,
		id:         id,
		tdURL:      tdURL,
		properties: make(map[string]string),
		actions:    make(map[string]string),
	}
	base := formBase(td, tdURL)
	collectForms(td.Get("properties"), base, d.properties)
	collectForms(td.Get("actions"), base, d.actions)
	return d
}

// formBase returns the URL relative form hrefs resolve against: the
// description's "base" field when present, itself resolved against the
// description URL, otherwise the description URL.
func formBase(td gjson.Result, tdURL string) *url.URL {
	base, err := url.Parse(tdURL)
	if err != nil {
		return nil
	}
	if raw := td.Get("base").String(); raw != "" {
		if ref, err := url.Parse(raw); err == nil {
			return base.ResolveReference(ref)
		}
	}
	return base
}

// collectForms records each affordance name with the first form href, resolved
// against base. Affordances without a form map to "".
func collectForms(affordances gjson.Result, base *url.URL, into map[string]string) {
	affordances.ForEach(func(name, aff gjson.Result) bool {
		href := aff.Get("forms.0.href").String()
		if href != "" && base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		into[name.String()] = href
		return true
	})
}

func (d *device) DeviceID() string { return d.id }

func (d *device) Supports(affordance string) bool {
	if _, ok := d.properties[affordance]; ok {
		return true
	}
	_, ok := d.actions[affordance]
	return ok
}

func (d *device) ReadProperty(ctx context.Context, name string) (Value, error) {
	target := d.properties[name]
	if target == "" {
		target = d.tdURL + "/properties/" + url.PathEscape(name)
	}

	resp, err := d.http.R().SetContext(ctx).Get(target)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s.%s: %w", ErrPropertyRead, d.id, name, err)
	}
	if resp.IsError() {
		return Value{}, fmt.Errorf("%w: %s.%s: %s", ErrPropertyRead, d.id, name, resp.Status())
	}
	return ParseValue(resp.Body()), nil
}

func (d *device) InvokeAction(ctx context.Context, name string) error {
	target := d.actions[name]
	if target == "" {
		target = d.tdURL + "/actions/" + url.PathEscape(name)
	}

	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		Post(target)
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %w", ErrActionInvoke, d.id, name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s.%s: %s", ErrActionInvoke, d.id, name, resp.Status())
	}
	return nil
}
