// Package vsphere implements the provider against an ESXi host through the
// vSphere SOAP API.
//
// Identities are managed object ids for resource pools and virtual
// machines, names for virtual switches and port groups, and datastore paths
// ("[ds] dir/name.vmdk") for virtual disks.
package vsphere

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/soap"
)

// Options describe how to reach a host.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	Insecure bool
}

// kindHandler implements the CRUD calls of one resource kind.
type kindHandler interface {
	create(ctx context.Context, inputs property.Bag) (string, property.Bag, error)
	read(ctx context.Context, id string) (property.Bag, error)
	update(ctx context.Context, id string, inputs property.Bag) (property.Bag, error)
	delete(ctx context.Context, id string) error
}

// Provider talks to a single ESXi host.
type Provider struct {
	client     *vim25.Client
	session    *session.Manager
	finder     *find.Finder
	datacenter *object.Datacenter
	host       *object.HostSystem
	root       *object.ResourcePool
	network    *object.HostNetworkSystem

	handlers map[string]kindHandler
}

// Dial logs into the host's SDK endpoint and returns a provider bound to
// its only datacenter and host.
func Dial(ctx context.Context, opts Options) (*Provider, error) {
	logger := ctxlog.FromContext(ctx)
	if opts.Port == 0 {
		opts.Port = 443
	}
	hostPort := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	logger.Debug("Connecting to ESXi host.", "host", hostPort, "insecure", opts.Insecure)

	u, err := soap.ParseURL(hostPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", hostPort, err)
	}
	soapClient := soap.NewClient(u, opts.Insecure)
	vimClient, err := vim25.NewClient(ctx, soapClient)
	if err != nil {
		return nil, fmt.Errorf("error creating a vim client for %s: %w", hostPort, err)
	}

	sm := session.NewManager(vimClient)
	if err := sm.Login(ctx, url.UserPassword(opts.Username, opts.Password)); err != nil {
		return nil, fmt.Errorf("login failed for %s: %w", hostPort, err)
	}

	p, err := New(ctx, vimClient)
	if err != nil {
		_ = sm.Logout(ctx)
		return nil, err
	}
	p.session = sm
	logger.Info("Connected to ESXi host.", "host", hostPort)
	return p, nil
}

// New binds a provider to an already authenticated client.
func New(ctx context.Context, c *vim25.Client) (*Provider, error) {
	finder := find.NewFinder(c, false)
	dc, err := finder.DefaultDatacenter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find datacenter: %w", err)
	}
	finder.SetDatacenter(dc)

	host, err := finder.DefaultHostSystem(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find host: %w", err)
	}
	root, err := finder.DefaultResourcePool(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find root resource pool: %w", err)
	}
	ns, err := host.ConfigManager().NetworkSystem(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host network system: %w", err)
	}

	p := &Provider{
		client:     c,
		finder:     finder,
		datacenter: dc,
		host:       host,
		root:       root,
		network:    ns,
	}
	p.handlers = map[string]kindHandler{
		kindResourcePool:   &poolHandler{p: p},
		kindVirtualDisk:    &diskHandler{p: p},
		kindVirtualMachine: &vmHandler{p: p},
		kindVirtualSwitch:  &switchHandler{p: p},
		kindPortGroup:      &portGroupHandler{p: p},
	}
	return p, nil
}

// Close ends the session opened by Dial.
func (p *Provider) Close(ctx context.Context) error {
	if p.session == nil {
		return nil
	}
	return p.session.Logout(ctx)
}
