package vsphere

import (
	"context"
	"fmt"

	"github.com/specialistvlad/esxigrid/internal/esxi"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

type switchHandler struct {
	p *Provider
}

type portGroupHandler struct {
	p *Provider
}

func (p *Provider) networkInfo(ctx context.Context) (*types.HostNetworkInfo, error) {
	var mns mo.HostNetworkSystem
	if err := p.network.Properties(ctx, p.network.Reference(), []string{"networkInfo"}, &mns); err != nil {
		return nil, err
	}
	if mns.NetworkInfo == nil {
		return &types.HostNetworkInfo{}, nil
	}
	return mns.NetworkInfo, nil
}

func (p *Provider) findSwitch(ctx context.Context, name string) (*types.HostVirtualSwitch, error) {
	info, err := p.networkInfo(ctx)
	if err != nil {
		return nil, err
	}
	for i := range info.Vswitch {
		if info.Vswitch[i].Name == name {
			return &info.Vswitch[i], nil
		}
	}
	return nil, fmt.Errorf("virtual switch %q: %w", name, provider.ErrNotFound)
}

func (p *Provider) findPortGroup(ctx context.Context, name string) (*types.HostPortGroup, error) {
	info, err := p.networkInfo(ctx)
	if err != nil {
		return nil, err
	}
	for i := range info.Portgroup {
		if info.Portgroup[i].Spec.Name == name {
			return &info.Portgroup[i], nil
		}
	}
	return nil, fmt.Errorf("port group %q: %w", name, provider.ErrNotFound)
}

func switchSpec(inputs property.Bag) (string, *types.HostVirtualSwitchSpec, error) {
	var args esxi.VirtualSwitchArgs
	if err := property.Decode(inputs, &args); err != nil {
		return "", nil, err
	}
	name, _ := args.Name.Literal()
	spec := &types.HostVirtualSwitchSpec{
		NumPorts: 128,
		Mtu:      1500,
		Policy: &types.HostNetworkPolicy{
			Security: &types.HostNetworkSecurityPolicy{
				AllowPromiscuous: types.NewBool(args.PromiscuousMode != nil && *args.PromiscuousMode),
				MacChanges:       types.NewBool(args.MacChanges != nil && *args.MacChanges),
				ForgedTransmits:  types.NewBool(args.ForgedTransmits != nil && *args.ForgedTransmits),
			},
		},
	}
	if args.Ports != nil {
		spec.NumPorts = int32(*args.Ports)
	}
	if args.MTU != nil {
		spec.Mtu = int32(*args.MTU)
	}
	if len(args.Uplinks) > 0 {
		mode := esxi.LinkDiscoveryMode("listen")
		if args.LinkDiscoveryMode != nil {
			mode = *args.LinkDiscoveryMode
		}
		bridge := &types.HostVirtualSwitchBondBridge{
			LinkDiscoveryProtocolConfig: &types.LinkDiscoveryProtocolConfig{
				Protocol:  "cdp",
				Operation: string(mode),
			},
		}
		for _, u := range args.Uplinks {
			bridge.NicDevice = append(bridge.NicDevice, u.Name)
		}
		spec.Bridge = bridge
	}
	return name, spec, nil
}

func switchOutputs(sw *types.HostVirtualSwitch) property.Bag {
	ports, mtu := sw.NumPorts, sw.Mtu
	if ports == 0 {
		ports = sw.Spec.NumPorts
	}
	if mtu == 0 {
		mtu = sw.Spec.Mtu
	}
	out := property.Bag{
		"name":  property.String(sw.Name),
		"ports": property.Int(int64(ports)),
		"mtu":   property.Int(int64(mtu)),
	}
	if pol := sw.Spec.Policy; pol != nil && pol.Security != nil {
		sec := pol.Security
		out["promiscuousMode"] = property.Bool(sec.AllowPromiscuous != nil && *sec.AllowPromiscuous)
		out["macChanges"] = property.Bool(sec.MacChanges != nil && *sec.MacChanges)
		out["forgedTransmits"] = property.Bool(sec.ForgedTransmits != nil && *sec.ForgedTransmits)
	}
	if bridge, ok := sw.Spec.Bridge.(*types.HostVirtualSwitchBondBridge); ok {
		uplinks := make([]property.Value, 0, len(bridge.NicDevice))
		for _, nic := range bridge.NicDevice {
			uplinks = append(uplinks, property.Map(map[string]property.Value{"name": property.String(nic)}))
		}
		out["uplinks"] = property.List(uplinks...)
		if ldp := bridge.LinkDiscoveryProtocolConfig; ldp != nil {
			out["linkDiscoveryMode"] = property.String(ldp.Operation)
		}
	}
	return out
}

func (h *switchHandler) create(ctx context.Context, inputs property.Bag) (string, property.Bag, error) {
	name, spec, err := switchSpec(inputs)
	if err != nil {
		return "", nil, err
	}
	if _, err := h.p.findSwitch(ctx, name); err == nil {
		out, err := h.update(ctx, name, inputs)
		return name, out, err
	}
	if err := h.p.network.AddVirtualSwitch(ctx, name, spec); err != nil {
		return "", nil, fmt.Errorf("add virtual switch %q: %w", name, err)
	}
	out, err := h.read(ctx, name)
	return name, out, err
}

func (h *switchHandler) read(ctx context.Context, id string) (property.Bag, error) {
	sw, err := h.p.findSwitch(ctx, id)
	if err != nil {
		return nil, err
	}
	return switchOutputs(sw), nil
}

func (h *switchHandler) update(ctx context.Context, id string, inputs property.Bag) (property.Bag, error) {
	_, spec, err := switchSpec(inputs)
	if err != nil {
		return nil, err
	}
	if _, err := h.p.findSwitch(ctx, id); err != nil {
		return nil, err
	}
	if err := h.p.network.UpdateVirtualSwitch(ctx, id, *spec); err != nil {
		return nil, fmt.Errorf("update virtual switch %q: %w", id, err)
	}
	return h.read(ctx, id)
}

func (h *switchHandler) delete(ctx context.Context, id string) error {
	if _, err := h.p.findSwitch(ctx, id); err != nil {
		return err
	}
	return h.p.network.RemoveVirtualSwitch(ctx, id)
}

// tristate maps "true"/"false" to a policy flag and "" to inherit.
func tristate(s *string) *bool {
	if s == nil || *s == "" {
		return nil
	}
	return types.NewBool(*s == "true")
}

func fromTristate(b *bool) property.Value {
	if b == nil {
		return property.String("")
	}
	if *b {
		return property.String("true")
	}
	return property.String("false")
}

func portGroupSpec(inputs property.Bag) (types.HostPortGroupSpec, error) {
	var args esxi.PortGroupArgs
	if err := property.Decode(inputs, &args); err != nil {
		return types.HostPortGroupSpec{}, err
	}
	name, _ := args.Name.Literal()
	vswitch, _ := args.VSwitch.Literal()
	spec := types.HostPortGroupSpec{
		Name:        name,
		VswitchName: vswitch,
		Policy: types.HostNetworkPolicy{
			Security: &types.HostNetworkSecurityPolicy{
				AllowPromiscuous: tristate(args.PromiscuousMode),
				MacChanges:       tristate(args.MacChanges),
				ForgedTransmits:  tristate(args.ForgedTransmits),
			},
		},
	}
	if args.VLAN != nil {
		spec.VlanId = int32(*args.VLAN)
	}
	return spec, nil
}

func portGroupOutputs(pg *types.HostPortGroup) property.Bag {
	out := property.Bag{
		"name":    property.String(pg.Spec.Name),
		"vSwitch": property.String(pg.Spec.VswitchName),
		"vlan":    property.Int(int64(pg.Spec.VlanId)),
	}
	if sec := pg.Spec.Policy.Security; sec != nil {
		out["promiscuousMode"] = fromTristate(sec.AllowPromiscuous)
		out["macChanges"] = fromTristate(sec.MacChanges)
		out["forgedTransmits"] = fromTristate(sec.ForgedTransmits)
	}
	return out
}

func (h *portGroupHandler) create(ctx context.Context, inputs property.Bag) (string, property.Bag, error) {
	spec, err := portGroupSpec(inputs)
	if err != nil {
		return "", nil, err
	}
	if _, err := h.p.findPortGroup(ctx, spec.Name); err == nil {
		out, err := h.update(ctx, spec.Name, inputs)
		return spec.Name, out, err
	}
	if err := h.p.network.AddPortGroup(ctx, spec); err != nil {
		return "", nil, fmt.Errorf("add port group %q: %w", spec.Name, err)
	}
	out, err := h.read(ctx, spec.Name)
	return spec.Name, out, err
}

func (h *portGroupHandler) read(ctx context.Context, id string) (property.Bag, error) {
	pg, err := h.p.findPortGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	return portGroupOutputs(pg), nil
}

func (h *portGroupHandler) update(ctx context.Context, id string, inputs property.Bag) (property.Bag, error) {
	spec, err := portGroupSpec(inputs)
	if err != nil {
		return nil, err
	}
	if _, err := h.p.findPortGroup(ctx, id); err != nil {
		return nil, err
	}
	if err := h.p.network.UpdatePortGroup(ctx, id, spec); err != nil {
		return nil, fmt.Errorf("update port group %q: %w", id, err)
	}
	return h.read(ctx, id)
}

func (h *portGroupHandler) delete(ctx context.Context, id string) error {
	if _, err := h.p.findPortGroup(ctx, id); err != nil {
		return err
	}
	return h.p.network.RemovePortGroup(ctx, id)
}
