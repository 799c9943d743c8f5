package vsphere

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/esxi"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

type poolHandler struct {
	p *Provider
}

// resolvePool finds a pool by its path below the root pool. "" and "/"
// name the root itself.
func (p *Provider) resolvePool(ctx context.Context, name string) (*object.ResourcePool, error) {
	name = strings.Trim(name, "/")
	if name == "" {
		return p.root, nil
	}
	return p.finder.ResourcePool(ctx, path.Join(p.root.InventoryPath, name))
}

// poolName returns the path of ref relative to the root pool.
func (p *Provider) poolName(ctx context.Context, ref types.ManagedObjectReference) (string, error) {
	if ref == p.root.Reference() {
		return "/", nil
	}
	entities, err := mo.Ancestors(ctx, p.client, p.client.ServiceContent.PropertyCollector, ref)
	if err != nil {
		return "", err
	}
	var names []string
	below := false
	for _, e := range entities {
		if below {
			names = append(names, e.Name)
		}
		if e.Self == p.root.Reference() {
			below = true
		}
	}
	if !below {
		return "", fmt.Errorf("resource pool %s is not below the root pool", ref.Value)
	}
	return strings.Join(names, "/"), nil
}

func (p *Provider) poolByID(id string) *object.ResourcePool {
	return object.NewResourcePool(p.client, types.ManagedObjectReference{Type: "ResourcePool", Value: id})
}

func decodePool(inputs property.Bag) (*esxi.ResourcePoolArgs, string, error) {
	var args esxi.ResourcePoolArgs
	if err := property.Decode(inputs, &args); err != nil {
		return nil, "", err
	}
	name, _ := args.Name.Literal()
	if name == "" || strings.HasPrefix(name, "/") {
		return nil, "", fmt.Errorf("invalid resource pool name %q", name)
	}
	return &args, name, nil
}

func (h *poolHandler) create(ctx context.Context, inputs property.Bag) (string, property.Bag, error) {
	args, name, err := decodePool(inputs)
	if err != nil {
		return "", nil, err
	}
	spec, err := poolSpec(args)
	if err != nil {
		return "", nil, err
	}

	// A pool left behind by an interrupted run is adopted.
	if existing, err := h.p.resolvePool(ctx, name); err == nil {
		ctxlog.FromContext(ctx).Info("Adopting existing resource pool.", "name", name)
		id := existing.Reference().Value
		out, err := h.update(ctx, id, inputs)
		return id, out, err
	}

	parentName, leaf := path.Split(name)
	parent, err := h.p.resolvePool(ctx, parentName)
	if err != nil {
		return "", nil, fmt.Errorf("parent resource pool %q: %w", parentName, err)
	}
	pool, err := parent.Create(ctx, leaf, *spec)
	if err != nil {
		return "", nil, fmt.Errorf("create resource pool %q: %w", name, err)
	}
	out, err := h.outputs(ctx, pool)
	return pool.Reference().Value, out, err
}

func (h *poolHandler) read(ctx context.Context, id string) (property.Bag, error) {
	return h.outputs(ctx, h.p.poolByID(id))
}

func (h *poolHandler) update(ctx context.Context, id string, inputs property.Bag) (property.Bag, error) {
	args, name, err := decodePool(inputs)
	if err != nil {
		return nil, err
	}
	spec, err := poolSpec(args)
	if err != nil {
		return nil, err
	}
	pool := h.p.poolByID(id)
	current, err := h.p.poolName(ctx, pool.Reference())
	if err != nil {
		return nil, err
	}
	if path.Dir(current) != path.Dir(name) {
		return nil, fmt.Errorf("moving resource pool %q to %q: %w", current, name, provider.ErrUnsupported)
	}
	if err := pool.UpdateConfig(ctx, path.Base(name), spec); err != nil {
		return nil, fmt.Errorf("update resource pool %q: %w", name, err)
	}
	return h.outputs(ctx, pool)
}

func (h *poolHandler) delete(ctx context.Context, id string) error {
	t, err := h.p.poolByID(id).Destroy(ctx)
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}

func (h *poolHandler) outputs(ctx context.Context, pool *object.ResourcePool) (property.Bag, error) {
	var mp mo.ResourcePool
	if err := pool.Properties(ctx, pool.Reference(), []string{"name", "config"}, &mp); err != nil {
		return nil, err
	}
	name, err := h.p.poolName(ctx, pool.Reference())
	if err != nil {
		return nil, err
	}

	out := property.Bag{"name": property.String(name)}
	allocationOutputs(out, "cpu", mp.Config.CpuAllocation)
	allocationOutputs(out, "mem", mp.Config.MemoryAllocation)
	return out, nil
}

func allocationOutputs(out property.Bag, prefix string, a types.ResourceAllocationInfo) {
	if a.Reservation != nil {
		out[prefix+"Min"] = property.Int(*a.Reservation)
	}
	if a.ExpandableReservation != nil {
		out[prefix+"MinExpandable"] = property.String(strconv.FormatBool(*a.ExpandableReservation))
	}
	if a.Limit != nil && *a.Limit >= 0 {
		out[prefix+"Max"] = property.Int(*a.Limit)
	}
	if a.Shares != nil {
		if a.Shares.Level == types.SharesLevelCustom {
			out[prefix+"Shares"] = property.String(strconv.Itoa(int(a.Shares.Shares)))
		} else {
			out[prefix+"Shares"] = property.String(string(a.Shares.Level))
		}
	}
}

func poolSpec(args *esxi.ResourcePoolArgs) (*types.ResourceConfigSpec, error) {
	cpu, err := allocation(args.CPUMin, args.CPUMinExpandable, args.CPUMax, args.CPUShares)
	if err != nil {
		return nil, fmt.Errorf("cpuShares: %w", err)
	}
	mem, err := allocation(args.MemMin, args.MemMinExpandable, args.MemMax, args.MemShares)
	if err != nil {
		return nil, fmt.Errorf("memShares: %w", err)
	}
	return &types.ResourceConfigSpec{CpuAllocation: cpu, MemoryAllocation: mem}, nil
}

func allocation(minimum *int, expandable *string, maximum *int, shares *string) (types.ResourceAllocationInfo, error) {
	a := types.ResourceAllocationInfo{
		Reservation:           types.NewInt64(0),
		ExpandableReservation: types.NewBool(true),
		Limit:                 types.NewInt64(-1),
		Shares:                &types.SharesInfo{Level: types.SharesLevelNormal},
	}
	if minimum != nil {
		a.Reservation = types.NewInt64(int64(*minimum))
	}
	if expandable != nil {
		a.ExpandableReservation = types.NewBool(*expandable == "true")
	}
	if maximum != nil {
		a.Limit = types.NewInt64(int64(*maximum))
	}
	if shares != nil {
		switch *shares {
		case "low", "normal", "high":
			a.Shares.Level = types.SharesLevel(*shares)
		default:
			n, err := strconv.Atoi(*shares)
			if err != nil {
				return a, fmt.Errorf("invalid shares %q", *shares)
			}
			a.Shares = &types.SharesInfo{Level: types.SharesLevelCustom, Shares: int32(n)}
		}
	}
	return a, nil
}
