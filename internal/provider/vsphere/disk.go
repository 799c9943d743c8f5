package vsphere

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/specialistvlad/esxigrid/internal/esxi"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/types"
)

const gb = 1024 * 1024 // in KB

type diskHandler struct {
	p *Provider
}

// diskPath formats a datastore path such as "[ds1] vms/data.vmdk".
func diskPath(store, dir, name string) string {
	if !strings.HasSuffix(name, ".vmdk") {
		name += ".vmdk"
	}
	return fmt.Sprintf("[%s] %s", store, path.Join(dir, name))
}

// parseDiskPath splits a path made by diskPath.
func parseDiskPath(id string) (store, dir, name string, err error) {
	var p object.DatastorePath
	if !p.FromString(id) {
		return "", "", "", fmt.Errorf("invalid datastore path %q", id)
	}
	dir, file := path.Split(p.Path)
	return p.Datastore, strings.TrimSuffix(dir, "/"), strings.TrimSuffix(file, ".vmdk"), nil
}

func vdiskType(t *esxi.DiskType) types.VirtualDiskType {
	if t == nil {
		return types.VirtualDiskTypeThin
	}
	switch *t {
	case esxi.DiskTypeZeroedThick:
		return types.VirtualDiskTypePreallocated
	case esxi.DiskTypeEagerZeroedThick:
		return types.VirtualDiskTypeEagerZeroedThick
	default:
		return types.VirtualDiskTypeThin
	}
}

func (h *diskHandler) create(ctx context.Context, inputs property.Bag) (string, property.Bag, error) {
	var args esxi.VirtualDiskArgs
	if err := property.Decode(inputs, &args); err != nil {
		return "", nil, err
	}
	store, _ := args.DiskStore.Literal()
	dir, _ := args.Directory.Literal()
	name, _ := args.Name.Literal()
	size := 1
	if args.Size != nil {
		size = *args.Size
	}
	id := diskPath(store, dir, name)

	if _, err := h.read(ctx, id); err == nil {
		return id, inputs.Clone(), nil
	}

	fm := object.NewFileManager(h.p.client)
	if err := fm.MakeDirectory(ctx, fmt.Sprintf("[%s] %s", store, dir), h.p.datacenter, true); err != nil && !isAlreadyExists(err) {
		return "", nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	vdm := object.NewVirtualDiskManager(h.p.client)
	spec := &types.FileBackedVirtualDiskSpec{
		VirtualDiskSpec: types.VirtualDiskSpec{
			AdapterType: string(types.VirtualDiskAdapterTypeLsiLogic),
			DiskType:    string(vdiskType(args.DiskType)),
		},
		CapacityKb: int64(size) * gb,
	}
	t, err := vdm.CreateVirtualDisk(ctx, id, h.p.datacenter, spec)
	if err != nil {
		return "", nil, fmt.Errorf("create virtual disk %s: %w", id, err)
	}
	if err := t.Wait(ctx); err != nil {
		return "", nil, fmt.Errorf("create virtual disk %s: %w", id, err)
	}
	return id, inputs.Clone(), nil
}

// read confirms the disk exists. Its size and type are not reported by a
// datastore search, so only the identifying inputs come back.
func (h *diskHandler) read(ctx context.Context, id string) (property.Bag, error) {
	store, dir, name, err := parseDiskPath(id)
	if err != nil {
		return nil, err
	}
	ds, err := h.p.finder.Datastore(ctx, store)
	if err != nil {
		return nil, err
	}
	if _, err := ds.Stat(ctx, path.Join(dir, name+".vmdk")); err != nil {
		return nil, err
	}
	return property.Bag{
		"diskStore": property.String(store),
		"directory": property.String(dir),
		"name":      property.String(name),
	}, nil
}

// update grows the disk. Everything else forces a replacement.
func (h *diskHandler) update(ctx context.Context, id string, inputs property.Bag) (property.Bag, error) {
	var args esxi.VirtualDiskArgs
	if err := property.Decode(inputs, &args); err != nil {
		return nil, err
	}
	if _, err := h.read(ctx, id); err != nil {
		return nil, err
	}
	if args.Size != nil {
		vdm := object.NewVirtualDiskManager(h.p.client)
		t, err := vdm.ExtendVirtualDisk(ctx, id, h.p.datacenter, int64(*args.Size)*gb, nil)
		if err != nil {
			return nil, fmt.Errorf("extend virtual disk %s: %w", id, err)
		}
		if err := t.Wait(ctx); err != nil {
			return nil, fmt.Errorf("extend virtual disk %s: %w", id, err)
		}
	}
	return inputs.Clone(), nil
}

func (h *diskHandler) delete(ctx context.Context, id string) error {
	vdm := object.NewVirtualDiskManager(h.p.client)
	t, err := vdm.DeleteVirtualDisk(ctx, id, h.p.datacenter)
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}
