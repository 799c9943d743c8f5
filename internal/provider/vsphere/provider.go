package vsphere

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/specialistvlad/esxigrid/internal/schema"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/task"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

const (
	kindResourcePool   = "esxi_resource_pool"
	kindVirtualDisk    = "esxi_virtual_disk"
	kindVirtualMachine = "esxi_virtual_machine"
	kindVirtualSwitch  = "esxi_virtual_switch"
	kindPortGroup      = "esxi_port_group"

	lookupVMByName = "esxi_virtual_machine"
	lookupVMByID   = "esxi_virtual_machine_by_id"
)

var _ provider.Provider = (*Provider)(nil)

func (p *Provider) handler(kind string) (kindHandler, error) {
	h, ok := p.handlers[kind]
	if !ok {
		return nil, &provider.UnknownKindError{Kind: kind}
	}
	return h, nil
}

func (p *Provider) Create(ctx context.Context, kind, name string, inputs property.Bag) (string, property.Bag, error) {
	h, err := p.handler(kind)
	if err != nil {
		return "", nil, err
	}
	return h.create(ctx, inputs)
}

func (p *Provider) Read(ctx context.Context, kind, id string) (property.Bag, error) {
	h, err := p.handler(kind)
	if err != nil {
		return nil, err
	}
	out, err := h.read(ctx, id)
	if isNotFound(err) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, provider.ErrNotFound)
	}
	return out, err
}

func (p *Provider) Update(ctx context.Context, kind, id string, inputs property.Bag) (property.Bag, error) {
	h, err := p.handler(kind)
	if err != nil {
		return nil, err
	}
	out, err := h.update(ctx, id, inputs)
	if isNotFound(err) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, provider.ErrNotFound)
	}
	return out, err
}

// Delete treats an object that is already gone as deleted.
func (p *Provider) Delete(ctx context.Context, kind, id string) error {
	h, err := p.handler(kind)
	if err != nil {
		return err
	}
	if err := h.delete(ctx, id); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (p *Provider) Diff(_ context.Context, kind, _ string, olds, news property.Bag) (provider.Diff, error) {
	if _, err := p.handler(kind); err != nil {
		return provider.Diff{}, err
	}
	return provider.DiffESXi(kind, olds, news), nil
}

func (p *Provider) Invoke(ctx context.Context, kind string, args property.Bag) (property.Bag, error) {
	var (
		vm  *object.VirtualMachine
		err error
	)
	switch kind {
	case lookupVMByName:
		name := stringInput(args, "name")
		vm, err = p.finder.VirtualMachine(ctx, name)
	case lookupVMByID:
		vm = p.vmByID(stringInput(args, "id"))
	default:
		return nil, &provider.UnknownKindError{Kind: kind}
	}
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s %v: %w", kind, args, provider.ErrNotFound)
		}
		return nil, err
	}

	h := &vmHandler{p: p}
	out, err := h.outputs(ctx, vm)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s %v: %w", kind, args, provider.ErrNotFound)
		}
		return nil, err
	}
	out[schema.IDOutput] = property.String(vm.Reference().Value)
	return out, nil
}

func stringInput(bag property.Bag, key string) string {
	if v, ok := bag[key]; ok && v.Kind() == property.KindString {
		return v.AsString()
	}
	return ""
}

// isNotFound recognises the ways govmomi reports a missing object.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, provider.ErrNotFound) {
		return true
	}
	var nf *find.NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	var noFile object.DatastoreNoSuchFileError
	if errors.As(err, &noFile) {
		return true
	}

	switch vimFault(err).(type) {
	case types.ManagedObjectNotFound, *types.ManagedObjectNotFound,
		types.NotFound, *types.NotFound,
		types.FileNotFound, *types.FileNotFound:
		return true
	}
	return false
}

func isAlreadyExists(err error) bool {
	switch vimFault(err).(type) {
	case types.FileAlreadyExists, *types.FileAlreadyExists,
		types.DuplicateName, *types.DuplicateName:
		return true
	}
	return false
}

// vimFault extracts the fault carried by a SOAP or task error.
func vimFault(err error) any {
	var taskErr task.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &taskErr):
		return taskErr.Fault()
	case soap.IsSoapFault(err):
		return soap.ToSoapFault(err).VimFault()
	case soap.IsVimFault(err):
		return soap.ToVimFault(err)
	}
	return nil
}
