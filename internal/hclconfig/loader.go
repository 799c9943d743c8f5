package hclconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Resources []*resourceBlock `hcl:"resource,block"`
	Data      []*resourceBlock `hcl:"data,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type resourceBlock struct {
	Type      string          `hcl:"type,label"`
	Name      string          `hcl:"name,label"`
	DependsOn []string        `hcl:"depends_on,optional"`
	Lifecycle *lifecycleBlock `hcl:"lifecycle,block"`
	Remain    hcl.Body        `hcl:",remain"`
	DeclRange hcl.Range       `hcl:",def_range"`
}

type lifecycleBlock struct {
	ReplaceOrder  string `hcl:"replace_order,optional"`
	CreateTimeout string `hcl:"create_timeout,optional"`
	UpdateTimeout string `hcl:"update_timeout,optional"`
	DeleteTimeout string `hcl:"delete_timeout,optional"`
	ImportID      string `hcl:"import_id,optional"`
}

type declared struct {
	file     int
	block    *resourceBlock
	mode     config.Mode
	resource *config.Resource
}

// Load parses every .hcl file found under paths and returns the model with
// declarations in file order, then source order within a file.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	var decls []*declared
	for i, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if err := checkNoExtraContent(root.Remain); err != nil {
			return nil, fmt.Errorf("in HCL file %s: %w", file, err)
		}

		for _, b := range root.Resources {
			decls = append(decls, &declared{file: i, block: b, mode: config.ManagedMode})
		}
		for _, b := range root.Data {
			decls = append(decls, &declared{file: i, block: b, mode: config.DataMode})
		}
	}

	sort.SliceStable(decls, func(i, j int) bool {
		if decls[i].file != decls[j].file {
			return decls[i].file < decls[j].file
		}
		return decls[i].block.DeclRange.Start.Byte < decls[j].block.DeclRange.Start.Byte
	})

	model := &config.Model{}
	for _, d := range decls {
		r, err := translateResource(d.block, d.mode)
		if err != nil {
			return nil, err
		}
		d.resource = r
		model.Resources = append(model.Resources, r)
	}

	if err := model.CheckNames(); err != nil {
		return nil, err
	}
	if err := checkReferenceTargets(model); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "resources", len(model.Resources))
	return model, nil
}

// checkNoExtraContent rejects top-level attributes and unknown blocks.
func checkNoExtraContent(body hcl.Body) error {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return diags
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	if len(names) > 0 {
		sort.Strings(names)
		return fmt.Errorf("unexpected top-level attributes %v", names)
	}
	return nil
}

func translateResource(b *resourceBlock, mode config.Mode) (*config.Resource, error) {
	r := &config.Resource{
		Mode:      mode,
		Type:      b.Type,
		Name:      b.Name,
		DependsOn: b.DependsOn,
		Inputs:    make(map[string]config.Expression),
		DeclRange: b.DeclRange.String(),
	}

	attrs, diags := b.Remain.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("in %s %q: %w", mode, b.Name, diags)
	}
	for name, attr := range attrs {
		expr, err := newExpression(attr.Expr)
		if err != nil {
			return nil, fmt.Errorf("%s: attribute %q of %s %q: %w", attr.Range, name, mode, b.Name, err)
		}
		r.Inputs[name] = expr
	}

	if b.Lifecycle != nil {
		lc, err := translateLifecycle(b.Lifecycle)
		if err != nil {
			return nil, fmt.Errorf("%s: lifecycle of %s %q: %w", b.DeclRange, mode, b.Name, err)
		}
		if mode == config.DataMode {
			return nil, fmt.Errorf("%s: data %q cannot declare a lifecycle block", b.DeclRange, b.Name)
		}
		r.Lifecycle = lc
	}
	return r, nil
}

func translateLifecycle(b *lifecycleBlock) (config.Lifecycle, error) {
	order, err := config.ParseReplaceOrder(b.ReplaceOrder)
	if err != nil {
		return config.Lifecycle{}, err
	}
	lc := config.Lifecycle{ReplaceOrder: order, ImportID: b.ImportID}
	for _, t := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"create_timeout", b.CreateTimeout, &lc.CreateTimeout},
		{"update_timeout", b.UpdateTimeout, &lc.UpdateTimeout},
		{"delete_timeout", b.DeleteTimeout, &lc.DeleteTimeout},
	} {
		if t.raw == "" {
			continue
		}
		d, err := time.ParseDuration(t.raw)
		if err != nil {
			return config.Lifecycle{}, fmt.Errorf("invalid %s: %w", t.name, err)
		}
		*t.dst = d
	}
	return lc, nil
}

// checkReferenceTargets verifies every traversal names a declaration of the
// matching mode and type.
func checkReferenceTargets(m *config.Model) error {
	for _, r := range m.Resources {
		for input, expr := range r.Inputs {
			he, ok := expr.(*expression)
			if !ok {
				continue
			}
			for _, t := range he.targets {
				target, ok := m.Resource(t.name)
				if !ok || target.Mode != t.mode || target.Type != t.typ {
					return fmt.Errorf("%s: attribute %q of %s refers to undeclared %s.%s.%s",
						r.DeclRange, input, r.Address(), t.mode, t.typ, t.name)
				}
			}
		}
	}
	return nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // It's not an error if a configured path doesn't exist.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return allFiles, nil
}
