package schema

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/esxigrid/internal/property"
)

type manifestFile struct {
	Resources []*kindBlock `hcl:"resource,block"`
	Data      []*kindBlock `hcl:"data,block"`
}

type kindBlock struct {
	Type        string         `hcl:"type,label"`
	Token       string         `hcl:"token"`
	Description string         `hcl:"description,optional"`
	AutoName    *autoNameBlock `hcl:"auto_name,block"`
	Inputs      []*inputBlock  `hcl:"input,block"`
	Outputs     []*outputBlock `hcl:"output,block"`
}

type autoNameBlock struct {
	Property  string `hcl:"property,optional"`
	MinLength int    `hcl:"min_length"`
	MaxLength int    `hcl:"max_length"`
}

type inputBlock struct {
	Name         string         `hcl:"name,label"`
	Type         hcl.Expression `hcl:"type"`
	Description  string         `hcl:"description,optional"`
	Default      hcl.Expression `hcl:"default,optional"`
	Required     bool           `hcl:"required,optional"`
	OneOf        []string       `hcl:"one_of,optional"`
	AllowInteger bool           `hcl:"allow_integer,optional"`
	Min          *float64       `hcl:"min,optional"`
	Max          *float64       `hcl:"max,optional"`
	MaxItems     int            `hcl:"max_items,optional"`
	ItemRequired []string       `hcl:"item_required,optional"`
	ForbidPrefix string         `hcl:"forbid_prefix,optional"`
}

type outputBlock struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
}

// Parse reads a kind manifest written in HCL.
func Parse(filename string, src []byte) (*Table, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing manifest %s: %w", filename, diags)
	}

	var mf manifestFile
	if diags := gohcl.DecodeBody(file.Body, nil, &mf); diags.HasErrors() {
		return nil, fmt.Errorf("decoding manifest %s: %w", filename, diags)
	}

	t := &Table{
		resources: make(map[string]*Kind, len(mf.Resources)),
		lookups:   make(map[string]*Kind, len(mf.Data)),
	}
	for _, kb := range mf.Resources {
		k, err := translateKind(kb, false)
		if err != nil {
			return nil, err
		}
		if _, dup := t.resources[k.Type]; dup {
			return nil, fmt.Errorf("resource kind %q declared twice", k.Type)
		}
		t.resources[k.Type] = k
	}
	for _, kb := range mf.Data {
		k, err := translateKind(kb, true)
		if err != nil {
			return nil, err
		}
		if _, dup := t.lookups[k.Type]; dup {
			return nil, fmt.Errorf("data kind %q declared twice", k.Type)
		}
		t.lookups[k.Type] = k
	}
	return t, nil
}

func translateKind(kb *kindBlock, lookup bool) (*Kind, error) {
	k := &Kind{
		Type:        kb.Type,
		Token:       kb.Token,
		Description: kb.Description,
		Lookup:      lookup,
		inputByName: make(map[string]*Input, len(kb.Inputs)),
		outputs:     make(map[string]*Output, len(kb.Outputs)),
	}

	for _, ib := range kb.Inputs {
		in, err := translateInput(ib)
		if err != nil {
			return nil, fmt.Errorf("kind %q, input %q: %w", kb.Type, ib.Name, err)
		}
		if _, dup := k.inputByName[in.Name]; dup {
			return nil, fmt.Errorf("kind %q: input %q declared twice", kb.Type, in.Name)
		}
		k.inputs = append(k.inputs, in)
		k.inputByName[in.Name] = in
	}

	for _, ob := range kb.Outputs {
		typ, err := typeExprToCtyType(ob.Type)
		if err != nil {
			return nil, fmt.Errorf("kind %q, output %q: %w", kb.Type, ob.Name, err)
		}
		k.outputs[ob.Name] = &Output{Name: ob.Name, Type: typ, Description: ob.Description}
	}

	if kb.AutoName != nil {
		an := &AutoName{
			Property:  kb.AutoName.Property,
			MinLength: kb.AutoName.MinLength,
			MaxLength: kb.AutoName.MaxLength,
		}
		if an.Property == "" {
			an.Property = "name"
		}
		if _, ok := k.inputByName[an.Property]; !ok {
			return nil, fmt.Errorf("kind %q: auto_name property %q is not an input", kb.Type, an.Property)
		}
		if an.MinLength > an.MaxLength {
			return nil, fmt.Errorf("kind %q: auto_name min_length exceeds max_length", kb.Type)
		}
		k.AutoName = an
	}
	return k, nil
}

func translateInput(ib *inputBlock) (*Input, error) {
	typ, err := typeExprToCtyType(ib.Type)
	if err != nil {
		return nil, err
	}

	in := &Input{
		Name:         ib.Name,
		Type:         typ,
		Description:  ib.Description,
		Required:     ib.Required,
		OneOf:        ib.OneOf,
		AllowInteger: ib.AllowInteger,
		Min:          ib.Min,
		Max:          ib.Max,
		MaxItems:     ib.MaxItems,
		ItemRequired: ib.ItemRequired,
		ForbidPrefix: ib.ForbidPrefix,
	}

	if isExprDefined(ib.Default) {
		cv, diags := ib.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default: %w", diags)
		}
		v, err := property.FromCty(cv)
		if err != nil {
			return nil, fmt.Errorf("invalid default: %w", err)
		}
		if err := property.Conform(v, typ, ib.Name); err != nil {
			return nil, fmt.Errorf("default does not match type: %w", err)
		}
		if !v.IsNull() {
			in.Default = &v
		}
	}
	return in, nil
}

// isExprDefined reports whether an optional attribute was written in the
// source. gohcl fills omitted optional expressions with a zero-width
// placeholder, so a nil check alone is not enough.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}
