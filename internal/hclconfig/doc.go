// Package hclconfig loads esxigrid configuration written in HCL.
//
// Files contain `resource "<type>" "<name>"` and `data "<type>" "<name>"`
// blocks. Attributes may reference other declarations through
// `resource.<type>.<name>.<output>` and `data.<type>.<name>.<output>`, use
// string templates, and call a small set of cty standard library functions.
package hclconfig
