// Package schema holds the per-kind input/output tables that drive default
// injection and validation.
//
// Tables are described in HCL (see manifest/kinds.hcl) and are immutable
// once loaded, so a single Table may be shared by any number of concurrent
// readers.
package schema
