// Package esxi holds typed arguments for the built-in ESXi kinds and helpers
// that declare them on a config.Stack.
//
//	s := config.NewStack()
//	pool1, _ := esxi.Declare(s, "pool1", &esxi.ResourcePoolArgs{})
//	esxi.Declare(s, "pool2", &esxi.ResourcePoolArgs{
//		Name: property.From[string](pool1.Output("name")),
//	})
//
// Encoding follows the property codec: unset fields are omitted so kind
// defaults apply, explicit empties are sent as given.
package esxi
