// Package order holds the immutable order model of the kernel: transport
// orders, their drive orders, order sequences and the route, destination and
// rejection values they carry. Every mutation returns a new value.
package order

import (
	"maps"
	"time"
)

// Kind names the class of object a reference points at.
type Kind string

const (
	KindPoint          Kind = "point"
	KindLocation       Kind = "location"
	KindPath           Kind = "path"
	KindVehicle        Kind = "vehicle"
	KindTransportOrder Kind = "transport_order"
	KindOrderSequence  Kind = "order_sequence"
)

// Ref is a typed reference to a named object.
type Ref struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

func (r Ref) String() string { return string(r.Kind) + ":" + r.Name }

// InfiniteFuture stands in for "no deadline" and "not finished yet".
var InfiniteFuture = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

func cloneProps(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}

// withProp returns a copy of m with key set. An empty value removes the key.
func withProp(m map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(m)+1)
	maps.Copy(out, m)
	if value == "" {
		delete(out, key)
	} else {
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func insertString(list []string, s string) []string {
	out := make([]string, len(list), len(list)+1)
	copy(out, list)
	return append(out, s)
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
