// Package filter provides the optional monitor-port packet filter hook,
// grounded on original_source's server/switch/filter.h/filter.cc.
package filter

import "vnetswitch/request"

// Func decides whether a request being mirrored to the monitor port
// should be filtered out. true means "do not mirror this frame".
//
// original_source's example filter inspects the EtherType and always
// lets ARP through; Func is given the whole parsed Request rather than
// a raw buffer so an implementation can make the same kind of decision
// without re-parsing the frame.
type Func func(req *request.Request) bool

// AllowAll is the default filter: it never filters anything out,
// matching original_source's inline fallback when no filter is
// configured.
func AllowAll(*request.Request) bool { return false }
