// Package window keeps the registry of host windows.
//
// Windows are identified by opaque "win_<ulid>" IDs and carry a
// non-unique name. Several windows may share a name; name lookups return
// them in registration order.
package window
