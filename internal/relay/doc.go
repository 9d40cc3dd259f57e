// Package relay implements the group-scoped signaling core: connection
// registry, group membership, join authorization, signal fan-out, and the
// per-connection lifecycle that ties them together.
//
// The package is transport-agnostic. Connections are referenced by opaque
// identifiers; the transport hands the registry an Outbound handle at connect
// time and never sees it again.
package relay
