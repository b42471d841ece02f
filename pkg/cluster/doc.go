// Package cluster connects local registries into a peer group.
//
// Membership rides on hashicorp/memberlist gossip: every node advertises
// its name, an advisory trust zone, and the address of its registry HTTP
// API. The authoritative zone for a peer always comes from the local zone
// directory; the gossiped zone is informational only, and unknown joiners
// are treated as hostile until an operator says otherwise.
//
// The Resolver implements registry.Remote on top of the membership view.
// Any-node resolution walks the peers the zone directory permits and
// returns a proxy for the first peer that holds the name; targeted
// resolution checks the zone gate for exactly one node. Results are
// cached with a TTL, keyed by name for any-node lookups and by name@node
// for targeted ones, and evicted when the source node leaves the group.
//
// Remote handlers never cross the wire. Resolution hands back a local
// proxy implementing registry.Invoker whose invocations travel through
// the Transport to the node that holds the real handler.
package cluster
