package relay

import (
	"hash/fnv"
	"sort"
	"sync"
)

const tableShards = 32

// Table is the membership relation between connections and groups. Both
// directions are indexed: connection→groups drives cleanup, group→members
// drives fan-out.
//
// Each index is striped across fixed shards so independent connections and
// independent groups do not contend on one lock. Operations that touch both
// indexes always lock the connection shard before the group shard, so the two
// stripe sets cannot deadlock against each other.
type Table struct {
	conns  [tableShards]indexShard // connection id → set of group names
	groups [tableShards]indexShard // group name → set of connection ids
}

type indexShard struct {
	mu sync.RWMutex
	m  map[string]map[string]struct{}
}

func NewTable() *Table {
	t := &Table{}
	for i := range t.conns {
		t.conns[i].m = make(map[string]map[string]struct{})
	}
	for i := range t.groups {
		t.groups[i].m = make(map[string]map[string]struct{})
	}
	return t
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % tableShards
}

func (t *Table) connShard(connID string) *indexShard { return &t.conns[shardFor(connID)] }
func (t *Table) groupShard(group string) *indexShard { return &t.groups[shardFor(group)] }

// Join adds the (connection, group) relation. Idempotent.
func (t *Table) Join(connID, group string) {
	cs := t.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	set := cs.m[connID]
	if set == nil {
		set = make(map[string]struct{})
		cs.m[connID] = set
	}
	set[group] = struct{}{}

	gs := t.groupShard(group)
	gs.mu.Lock()
	members := gs.m[group]
	if members == nil {
		members = make(map[string]struct{})
		gs.m[group] = members
	}
	members[connID] = struct{}{}
	gs.mu.Unlock()
}

// Leave removes the relation if present. Idempotent.
func (t *Table) Leave(connID, group string) {
	cs := t.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if set := cs.m[connID]; set != nil {
		delete(set, group)
		if len(set) == 0 {
			delete(cs.m, connID)
		}
	}

	t.removeMember(group, connID)
}

// IsMember reports whether the connection currently belongs to the group.
func (t *Table) IsMember(connID, group string) bool {
	cs := t.connShard(connID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.m[connID][group]
	return ok
}

// GroupsOf returns a snapshot of the groups the connection belongs to.
func (t *Table) GroupsOf(connID string) []string {
	cs := t.connShard(connID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return sortedKeys(cs.m[connID])
}

// MembersOf returns a snapshot of the group's member connection ids,
// excluding the given connection.
func (t *Table) MembersOf(group, excluding string) []string {
	gs := t.groupShard(group)
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	members := gs.m[group]
	out := make([]string, 0, len(members))
	for id := range members {
		if id != excluding {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// PurgeConnection removes the connection from every group it belongs to and
// returns the groups it was removed from. Idempotent; a second purge returns
// nil. The connection's entry is removed in one critical section, so a purge
// racing other operations on the same connection observes either all of its
// memberships or none.
func (t *Table) PurgeConnection(connID string) []string {
	cs := t.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	set := cs.m[connID]
	if set == nil {
		return nil
	}
	delete(cs.m, connID)

	groups := sortedKeys(set)
	for _, group := range groups {
		t.removeMember(group, connID)
	}
	return groups
}

// removeMember drops connID from the group's member set. Callers hold the
// connection shard lock, preserving the conn→group lock order.
func (t *Table) removeMember(group, connID string) {
	gs := t.groupShard(group)
	gs.mu.Lock()
	if members := gs.m[group]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(gs.m, group)
		}
	}
	gs.mu.Unlock()
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
