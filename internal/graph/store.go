package graph

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"netgraph-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// Store is the concurrency-safe host/flow graph shared by the ingestor, the
// analyzers and the pruner. Locking is sharded so ingestion from many
// sources does not serialize on a single mutex; an UpsertEdge holds the two
// endpoint node shards and the edge shard together, so no reader ever
// observes a half-updated edge.
//
// Lock order is global: node shards by index, then edge shards by index.
// Snapshot acquires every shard read lock in that order, which makes a
// snapshot a consistent cut of the graph.
type Store struct {
	ttl        time.Duration
	nodeShards []*nodeShard
	edgeShards []*edgeShard
	logger     *logrus.Logger
}

type nodeShard struct {
	mu    sync.RWMutex
	nodes map[string]*nodeEntry
}

type nodeEntry struct {
	model.Node
}

type edgeShard struct {
	mu    sync.RWMutex
	edges map[string]*model.Edge
}

// NewStore creates a graph store with the given TTL and shard count.
func NewStore(ttl time.Duration, shards int, logger *logrus.Logger) *Store {
	if shards <= 0 {
		shards = 32
	}
	s := &Store{
		ttl:        ttl,
		nodeShards: make([]*nodeShard, shards),
		edgeShards: make([]*edgeShard, shards),
		logger:     logger,
	}
	for i := 0; i < shards; i++ {
		s.nodeShards[i] = &nodeShard{nodes: make(map[string]*nodeEntry)}
		s.edgeShards[i] = &edgeShard{edges: make(map[string]*model.Edge)}
	}
	return s
}

// TTL returns the configured time-to-live for graph elements.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.nodeShards)))
}

// UpsertEdge creates or updates the two endpoint nodes and the coalesced
// edge for a flow. Weight accumulates by the flow's byte count; repeated
// flows between the same pair within the TTL window end up as one edge.
// The record's end time (or start time) advances lastSeen/lastUpdated.
func (s *Store) UpsertEdge(flow model.FlowRecord) (model.Node, model.Node, model.Edge) {
	now := flow.EndTime
	if now.IsZero() {
		now = flow.StartTime
	}

	lo, hi := model.EdgeKey(flow.SrcIP, flow.DstIP)
	edgeKey := lo + "|" + hi

	si := s.shardIndex(flow.SrcIP)
	di := s.shardIndex(flow.DstIP)
	ei := s.shardIndex(edgeKey)

	locked := s.lockShards(si, di, ei)
	defer s.unlockShards(locked, ei)

	src := s.touchNode(si, flow.SrcIP, now)
	dst := s.touchNode(di, flow.DstIP, now)

	es := s.edgeShards[ei]
	edge, ok := es.edges[edgeKey]
	if !ok {
		edge = &model.Edge{
			Source:      flow.SrcIP,
			Destination: flow.DstIP,
			Protocol:    flow.Protocol,
			DstPort:     flow.DstPort,
			FirstSeen:   now,
		}
		es.edges[edgeKey] = edge
		src.Degree++
		dst.Degree++
	}
	edge.ByteCount += flow.Bytes
	edge.PacketCount += flow.Packets
	edge.FlowCount++
	edge.Weight += flow.Bytes
	if now.After(edge.LastUpdated) {
		edge.LastUpdated = now
	}

	return src.Node, dst.Node, *edge
}

// lockShards write-locks the two node shards (deduplicated, in index order)
// and the edge shard, and returns the node shard indexes that were locked.
func (s *Store) lockShards(si, di, ei int) []int {
	locked := make([]int, 0, 2)
	if si > di {
		si, di = di, si
	}
	s.nodeShards[si].mu.Lock()
	locked = append(locked, si)
	if di != si {
		s.nodeShards[di].mu.Lock()
		locked = append(locked, di)
	}
	s.edgeShards[ei].mu.Lock()
	return locked
}

func (s *Store) unlockShards(nodeIdx []int, ei int) {
	s.edgeShards[ei].mu.Unlock()
	for i := len(nodeIdx) - 1; i >= 0; i-- {
		s.nodeShards[nodeIdx[i]].mu.Unlock()
	}
}

// touchNode must be called with the node's shard lock held.
func (s *Store) touchNode(shard int, id string, now time.Time) *nodeEntry {
	ns := s.nodeShards[shard]
	entry, ok := ns.nodes[id]
	if !ok {
		entry = &nodeEntry{Node: model.Node{ID: id, FirstSeen: now}}
		ns.nodes[id] = entry
	}
	if now.After(entry.LastSeen) {
		entry.LastSeen = now
	}
	entry.FlowCount++
	return entry
}

// Snapshot returns a consistent read-only copy of the graph. The copy is
// shallow (value copies of nodes and edges), so holding all shard read locks
// is brief even for large graphs.
//
// Every edge in a snapshot has both endpoints in the same snapshot's node
// set; a dangling edge is dropped from the copy and reported as a snapshot
// inconsistency so the caller can skip the tick.
func (s *Store) Snapshot() (*model.Snapshot, error) {
	for _, ns := range s.nodeShards {
		ns.mu.RLock()
	}
	for _, es := range s.edgeShards {
		es.mu.RLock()
	}
	defer func() {
		for i := len(s.edgeShards) - 1; i >= 0; i-- {
			s.edgeShards[i].mu.RUnlock()
		}
		for i := len(s.nodeShards) - 1; i >= 0; i-- {
			s.nodeShards[i].mu.RUnlock()
		}
	}()

	snap := &model.Snapshot{
		Nodes:   make(map[string]model.Node),
		Edges:   make(map[string]model.Edge),
		TakenAt: time.Now(),
	}
	for _, ns := range s.nodeShards {
		for id, entry := range ns.nodes {
			snap.Nodes[id] = entry.Node
		}
	}

	var dangling int
	for _, es := range s.edgeShards {
		for key, edge := range es.edges {
			if _, ok := snap.Nodes[edge.Source]; !ok {
				dangling++
				continue
			}
			if _, ok := snap.Nodes[edge.Destination]; !ok {
				dangling++
				continue
			}
			snap.Edges[key] = *edge
		}
	}

	if dangling > 0 {
		return snap, fmt.Errorf("%w: %d dangling edges dropped from snapshot", model.ErrSnapshotInconsistency, dangling)
	}
	return snap, nil
}

// Prune removes edges not updated within the TTL, then nodes that are both
// stale and isolated. Edge removal runs first so a node never loses its
// edges after it was already evicted. Safe to call concurrently with
// ingestion and snapshotting.
func (s *Store) Prune(now time.Time) (prunedNodes, prunedEdges int) {
	cutoff := now.Add(-s.ttl)

	// Pass 1: drop stale edges, remember their endpoints.
	endpoints := make(map[string]int)
	for _, es := range s.edgeShards {
		es.mu.Lock()
		for key, edge := range es.edges {
			if edge.LastUpdated.Before(cutoff) {
				delete(es.edges, key)
				endpoints[edge.Source]++
				endpoints[edge.Destination]++
				prunedEdges++
			}
		}
		es.mu.Unlock()
	}

	// Pass 2: decrement degrees for the removed edges.
	for id, n := range endpoints {
		ns := s.nodeShards[s.shardIndex(id)]
		ns.mu.Lock()
		if entry, ok := ns.nodes[id]; ok {
			entry.Degree -= n
			if entry.Degree < 0 {
				entry.Degree = 0
			}
		}
		ns.mu.Unlock()
	}

	// Pass 3: drop stale isolated nodes.
	for _, ns := range s.nodeShards {
		ns.mu.Lock()
		for id, entry := range ns.nodes {
			if entry.Degree == 0 && entry.LastSeen.Before(cutoff) {
				delete(ns.nodes, id)
				prunedNodes++
			}
		}
		ns.mu.Unlock()
	}

	if prunedNodes > 0 || prunedEdges > 0 {
		s.logger.Debugf("Pruned %d edges and %d isolated nodes", prunedEdges, prunedNodes)
	}
	return prunedNodes, prunedEdges
}

// UpdateCentrality writes the analyzer's most recent centrality scores back
// onto the nodes, so snapshots carry each node's last computed value. Scores
// for nodes evicted since the analysis snapshot are dropped silently.
func (s *Store) UpdateCentrality(scores map[string]float64) {
	for id, score := range scores {
		ns := s.nodeShards[s.shardIndex(id)]
		ns.mu.Lock()
		if entry, ok := ns.nodes[id]; ok {
			entry.CentralityScore = score
		}
		ns.mu.Unlock()
	}
}

// Stats returns the current node and edge totals.
func (s *Store) Stats() (nodes, edges int) {
	for _, ns := range s.nodeShards {
		ns.mu.RLock()
		nodes += len(ns.nodes)
		ns.mu.RUnlock()
	}
	for _, es := range s.edgeShards {
		es.mu.RLock()
		edges += len(es.edges)
		es.mu.RUnlock()
	}
	return nodes, edges
}
