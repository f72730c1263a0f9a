package model

import "time"

// Node represents a host in the traffic graph, keyed by address.
type Node struct {
	ID              string    `json:"id"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	FlowCount       int64     `json:"flow_count"`
	Degree          int       `json:"degree"`
	CentralityScore float64   `json:"centrality_score"`
}

// Edge represents the coalesced traffic between two hosts within the current
// TTL window. Undirected for analytics; source/destination are retained for
// display. Repeated flows between the same pair accumulate into one edge.
type Edge struct {
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Protocol    string    `json:"protocol"`
	DstPort     uint16    `json:"dst_port"`
	ByteCount   int64     `json:"byte_count"`
	PacketCount int64     `json:"packet_count"`
	FlowCount   int64     `json:"flow_count"`
	Weight      int64     `json:"weight"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

// EdgeKey returns the undirected identity of a host pair: the pair ordered
// lexicographically so that (a,b) and (b,a) coalesce.
func EdgeKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Key returns the edge's undirected identity as a single string.
func (e *Edge) Key() string {
	lo, hi := EdgeKey(e.Source, e.Destination)
	return lo + "|" + hi
}

// Snapshot is a consistent, read-only copy of the graph at one instant.
// Analyzers operate only on snapshots and never touch the live store.
type Snapshot struct {
	Nodes   map[string]Node `json:"nodes"`
	Edges   map[string]Edge `json:"edges"`
	TakenAt time.Time       `json:"taken_at"`
}

// GraphStats are the cheap aggregate counts exposed by the snapshot query.
type GraphStats struct {
	TotalNodes            int `json:"totalNodes"`
	TotalEdges            int `json:"totalEdges"`
	SuspiciousConnections int `json:"suspiciousConnections"`
}
