package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"netgraph-guard/internal/alert"
	"netgraph-guard/internal/graph"
	"netgraph-guard/internal/model"
	"netgraph-guard/internal/pipeline"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Handlers serves the read-only query endpoints over the live engine.
type Handlers struct {
	store       *graph.Store
	pipe        *pipeline.Pipeline
	emitter     *alert.Emitter
	broadcaster *alert.Broadcaster

	snapshotInterval time.Duration
	upgrader         websocket.Upgrader
	logger           *logrus.Logger
}

// NewHandlers wires the handlers to the engine components.
func NewHandlers(store *graph.Store, pipe *pipeline.Pipeline, emitter *alert.Emitter,
	broadcaster *alert.Broadcaster, snapshotInterval time.Duration, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:            store,
		pipe:             pipe,
		emitter:          emitter,
		broadcaster:      broadcaster,
		snapshotInterval: snapshotInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// graphResponse is the snapshot wire shape. The edge list field is named
// "edges"; dashboard consumers that want a d3 force layout transform it to
// "links" on their side.
type graphResponse struct {
	Nodes []model.Node     `json:"nodes"`
	Edges []model.Edge     `json:"edges"`
	Stats model.GraphStats `json:"stats"`
}

func (h *Handlers) buildGraphResponse() (*graphResponse, error) {
	snap, err := h.store.Snapshot()
	if err != nil {
		return nil, err
	}

	nodes := make([]model.Node, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]model.Edge, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Destination < edges[j].Destination
	})

	return &graphResponse{
		Nodes: nodes,
		Edges: edges,
		Stats: model.GraphStats{
			TotalNodes:            len(nodes),
			TotalEdges:            len(edges),
			SuspiciousConnections: h.emitter.ActiveTargets(time.Now(), h.store.TTL()),
		},
	}, nil
}

// GetGraph returns the current graph snapshot with aggregate stats.
func (h *Handlers) GetGraph(w http.ResponseWriter, r *http.Request) {
	resp, err := h.buildGraphResponse()
	if err != nil {
		h.logger.Errorf("Graph snapshot failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "graph snapshot unavailable")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAlerts returns recent alerts, newest first, optionally filtered by
// severity.
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	severity := r.URL.Query().Get("severity")

	alerts := h.emitter.Recent(0)
	filtered := make([]model.Alert, 0, limit)
	for _, a := range alerts {
		if severity != "" && string(a.Severity) != severity {
			continue
		}
		filtered = append(filtered, a)
		if len(filtered) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": filtered,
		"total": len(filtered),
	})
}

// GetStatus returns engine health, counters and degradation reasons.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipe.Status())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
