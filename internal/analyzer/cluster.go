package analyzer

import (
	"math"
	"sync"
	"time"

	"netgraph-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// SignalClusterOutlier names the cluster analyzer's output signal.
const SignalClusterOutlier = "cluster_outlier"

// noClusterScore is the raw score assigned to outliers when the tick
// produced no clusters at all to measure distance against.
const noClusterScore = 0.8

// noise is the DBSCAN label for points not reachable from any core point.
const noise = -1

// ClusterAnalyzer runs a density-based (DBSCAN) pass over per-edge feature
// vectors on every analysis tick. Edges that end up in no cluster are
// reported as outliers; the raw score grows with their distance to the
// nearest cluster centroid. Epsilon and minPts are deliberate tunables, not
// derived at runtime.
type ClusterAnalyzer struct {
	eps    float64
	minPts int
	logger *logrus.Logger

	mu       sync.Mutex
	features map[string]map[string]float64
}

// NewClusterAnalyzer creates the analyzer with the given DBSCAN parameters.
func NewClusterAnalyzer(eps float64, minPts int, logger *logrus.Logger) *ClusterAnalyzer {
	return &ClusterAnalyzer{
		eps:      eps,
		minPts:   minPts,
		logger:   logger,
		features: make(map[string]map[string]float64),
	}
}

// Name identifies the analyzer as a signal source.
func (a *ClusterAnalyzer) Name() string {
	return SignalClusterOutlier
}

// edgePoint is one edge's position in feature space.
type edgePoint struct {
	key string
	vec []float64
}

// Analyze classifies the snapshot's edges and returns one AnomalyScore per
// outlier edge.
func (a *ClusterAnalyzer) Analyze(snap *model.Snapshot, now time.Time) []model.AnomalyScore {
	points, named := buildFeatures(snap)

	a.mu.Lock()
	a.features = named
	a.mu.Unlock()

	if len(points) == 0 {
		return nil
	}

	normalize(points)
	labels := a.dbscan(points)

	centroids := clusterCentroids(points, labels)

	var results []model.AnomalyScore
	for i, p := range points {
		if labels[i] != noise {
			continue
		}
		raw := noClusterScore
		if len(centroids) > 0 {
			dist := math.Inf(1)
			for _, c := range centroids {
				if d := euclidean(p.vec, c); d < dist {
					dist = d
				}
			}
			// Saturating distance transform: at the centroid the score is
			// 0, at eps it is 0.5, and it approaches 1 as the edge drifts
			// further from every cluster.
			raw = 1 - a.eps/(a.eps+dist)
		}
		results = append(results, model.AnomalyScore{
			TargetID: p.key,
			Kind:     model.KindEdge,
			Score:    raw,
			Signals: []model.Signal{
				{Name: SignalClusterOutlier, RawScore: raw, Weight: 1.0},
			},
			Timestamp: now,
		})
	}

	if len(results) > 0 {
		a.logger.Debugf("Cluster analysis: %d edges, %d clusters, %d outliers", len(points), len(centroids), len(results))
	}
	return results
}

// Features returns the most recent per-edge feature vectors, keyed by edge
// key. This is the vector handed to external scorers.
func (a *ClusterAnalyzer) Features() map[string]map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]map[string]float64, len(a.features))
	for key, fv := range a.features {
		copied := make(map[string]float64, len(fv))
		for name, v := range fv {
			copied[name] = v
		}
		out[key] = copied
	}
	return out
}

// buildFeatures turns every snapshot edge into a feature vector. Rates are
// log-scaled so a 100x byte-rate spike stays separable without letting one
// busy edge flatten the rest of the population during normalization.
func buildFeatures(snap *model.Snapshot) ([]edgePoint, map[string]map[string]float64) {
	points := make([]edgePoint, 0, len(snap.Edges))
	named := make(map[string]map[string]float64, len(snap.Edges))

	for key, edge := range snap.Edges {
		seconds := edge.LastUpdated.Sub(edge.FirstSeen).Seconds()
		if seconds < 1 {
			seconds = 1
		}
		byteRate := float64(edge.ByteCount) / seconds
		packetRate := float64(edge.PacketCount) / seconds

		fv := map[string]float64{
			"byte_rate":   byteRate,
			"packet_rate": packetRate,
			"dst_port":    float64(edge.DstPort),
			"protocol":    protocolCode(edge.Protocol),
			"duration":    seconds,
		}
		named[key] = fv

		points = append(points, edgePoint{
			key: key,
			vec: []float64{
				math.Log1p(byteRate),
				math.Log1p(packetRate),
				float64(edge.DstPort) / 65535.0,
				protocolCode(edge.Protocol),
				math.Log1p(seconds),
			},
		})
	}
	return points, named
}

func protocolCode(protocol string) float64 {
	switch protocol {
	case "TCP":
		return 0
	case "UDP":
		return 1
	case "ICMP":
		return 2
	default:
		return 3
	}
}

// normalize z-scores each dimension in place so epsilon is scale-free.
// Dimensions with no variance collapse to zero.
func normalize(points []edgePoint) {
	if len(points) == 0 {
		return
	}
	dims := len(points[0].vec)
	for d := 0; d < dims; d++ {
		var sum float64
		for _, p := range points {
			sum += p.vec[d]
		}
		mean := sum / float64(len(points))

		var sq float64
		for _, p := range points {
			diff := p.vec[d] - mean
			sq += diff * diff
		}
		stddev := math.Sqrt(sq / float64(len(points)))
		if stddev < stddevFloor {
			for _, p := range points {
				p.vec[d] = 0
			}
			continue
		}
		for _, p := range points {
			p.vec[d] = (p.vec[d] - mean) / stddev
		}
	}
}

// dbscan labels each point with a cluster id or noise. Classic semantics:
// a point is core if at least minPts points (itself included) lie within
// eps; clusters grow by expanding density-reachable points from cores.
func (a *ClusterAnalyzer) dbscan(points []edgePoint) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = noise
	}

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if euclidean(points[i].vec, points[j].vec) <= a.eps {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	visited := make([]bool, n)
	cluster := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		if len(neighbors[i]) < a.minPts {
			continue
		}

		// i is a core point: flood its density-reachable set.
		labels[i] = cluster
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == noise {
				labels[j] = cluster
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			if len(neighbors[j]) >= a.minPts {
				queue = append(queue, neighbors[j]...)
			}
		}
		cluster++
	}
	return labels
}

func clusterCentroids(points []edgePoint, labels []int) [][]float64 {
	if len(points) == 0 {
		return nil
	}
	dims := len(points[0].vec)

	sums := make(map[int][]float64)
	counts := make(map[int]int)
	for i, p := range points {
		label := labels[i]
		if label == noise {
			continue
		}
		if _, ok := sums[label]; !ok {
			sums[label] = make([]float64, dims)
		}
		for d, v := range p.vec {
			sums[label][d] += v
		}
		counts[label]++
	}

	centroids := make([][]float64, 0, len(sums))
	for label, sum := range sums {
		c := make([]float64, dims)
		for d := range sum {
			c[d] = sum[d] / float64(counts[label])
		}
		centroids = append(centroids, c)
	}
	return centroids
}

func euclidean(a, b []float64) float64 {
	var sq float64
	for i := range a {
		d := a[i] - b[i]
		sq += d * d
	}
	return math.Sqrt(sq)
}
