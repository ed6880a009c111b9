package loader

import (
	"fmt"
	"strings"

	"github.com/cecon-labs/codegraph/internal/graph"
)

// simplifyNodeThreshold and clusterNodeThreshold are the node-count
// breakpoints from §4.14 at which a subgraph gets progressively
// coarser for visualization callers.
const (
	simplifyNodeThreshold = 30
	clusterNodeThreshold  = 70

	// simplifyWeightThreshold is the minimum edge weight kept once
	// simplification kicks in; weighted edges below it are hidden.
	// Unweighted edges (HasWeight == false) are always kept — there is
	// no weight to compare against a threshold.
	simplifyWeightThreshold = 0.3

	// minClusterSize is the smallest sibling group clustering actually
	// collapses; a group of one is left as its original node so a
	// single outlier doesn't turn into a pointless one-node "cluster".
	minClusterSize = 2
)

// LOD is the Level-of-Detail result of applying §4.14's simplification
// and clustering passes to a graph.Subgraph.
type LOD struct {
	Nodes      []*graph.Node
	Edges      []*graph.Edge
	Simplified bool // true when low-weight edges were hidden
	Clustered  bool // true when sibling nodes were grouped into clusters
}

// Apply runs the Level-of-Detail pass over sub: subgraphs with more
// than clusterNodeThreshold nodes are clustered (sibling nodes grouped
// by (kind, path-prefix) into synthetic Cluster nodes whose edges
// aggregate the originals' weights by max); subgraphs with more than
// simplifyNodeThreshold nodes (but not enough to cluster) have edges
// below simplifyWeightThreshold hidden. Smaller subgraphs pass through
// unchanged.
func Apply(sub *graph.Subgraph) *LOD {
	if sub == nil {
		return &LOD{}
	}

	count := len(sub.Nodes)
	switch {
	case count > clusterNodeThreshold:
		nodes, edges := clusterNodes(sub.Nodes, sub.Edges)
		return &LOD{Nodes: nodes, Edges: edges, Clustered: true}
	case count > simplifyNodeThreshold:
		return &LOD{Nodes: sub.Nodes, Edges: simplifyEdges(sub.Edges), Simplified: true}
	default:
		return &LOD{Nodes: sub.Nodes, Edges: sub.Edges}
	}
}

// simplifyEdges drops weighted edges below simplifyWeightThreshold.
func simplifyEdges(edges []*graph.Edge) []*graph.Edge {
	out := make([]*graph.Edge, 0, len(edges))
	for _, e := range edges {
		if e.HasWeight && e.Weight < simplifyWeightThreshold {
			continue
		}
		out = append(out, e)
	}
	return out
}

// clusterKey groups sibling nodes by kind and path prefix.
type clusterKey struct {
	kind   graph.NodeKind
	prefix string
}

// clusterID deterministically names the synthetic node for a group.
func (k clusterKey) clusterID() string {
	return fmt.Sprintf("cluster:%s:%s", k.kind, k.prefix)
}

// clusterNodes groups nodes sharing (kind, path-prefix) into synthetic
// Cluster nodes when the group has at least minClusterSize members,
// then remaps edges onto the new node set, aggregating parallel edges
// between the same pair by max weight.
func clusterNodes(nodes []*graph.Node, edges []*graph.Edge) ([]*graph.Node, []*graph.Edge) {
	groups := make(map[clusterKey][]*graph.Node)
	for _, n := range nodes {
		key := clusterKey{kind: n.Kind, prefix: pathPrefix(n)}
		groups[key] = append(groups[key], n)
	}

	remap := make(map[string]string, len(nodes)) // original id -> effective id (self or cluster id)
	outNodes := make([]*graph.Node, 0, len(nodes))
	seenClusters := make(map[string]bool)

	for key, members := range groups {
		if len(members) < minClusterSize {
			for _, n := range members {
				remap[n.ID] = n.ID
				outNodes = append(outNodes, n)
			}
			continue
		}

		clusterID := key.clusterID()
		for _, n := range members {
			remap[n.ID] = clusterID
		}
		if !seenClusters[clusterID] {
			seenClusters[clusterID] = true
			outNodes = append(outNodes, &graph.Node{
				ID:    clusterID,
				Kind:  graph.NodeKindCluster,
				Label: fmt.Sprintf("%s (%d %s)", key.prefix, len(members), key.kind),
				Type:  string(key.kind),
				Properties: map[string]string{
					"memberCount": fmt.Sprintf("%d", len(members)),
					"pathPrefix":  key.prefix,
				},
			})
		}
	}

	type edgeKey struct{ from, to string }
	merged := make(map[edgeKey]*graph.Edge)
	order := make([]edgeKey, 0, len(edges))

	for _, e := range edges {
		from, to := remap[e.From], remap[e.To]
		if from == "" {
			from = e.From
		}
		if to == "" {
			to = e.To
		}
		if from == to {
			// Intra-cluster edge: both endpoints collapsed into the
			// same synthetic node, nothing left to draw.
			continue
		}

		ek := edgeKey{from: from, to: to}
		existing, ok := merged[ek]
		if !ok {
			cp := *e
			cp.From, cp.To = from, to
			merged[ek] = &cp
			order = append(order, ek)
			continue
		}

		if e.HasWeight && (!existing.HasWeight || e.Weight > existing.Weight) {
			existing.HasWeight = true
			existing.Weight = e.Weight
		}
	}

	outEdges := make([]*graph.Edge, 0, len(order))
	for _, ek := range order {
		outEdges = append(outEdges, merged[ek])
	}

	return outNodes, outEdges
}

// pathPrefix derives a clustering prefix from a node. File node ids are
// the file's workspace-relative path, so the prefix is its directory.
// Chunk node ids are `chunk:<basename>:<start>-<end>` (the chunk id
// format carries only the file's basename, not its directory), so the
// prefix is that basename. Entity nodes aren't file-scoped and get an
// empty prefix, grouping all entities together.
func pathPrefix(n *graph.Node) string {
	switch n.Kind {
	case graph.NodeKindFile:
		if idx := strings.LastIndex(n.ID, "/"); idx >= 0 {
			return n.ID[:idx]
		}
		return "."
	case graph.NodeKindChunk:
		parts := strings.SplitN(n.ID, ":", 3)
		if len(parts) >= 2 {
			return parts[1]
		}
		return ""
	default:
		return ""
	}
}
