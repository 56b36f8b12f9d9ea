package crawler

import "github.com/tokengraph/transfer-indexer/pkg/graph"

// StepEvent describes one resolved depth of the crawl. Resumed is true when
// the depth was loaded from a checkpoint rather than freshly expanded.
type StepEvent struct {
	Depth        int   `json:"depth"`
	TotalNodes   int   `json:"total_nodes"`
	TreeSize     int   `json:"tree_size"`
	FrontierSize int   `json:"frontier_size"`
	Resumed      bool  `json:"resumed"`
	Token        Token `json:"token"`
}

// Observer is notified after every resolved depth. The root is the live tree
// the crawler keeps extending, so observers must treat it as read-only.
type Observer func(event StepEvent, root *graph.Node)
