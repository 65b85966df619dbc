package query

import (
	"github.com/poiesic/docquery/ai"
	"github.com/poiesic/docquery/core"
)

// QueryMonitor provides hooks to observe the answer process.
// Implement this interface to track intermediate steps during retrieval and
// answering.
type QueryMonitor interface {
	Start(query string)
	AfterQueryEmbedding(vector []float32)
	AfterRetrieval(hits []core.ScoredSegment)
	AfterPrompt(messages []ai.Message)
	Finish(answer string)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                        {}
func (n *noopMonitor) AfterQueryEmbedding(_ []float32)       {}
func (n *noopMonitor) AfterRetrieval(_ []core.ScoredSegment) {}
func (n *noopMonitor) AfterPrompt(_ []ai.Message)            {}
func (n *noopMonitor) Finish(_ string)                       {}
