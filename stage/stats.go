package stage

import (
	"fmt"
	"sort"
	"strings"
)

// CommonStats counts the lifecycle events of a single stage.
type CommonStats struct {
	StageType string
	NodeID    int
	Opens     int64
	Advances  int64
	Closes    int64
	Saves     int64
	Restores  int64
	IsEOF     bool
}

// Explain is one node of a human-readable plan dump: the stage's common
// stats plus stage-specific detail fields, mirrored over the tree.
type Explain struct {
	Stats    CommonStats
	Detail   map[string]string
	Children []*Explain
}

// CollectExplain builds the explain tree for a whole plan.
func CollectExplain(s PlanStage) *Explain {
	e := s.DebugExplain()
	e.Stats = *s.CommonStats()
	for _, c := range s.Children() {
		e.Children = append(e.Children, CollectExplain(c))
	}
	return e
}

// String renders the explain tree with one indented line per stage.
func (e *Explain) String() string {
	var sb strings.Builder
	e.write(&sb, 0)
	return sb.String()
}

func (e *Explain) write(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(sb, "%s (node %d) opens=%d advances=%d closes=%d saves=%d restores=%d",
		e.Stats.StageType, e.Stats.NodeID,
		e.Stats.Opens, e.Stats.Advances, e.Stats.Closes, e.Stats.Saves, e.Stats.Restores)
	if len(e.Detail) > 0 {
		keys := make([]string, 0, len(e.Detail))
		for k := range e.Detail {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(sb, " %s=%s", k, e.Detail[k])
		}
	}
	sb.WriteByte('\n')
	for _, c := range e.Children {
		c.write(sb, depth+1)
	}
}
