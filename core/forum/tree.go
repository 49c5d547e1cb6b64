package forum

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrCycleDetected marks a reply whose parent chain loops back on itself.
	ErrCycleDetected = errors.New("reply cycle detected")
	// ErrInvalidInput marks a reply that cannot be placed in a thread (missing or duplicate id).
	ErrInvalidInput = errors.New("invalid reply")
)

type (
	// Node is a reply placed in a thread.
	Node struct {
		Reply
		ReplyCount int     `json:"reply_count"` // all descendants
		Children   []*Node `json:"children"`
	}

	// SkippedReply is a reply BuildForest could not place, along with the reason.
	SkippedReply struct {
		Reply Reply
		Err   error
	}

	// Forest is a thread view rebuilt from a flat set of replies.
	Forest struct {
		Roots       []*Node        `json:"roots"`
		TotalCount  int            `json:"total_count"` // replies reachable from Roots
		OrphanCount int            `json:"orphan_count"`
		Orphans     []*Node        `json:"orphans"` // subtrees whose top reply answers a missing parent
		Skipped     []SkippedReply `json:"skipped"`
	}
)

func (s SkippedReply) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Reply Reply  `json:"reply"`
		Error string `json:"error"`
	}{s.Reply, s.Err.Error()})
}

type placement int

const (
	unvisited placement = iota
	visiting
	attached
	orphaned
	cyclic
)

// BuildForest rebuilds the reply threads of a flat, unordered set of replies.
//
// Siblings are ordered by CreatedAt then ID. A reply whose parent is missing from the set is an
// orphan: it is detached with its descendants into Orphans and counted in OrphanCount. Replies on
// a parent cycle, or descending from one, are reported in Skipped with ErrCycleDetected; replies
// with an empty or repeated id are reported with ErrInvalidInput. The input is left untouched.
func BuildForest(replies []Reply) Forest {
	forest := Forest{
		Roots:   make([]*Node, 0),
		Orphans: make([]*Node, 0),
		Skipped: make([]SkippedReply, 0),
	}

	// index replies by id; the first occurrence of an id wins
	index := make(map[string]int, len(replies))
	invalid := make(map[int]error)
	for i, r := range replies {
		if r.ID == "" {
			invalid[i] = errors.WithMessage(ErrInvalidInput, "missing id")
			continue
		}
		if _, ok := index[r.ID]; ok {
			invalid[i] = errors.WithMessagef(ErrInvalidInput, "duplicate id %s", r.ID)
			continue
		}
		index[r.ID] = i
	}

	// walk parent chains; every reply on a walk shares the outcome of the walk
	placements := make(map[string]placement, len(index))
	path := make([]string, 0, 16)
	for i, r := range replies {
		if _, ok := invalid[i]; ok || placements[r.ID] != unvisited {
			continue
		}
		path = path[:0]
		id := r.ID
		var outcome placement
		for {
			if p := placements[id]; p == visiting {
				outcome = cyclic
				break
			} else if p != unvisited {
				outcome = p
				break
			}
			placements[id] = visiting
			path = append(path, id)

			curr := replies[index[id]]
			if curr.IsTopLevel() {
				outcome = attached
				break
			}
			if _, ok := index[*curr.ParentID]; !ok {
				outcome = orphaned
				break
			}
			id = *curr.ParentID
		}
		for _, id := range path {
			placements[id] = outcome
		}
	}

	// create nodes, then link them in input order
	nodes := make(map[string]*Node, len(index))
	for id, i := range index {
		if p := placements[id]; p == attached || p == orphaned {
			nodes[id] = &Node{Reply: replies[i], Children: make([]*Node, 0)}
		}
	}
	for i, r := range replies {
		if err, ok := invalid[i]; ok {
			forest.Skipped = append(forest.Skipped, SkippedReply{Reply: r, Err: err})
			continue
		}
		node, ok := nodes[r.ID]
		if !ok {
			forest.Skipped = append(forest.Skipped, SkippedReply{
				Reply: r,
				Err:   errors.WithMessagef(ErrCycleDetected, "reply %s", r.ID),
			})
			continue
		}
		switch parent := nodes[parentID(r)]; {
		case r.IsTopLevel():
			forest.Roots = append(forest.Roots, node)
		case parent == nil:
			forest.Orphans = append(forest.Orphans, node)
		default:
			parent.Children = append(parent.Children, node)
		}
	}

	sortNodes(forest.Roots)
	sortNodes(forest.Orphans)
	for _, node := range nodes {
		sortNodes(node.Children)
	}

	// descendants are visited after their ancestors in pre-order: walk it backwards to sum counts
	attachedNodes := flattenNodes(forest.Roots)
	orphanNodes := flattenNodes(forest.Orphans)
	for _, list := range [][]*Node{attachedNodes, orphanNodes} {
		for i := len(list) - 1; i >= 0; i-- {
			node := list[i]
			node.ReplyCount = 0
			for _, child := range node.Children {
				node.ReplyCount += child.ReplyCount + 1
			}
		}
	}
	forest.TotalCount = len(attachedNodes)
	forest.OrphanCount = len(orphanNodes)

	return forest
}

// Flatten lists the replies of the given trees in pre-order: each reply precedes its children.
func Flatten(roots []*Node) []Reply {
	nodes := flattenNodes(roots)
	replies := make([]Reply, 0, len(nodes))
	for _, node := range nodes {
		replies = append(replies, node.Reply)
	}
	return replies
}

func flattenNodes(roots []*Node) []*Node {
	var nodes []*Node
	stack := make([]*Node, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes = append(nodes, node)
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, node.Children[i])
		}
	}
	return nodes
}

func parentID(r Reply) string {
	if r.ParentID == nil {
		return ""
	}
	return *r.ParentID
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
