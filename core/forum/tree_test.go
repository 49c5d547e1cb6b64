package forum

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)

func sp(s string) *string { return &s }

func reply(id string, parent *string, minutes int) Reply {
	return Reply{
		ID:        id,
		PostID:    "post",
		ParentID:  parent,
		AuthorID:  "author-" + id,
		Content:   "content " + id,
		CreatedAt: t0.Add(time.Duration(minutes) * time.Minute),
	}
}

// shape renders a forest as "id(child,child)" lists for readable comparisons.
func shape(nodes []*Node) string {
	s := ""
	for i, n := range nodes {
		if i > 0 {
			s += ","
		}
		s += n.ID
		if len(n.Children) > 0 {
			s += "(" + shape(n.Children) + ")"
		}
	}
	return s
}

func TestBuildForest(t *testing.T) {
	tests := []struct {
		name        string
		replies     []Reply
		wantRoots   string
		wantOrphans string
		wantTotal   int
		wantOrphan  int
		wantSkipped []string
	}{
		{name: "empty", wantRoots: "", wantOrphans: ""},
		{
			name: "single thread",
			replies: []Reply{
				reply("1", nil, 0), reply("2", sp("1"), 1), reply("3", sp("1"), 2), reply("4", sp("2"), 3),
			},
			wantRoots: "1(2(4),3)", wantTotal: 4,
		},
		{
			name: "unordered input, siblings by created_at",
			replies: []Reply{
				reply("4", sp("2"), 3), reply("3", sp("1"), 1), reply("2", sp("1"), 2), reply("1", nil, 0), reply("5", nil, -1),
			},
			wantRoots: "5,1(3,2(4))", wantTotal: 5,
		},
		{
			name: "equal timestamps broken by id",
			replies: []Reply{
				reply("b", nil, 0), reply("c", nil, 0), reply("a", nil, 0), reply("a2", sp("a"), 5), reply("a1", sp("a"), 5),
			},
			wantRoots: "a(a1,a2),b,c", wantTotal: 5,
		},
		{
			name:        "missing parent",
			replies:     []Reply{reply("1", sp("99"), 0)},
			wantRoots:   "",
			wantOrphans: "1", wantOrphan: 1,
		},
		{
			name: "orphan subtree detached with its descendants",
			replies: []Reply{
				reply("1", nil, 0), reply("2", sp("1"), 1), reply("3", sp("gone"), 2), reply("4", sp("3"), 3), reply("5", sp("4"), 4),
			},
			wantRoots: "1(2)", wantOrphans: "3(4(5))", wantTotal: 2, wantOrphan: 3,
		},
		{
			name: "self parent",
			replies: []Reply{
				reply("1", nil, 0), reply("2", sp("2"), 1),
			},
			wantRoots: "1", wantTotal: 1, wantSkipped: []string{"2"},
		},
		{
			name: "cycle and its descendants skipped",
			replies: []Reply{
				reply("1", nil, 0), reply("2", sp("3"), 1), reply("3", sp("2"), 2), reply("4", sp("3"), 3), reply("5", sp("1"), 4),
			},
			wantRoots: "1(5)", wantTotal: 2, wantSkipped: []string{"2", "3", "4"},
		},
		{
			name: "duplicate id: first occurrence wins",
			replies: []Reply{
				reply("1", nil, 0), reply("2", sp("1"), 1), reply("2", nil, 2),
			},
			wantRoots: "1(2)", wantTotal: 2, wantSkipped: []string{"2"},
		},
		{
			name:      "blank parent id is top level",
			replies:   []Reply{reply("1", sp(""), 0)},
			wantRoots: "1", wantTotal: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildForest(tt.replies)
			assert.Equal(t, tt.wantRoots, shape(got.Roots), "roots")
			assert.Equal(t, tt.wantOrphans, shape(got.Orphans), "orphans")
			assert.Equal(t, tt.wantTotal, got.TotalCount, "TotalCount")
			assert.Equal(t, tt.wantOrphan, got.OrphanCount, "OrphanCount")

			skipped := make([]string, 0, len(got.Skipped))
			for _, s := range got.Skipped {
				skipped = append(skipped, s.Reply.ID)
			}
			if tt.wantSkipped == nil {
				tt.wantSkipped = []string{}
			}
			assert.Equal(t, tt.wantSkipped, skipped, "skipped")
			assert.Equal(t, len(tt.replies), got.TotalCount+got.OrphanCount+len(got.Skipped))
		})
	}
}

func TestBuildForest_scenarioD(t *testing.T) {
	replies := []Reply{
		reply("1", nil, 0), reply("2", sp("1"), 1), reply("3", sp("1"), 2), reply("4", sp("2"), 3),
	}
	forest := BuildForest(replies)

	require.Len(t, forest.Roots, 1)
	root := forest.Roots[0]
	assert.Equal(t, "1", root.ID)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "2", root.Children[0].ID)
	assert.Equal(t, "3", root.Children[1].ID)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, "4", root.Children[0].Children[0].ID)
	assert.Equal(t, 4, forest.TotalCount)
	assert.Equal(t, 0, forest.OrphanCount)

	assert.Equal(t, 3, root.ReplyCount)
	assert.Equal(t, 1, root.Children[0].ReplyCount)
	assert.Equal(t, 0, root.Children[1].ReplyCount)
}

func TestBuildForest_scenarioE(t *testing.T) {
	forest := BuildForest([]Reply{reply("1", sp("99"), 0)})
	assert.Empty(t, forest.Roots)
	assert.NotNil(t, forest.Roots)
	assert.Equal(t, 1, forest.OrphanCount)
	assert.Equal(t, 0, forest.TotalCount)
}

func TestBuildForest_errorKinds(t *testing.T) {
	forest := BuildForest([]Reply{
		reply("1", sp("2"), 0), reply("2", sp("1"), 1), reply("", nil, 2), reply("3", nil, 3), reply("3", nil, 4),
	})
	require.Len(t, forest.Skipped, 4)
	assert.True(t, errors.Is(forest.Skipped[0].Err, ErrCycleDetected))
	assert.True(t, errors.Is(forest.Skipped[1].Err, ErrCycleDetected))
	assert.True(t, errors.Is(forest.Skipped[2].Err, ErrInvalidInput))
	assert.True(t, errors.Is(forest.Skipped[3].Err, ErrInvalidInput))
	assert.Equal(t, "3", shape(forest.Roots))
}

// randomReplies builds n replies forming a valid forest (no cycles, no missing parents).
func randomReplies(rnd *rand.Rand, n int) []Reply {
	replies := make([]Reply, 0, n)
	for i := 0; i < n; i++ {
		var parent *string
		if i > 0 && rnd.Intn(4) > 0 {
			parent = sp(replies[rnd.Intn(i)].ID)
		}
		replies = append(replies, reply(fmt.Sprintf("r%03d", i), parent, rnd.Intn(n/2+1)))
	}
	rnd.Shuffle(len(replies), func(i, j int) { replies[i], replies[j] = replies[j], replies[i] })
	return replies
}

func TestBuildForest_properties(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		replies := randomReplies(rnd, 1+rnd.Intn(60))
		orig := make([]Reply, len(replies))
		copy(orig, replies)

		forest := BuildForest(replies)

		// complete: every reply placed once, nothing orphaned
		if forest.TotalCount != len(replies) || forest.OrphanCount != 0 {
			t.Fatalf("TotalCount = %d, OrphanCount = %d; want %d, 0", forest.TotalCount, forest.OrphanCount, len(replies))
		}
		seen := make(map[string]bool)
		for _, r := range Flatten(forest.Roots) {
			if seen[r.ID] {
				t.Fatalf("reply %s appears twice", r.ID)
			}
			seen[r.ID] = true
		}

		// input untouched
		if !reflect.DeepEqual(orig, replies) {
			t.Fatal("BuildForest() mutated its input")
		}

		// idempotent
		if again := BuildForest(orig); !reflect.DeepEqual(forest, again) {
			t.Fatal("BuildForest() is not idempotent")
		}

		// round-trip through the pre-order flattening
		rebuilt := BuildForest(Flatten(forest.Roots))
		if shape(rebuilt.Roots) != shape(forest.Roots) {
			t.Fatalf("round-trip shape = %s, want %s", shape(rebuilt.Roots), shape(forest.Roots))
		}
	}
}

func TestBuildForest_deepChain(t *testing.T) {
	const depth = 100000
	replies := make([]Reply, 0, depth)
	for i := 0; i < depth; i++ {
		var parent *string
		if i > 0 {
			parent = sp(replies[i-1].ID)
		}
		replies = append(replies, reply(fmt.Sprintf("r%06d", i), parent, i))
	}
	// children first: the walk must climb the whole chain at once
	for i, j := 0, len(replies)-1; i < j; i, j = i+1, j-1 {
		replies[i], replies[j] = replies[j], replies[i]
	}

	forest := BuildForest(replies)
	require.Len(t, forest.Roots, 1)
	assert.Equal(t, depth, forest.TotalCount)
	assert.Equal(t, depth-1, forest.Roots[0].ReplyCount)
	assert.Len(t, Flatten(forest.Roots), depth)
}

func TestFlatten(t *testing.T) {
	forest := BuildForest([]Reply{
		reply("1", nil, 0), reply("2", sp("1"), 1), reply("3", sp("1"), 2), reply("4", sp("2"), 3), reply("5", nil, 4),
	})
	ids := make([]string, 0)
	for _, r := range Flatten(forest.Roots) {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "2", "4", "3", "5"}, ids)
	assert.Empty(t, Flatten(nil))
}
