package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/forum"
)

type forumRepository struct {
	db *forumTables
}

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(db *DB) *forumRepository {
	return &forumRepository{db: db.forum}
}

func (repo *forumRepository) CreatePost(ctx context.Context, post forum.Post) (forum.Post, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	post.ID = uuid.New().String()
	if post.Tags == nil {
		post.Tags = []string{}
	}
	stored := copyPost(post)
	repo.db.posts[post.ID] = &stored
	return post, nil
}

func (repo *forumRepository) QueryPosts(ctx context.Context, filter *forum.QueryFilter, ordering []core.DBOrdering) ([]forum.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	posts := make([]forum.Post, 0, len(repo.db.posts))
	for _, p := range repo.db.posts {
		if filter == nil || matchPost(*p, filter) {
			posts = append(posts, copyPost(*p))
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}} // newest first
	}
	compare := func(i, j int, field string) (int, bool) {
		a, b := posts[i], posts[j]
		switch field {
		case "id":
			return compareStrings(a.ID, b.ID), true
		case "title":
			return compareStrings(a.Title, b.Title), true
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt), true
		case "updated_at":
			return compareTimes(a.UpdatedAt, b.UpdatedAt), true
		}
		return 0, false
	}
	sort.Slice(posts, func(i, j int) bool { return less(ordering, compare, i, j) })
	return posts, nil
}

func matchPost(p forum.Post, filter *forum.QueryFilter) bool {
	if filter.Search != "" && !containsFold(p.Title, filter.Search) && !containsFold(p.Content, filter.Search) {
		return false
	}
	if filter.AuthorID != "" && p.AuthorID != filter.AuthorID {
		return false
	}
	if filter.Tag != "" {
		for _, tag := range p.Tags {
			if tag == filter.Tag {
				return true
			}
		}
		return false
	}
	return true
}

func (repo *forumRepository) GetPost(ctx context.Context, id string) (forum.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if post, ok := repo.db.posts[id]; ok {
		return copyPost(*post), nil
	}
	return forum.Post{}, forum.ErrPostNotFound
}

// DeletePostsByID also deletes the replies of the deleted posts.
func (repo *forumRepository) DeletePostsByID(ctx context.Context, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := repo.db.posts[id]; ok {
			delete(repo.db.posts, id)
			deleted[id] = true
		}
	}
	for id, reply := range repo.db.replies {
		if deleted[reply.PostID] {
			delete(repo.db.replies, id)
		}
	}
	return len(deleted), nil
}

func (repo *forumRepository) CreateReply(ctx context.Context, reply forum.Reply) (forum.Reply, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	reply.ID = uuid.New().String()
	stored := copyReply(reply)
	repo.db.replies[reply.ID] = &stored
	return reply, nil
}

func (repo *forumRepository) GetReply(ctx context.Context, id string) (forum.Reply, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if reply, ok := repo.db.replies[id]; ok {
		return copyReply(*reply), nil
	}
	return forum.Reply{}, forum.ErrReplyNotFound
}

func (repo *forumRepository) QueryReplies(ctx context.Context, postID string) ([]forum.Reply, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	replies := make([]forum.Reply, 0)
	for _, reply := range repo.db.replies {
		if reply.PostID == postID {
			replies = append(replies, copyReply(*reply))
		}
	}
	return replies, nil
}

func (repo *forumRepository) DeleteRepliesByID(ctx context.Context, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.replies[id]; ok {
			delete(repo.db.replies, id)
			cnt++
		}
	}
	return cnt, nil
}

func copyPost(p forum.Post) forum.Post {
	p.Tags = copyStrings(p.Tags)
	return p
}

func copyReply(r forum.Reply) forum.Reply {
	if r.ParentID != nil {
		parentID := *r.ParentID
		r.ParentID = &parentID
	}
	return r
}
