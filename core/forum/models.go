package forum

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/user"
)

type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Reply is a comment on a post (ParentID nil) or an answer to another reply.
type Reply struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ParentID  *string   `json:"parent_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (r Reply) IsTopLevel() bool {
	return r.ParentID == nil || *r.ParentID == ""
}

// NewPost contains information needed to create a new Post.
type NewPost struct {
	Title   string   `json:"title" validate:"required,notblank,max=255"`
	Content string   `json:"content" validate:"required,notblank"`
	Tags    []string `json:"tags" validate:"omitempty,max=10,dive,notblank,max=32"`
}

func (np *NewPost) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Content = core.CleanString(np.Content)
	for i, tag := range np.Tags {
		np.Tags[i] = core.CleanString(tag, true /* lower */)
	}
	return validate.Struct(np)
}

// NewReply contains information needed to reply to a post or to another reply.
type NewReply struct {
	ParentID *string `json:"parent_id"`
	Content  string  `json:"content" validate:"required,notblank"`
}

func (nr *NewReply) Validate(validate *validator.Validate) error {
	nr.Content = core.CleanString(nr.Content)
	if nr.ParentID != nil {
		parentID := core.CleanString(*nr.ParentID)
		if parentID == "" {
			nr.ParentID = nil
		} else {
			nr.ParentID = &parentID
		}
	}
	return validate.Struct(nr)
}

type QueryFilter struct {
	Search   string `query:"search"`
	AuthorID string `query:"author_id"`
	Tag      string `query:"tag"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.AuthorID = core.CleanString(qf.AuthorID)
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
}

// Service is the forum use-case surface consumed by the apps.
type Service interface {
	CreatePost(ctx context.Context, author user.User, np NewPost) (Post, error)
	QueryPosts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Post, error)
	GetPost(ctx context.Context, id string) (Post, error)
	DeletePost(ctx context.Context, id string) error
	CreateReply(ctx context.Context, post Post, author user.User, nr NewReply) (Reply, error)
	GetReply(ctx context.Context, id string) (Reply, error)
	DeleteReply(ctx context.Context, id string) error
	Thread(ctx context.Context, postID string) (Forest, error)
}
