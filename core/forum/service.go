package forum

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/user"
)

var (
	NowFunc = core.NowUTC // mockable

	// errors
	ErrPostNotFound  = errors.New("post not found")
	ErrReplyNotFound = errors.New("reply not found")
)

type (
	Repository interface {
		CreatePost(ctx context.Context, post Post) (Post, error)
		// QueryPosts applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Post.Title or Post.Content.
		QueryPosts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Post, error)
		GetPost(ctx context.Context, id string) (Post, error)
		// DeletePostsByID deletes the posts along with their replies.
		DeletePostsByID(ctx context.Context, ids ...string) (int, error)

		CreateReply(ctx context.Context, reply Reply) (Reply, error)
		GetReply(ctx context.Context, id string) (Reply, error)
		// QueryReplies returns every reply of a post, in no particular order.
		QueryReplies(ctx context.Context, postID string) ([]Reply, error)
		DeleteRepliesByID(ctx context.Context, ids ...string) (int, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository) *service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &service{repo: repo}
}

func (svc *service) CreatePost(ctx context.Context, author user.User, np NewPost) (Post, error) {
	now := NowFunc()
	tags := np.Tags
	if tags == nil {
		tags = []string{}
	}
	post := Post{
		AuthorID:  author.ID,
		Title:     np.Title,
		Content:   np.Content,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	post, err := svc.repo.CreatePost(ctx, post)
	return post, errors.Wrap(err, "creating post")
}

func (svc *service) QueryPosts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Post, error) {
	return svc.repo.QueryPosts(ctx, filter, ordering)
}

func (svc *service) GetPost(ctx context.Context, id string) (Post, error) {
	return svc.repo.GetPost(ctx, id)
}

func (svc *service) DeletePost(ctx context.Context, id string) error {
	if _, err := svc.repo.DeletePostsByID(ctx, id); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return nil
}

// CreateReply adds a reply to post. The parent reply, if any, must belong to the same post.
func (svc *service) CreateReply(ctx context.Context, post Post, author user.User, nr NewReply) (Reply, error) {
	if nr.ParentID != nil {
		parent, err := svc.repo.GetReply(ctx, *nr.ParentID)
		if err != nil && errors.Cause(err) != ErrReplyNotFound {
			return Reply{}, errors.Wrap(err, "finding parent reply")
		}
		if err != nil || parent.PostID != post.ID {
			return Reply{}, core.NewValidationError(nil, core.FieldError{Field: "parent_id", Error: ErrReplyNotFound.Error()})
		}
	}

	reply := Reply{
		PostID:    post.ID,
		ParentID:  nr.ParentID,
		AuthorID:  author.ID,
		Content:   nr.Content,
		CreatedAt: NowFunc(),
	}
	reply, err := svc.repo.CreateReply(ctx, reply)
	return reply, errors.Wrap(err, "creating reply")
}

func (svc *service) GetReply(ctx context.Context, id string) (Reply, error) {
	return svc.repo.GetReply(ctx, id)
}

// DeleteReply deletes a single reply. Its answers stay and show up as orphans in the thread.
func (svc *service) DeleteReply(ctx context.Context, id string) error {
	if _, err := svc.repo.DeleteRepliesByID(ctx, id); err != nil {
		return errors.Wrap(err, "deleting reply")
	}
	return nil
}

// Thread reads every reply of a post at once and rebuilds its reply forest.
func (svc *service) Thread(ctx context.Context, postID string) (Forest, error) {
	replies, err := svc.repo.QueryReplies(ctx, postID)
	if err != nil {
		return Forest{}, errors.Wrap(err, "querying replies")
	}
	return BuildForest(replies), nil
}
