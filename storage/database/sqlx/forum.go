package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/forum"
)

const (
	postColumns  = `id, author_id, title, content, tags, created_at, updated_at`
	replyColumns = `id, post_id, parent_id, author_id, content, created_at`
)

var postOrderColumns = map[string]string{
	"title":      "title",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type (
	postRow struct {
		ID        string         `db:"id"`
		AuthorID  null.String    `db:"author_id"`
		Title     string         `db:"title"`
		Content   string         `db:"content"`
		Tags      pq.StringArray `db:"tags"`
		CreatedAt null.Time      `db:"created_at"`
		UpdatedAt null.Time      `db:"updated_at"`
	}

	replyRow struct {
		ID        string      `db:"id"`
		PostID    string      `db:"post_id"`
		ParentID  null.String `db:"parent_id"`
		AuthorID  null.String `db:"author_id"`
		Content   string      `db:"content"`
		CreatedAt null.Time   `db:"created_at"`
	}

	forumRepository struct {
		exec core.DBExecutor
	}
)

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(exec core.DBExecutor) *forumRepository {
	return &forumRepository{exec: exec}
}

func (repo forumRepository) postToRow(post forum.Post) postRow {
	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	return postRow{
		ID:        post.ID,
		AuthorID:  null.NewString(post.AuthorID, post.AuthorID != ""),
		Title:     post.Title,
		Content:   post.Content,
		Tags:      tags,
		CreatedAt: null.NewTime(post.CreatedAt.UTC(), !post.CreatedAt.IsZero()),
		UpdatedAt: null.NewTime(post.UpdatedAt.UTC(), !post.UpdatedAt.IsZero()),
	}
}

func (repo forumRepository) postFromRow(row postRow) forum.Post {
	return forum.Post{
		ID:        row.ID,
		AuthorID:  row.AuthorID.String,
		Title:     row.Title,
		Content:   row.Content,
		Tags:      []string(row.Tags),
		CreatedAt: row.CreatedAt.Time.UTC(),
		UpdatedAt: row.UpdatedAt.Time.UTC(),
	}
}

func (repo forumRepository) replyToRow(reply forum.Reply) replyRow {
	row := replyRow{
		ID:        reply.ID,
		PostID:    reply.PostID,
		AuthorID:  null.NewString(reply.AuthorID, reply.AuthorID != ""),
		Content:   reply.Content,
		CreatedAt: null.NewTime(reply.CreatedAt.UTC(), !reply.CreatedAt.IsZero()),
	}
	if !reply.IsTopLevel() {
		row.ParentID = null.StringFrom(*reply.ParentID)
	}
	return row
}

func (repo forumRepository) replyFromRow(row replyRow) forum.Reply {
	return forum.Reply{
		ID:        row.ID,
		PostID:    row.PostID,
		ParentID:  row.ParentID.Ptr(),
		AuthorID:  row.AuthorID.String,
		Content:   row.Content,
		CreatedAt: row.CreatedAt.Time.UTC(),
	}
}

func (repo forumRepository) CreatePost(ctx context.Context, post forum.Post) (forum.Post, error) {
	post.ID = uuid.New().String()
	row := repo.postToRow(post)
	_, err := sqlx.NamedExecContext(ctx, repo.exec, `
		INSERT INTO post (`+postColumns+`)
		VALUES (:id, :author_id, :title, :content, :tags, :created_at, :updated_at)`,
		row)
	if err != nil {
		return forum.Post{}, errors.Wrap(err, "inserting post")
	}
	return repo.postFromRow(row), nil
}

func (repo forumRepository) QueryPosts(ctx context.Context, filter *forum.QueryFilter, ordering []core.DBOrdering) ([]forum.Post, error) {
	var w where

	if filter != nil {
		if filter.Search != "" {
			val := likePattern(filter.Search)
			w.add("title ILIKE ? OR content ILIKE ?", val, val)
		}
		if filter.AuthorID != "" {
			if !isValidID(filter.AuthorID) {
				return []forum.Post{}, nil
			}
			w.add("author_id = ?", filter.AuthorID)
		}
		if filter.Tag != "" {
			w.add("? = ANY (tags)", filter.Tag)
		}
	}

	query := `SELECT ` + postColumns + ` FROM post` + w.String()
	if orderBy := core.OrderByClause(ordering, postOrderColumns); orderBy != "" {
		query += " ORDER BY " + orderBy + ", id"
	} else {
		query += " ORDER BY created_at DESC, id"
	}

	q, args, err := build(repo.exec, query, w.args...)
	if err != nil {
		return nil, err
	}
	var rows []postRow
	if err = sqlx.SelectContext(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying posts")
	}
	posts := make([]forum.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, repo.postFromRow(row))
	}
	return posts, nil
}

func (repo forumRepository) GetPost(ctx context.Context, id string) (forum.Post, error) {
	if !isValidID(id) {
		return forum.Post{}, forum.ErrPostNotFound
	}
	q := repo.exec.Rebind(`SELECT ` + postColumns + ` FROM post WHERE id = ?`)
	var row postRow
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return forum.Post{}, trapNoRowsErr(err, forum.ErrPostNotFound, "finding post")
	}
	return repo.postFromRow(row), nil
}

func (repo forumRepository) DeletePostsByID(ctx context.Context, ids ...string) (int, error) {
	return repo.deleteByID(ctx, "post", ids)
}

func (repo forumRepository) CreateReply(ctx context.Context, reply forum.Reply) (forum.Reply, error) {
	reply.ID = uuid.New().String()
	row := repo.replyToRow(reply)
	_, err := sqlx.NamedExecContext(ctx, repo.exec, `
		INSERT INTO reply (`+replyColumns+`)
		VALUES (:id, :post_id, :parent_id, :author_id, :content, :created_at)`,
		row)
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "inserting reply")
	}
	return repo.replyFromRow(row), nil
}

func (repo forumRepository) GetReply(ctx context.Context, id string) (forum.Reply, error) {
	if !isValidID(id) {
		return forum.Reply{}, forum.ErrReplyNotFound
	}
	q := repo.exec.Rebind(`SELECT ` + replyColumns + ` FROM reply WHERE id = ?`)
	var row replyRow
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return forum.Reply{}, trapNoRowsErr(err, forum.ErrReplyNotFound, "finding reply")
	}
	return repo.replyFromRow(row), nil
}

func (repo forumRepository) QueryReplies(ctx context.Context, postID string) ([]forum.Reply, error) {
	if !isValidID(postID) {
		return []forum.Reply{}, nil
	}
	q := repo.exec.Rebind(`SELECT ` + replyColumns + ` FROM reply WHERE post_id = ?`)
	var rows []replyRow
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, postID); err != nil {
		return nil, errors.Wrap(err, "querying replies")
	}
	replies := make([]forum.Reply, 0, len(rows))
	for _, row := range rows {
		replies = append(replies, repo.replyFromRow(row))
	}
	return replies, nil
}

func (repo forumRepository) DeleteRepliesByID(ctx context.Context, ids ...string) (int, error) {
	return repo.deleteByID(ctx, "reply", ids)
}

func (repo forumRepository) deleteByID(ctx context.Context, table string, ids []string) (int, error) {
	if ids = validIDs(ids); len(ids) == 0 {
		return 0, nil
	}
	q, args, err := build(repo.exec, `DELETE FROM `+table+` WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "deleting from %s", table)
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(err, "deleting from %s", table)
	}
	return int(cnt), nil
}
