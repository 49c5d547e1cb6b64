package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/forum"
	"github.com/trezcool/jamii/core/subscription"
	"github.com/trezcool/jamii/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateSubscription stores a subscription as is, bypassing the service (no role sync).
func CreateSubscription(
	t *testing.T,
	repo subscription.Repository,
	userID, plan, status string,
	start time.Time,
	end *time.Time,
) subscription.Subscription {
	now := time.Now().UTC()
	sub := subscription.Subscription{
		UserID:    userID,
		Plan:      plan,
		Status:    status,
		StartDate: start.UTC(),
		EndDate:   end,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sub, err := repo.CreateSubscription(context.Background(), sub)
	if err != nil {
		t.Fatalf("createSubscription() failed: %v", err)
	}
	return sub
}

func CreatePost(t *testing.T, repo forum.Repository, authorID, title string, tags ...string) forum.Post {
	now := time.Now().UTC()
	post, err := repo.CreatePost(context.Background(), forum.Post{
		AuthorID:  authorID,
		Title:     title,
		Content:   "content of " + title,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createPost() failed: %v", err)
	}
	return post
}

func CreateReply(t *testing.T, repo forum.Repository, post forum.Post, parentID *string, authorID string, createdAt time.Time) forum.Reply {
	reply, err := repo.CreateReply(context.Background(), forum.Reply{
		PostID:    post.ID,
		ParentID:  parentID,
		AuthorID:  authorID,
		Content:   "reply",
		CreatedAt: createdAt.UTC(),
	})
	if err != nil {
		t.Fatalf("createReply() failed: %v", err)
	}
	return reply
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

// Logger records every logged message as "LEVEL: msg".
type Logger struct {
	mu       sync.Mutex
	Messages []string
}

var _ core.Logger = (*Logger)(nil) // interface compliance check

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, fmt.Sprintf("%s: %s", level, msg))
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("DEBUG", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("INFO", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("WARN", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("ERROR", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("FATAL", msg) }

// Lines returns a copy of the recorded messages.
func (l *Logger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Messages...)
}
