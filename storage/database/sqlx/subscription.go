package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/subscription"
)

const subscriptionColumns = `id, user_id, plan, status, start_date, end_date, created_at, updated_at`

var subscriptionOrderColumns = map[string]string{
	"plan":       "plan",
	"status":     "status",
	"start_date": "start_date",
	"end_date":   "end_date",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type (
	subscriptionRow struct {
		ID        string    `db:"id"`
		UserID    string    `db:"user_id"`
		Plan      string    `db:"plan"`
		Status    string    `db:"status"`
		StartDate null.Time `db:"start_date"`
		EndDate   null.Time `db:"end_date"`
		CreatedAt null.Time `db:"created_at"`
		UpdatedAt null.Time `db:"updated_at"`
	}

	subscriptionRepository struct {
		exec core.DBExecutor
	}
)

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(exec core.DBExecutor) *subscriptionRepository {
	return &subscriptionRepository{exec: exec}
}

func (repo subscriptionRepository) toRow(sub subscription.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:        sub.ID,
		UserID:    sub.UserID,
		Plan:      sub.Plan,
		Status:    sub.Status,
		StartDate: null.NewTime(sub.StartDate.UTC(), !sub.StartDate.IsZero()),
		EndDate:   null.TimeFromPtr(utcPtr(sub.EndDate)),
		CreatedAt: null.NewTime(sub.CreatedAt.UTC(), !sub.CreatedAt.IsZero()),
		UpdatedAt: null.NewTime(sub.UpdatedAt.UTC(), !sub.UpdatedAt.IsZero()),
	}
}

func (repo subscriptionRepository) fromRow(row subscriptionRow) subscription.Subscription {
	return subscription.Subscription{
		ID:        row.ID,
		UserID:    row.UserID,
		Plan:      row.Plan,
		Status:    row.Status,
		StartDate: row.StartDate.Time.UTC(),
		EndDate:   utcPtr(row.EndDate.Ptr()),
		CreatedAt: row.CreatedAt.Time.UTC(),
		UpdatedAt: row.UpdatedAt.Time.UTC(),
	}
}

func (repo subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	sub.ID = uuid.New().String()
	row := repo.toRow(sub)
	_, err := sqlx.NamedExecContext(ctx, repo.exec, `
		INSERT INTO subscription (`+subscriptionColumns+`)
		VALUES (:id, :user_id, :plan, :status, :start_date, :end_date, :created_at, :updated_at)`,
		row)
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return repo.fromRow(row), nil
}

func (repo subscriptionRepository) QuerySubscriptions(ctx context.Context, filter *subscription.QueryFilter, ordering []core.DBOrdering) ([]subscription.Subscription, error) {
	var w where

	if filter != nil {
		if filter.UserID != "" {
			if !isValidID(filter.UserID) {
				return []subscription.Subscription{}, nil
			}
			w.add("user_id = ?", filter.UserID)
		}
		if filter.Plan != "" {
			w.add("plan = ?", filter.Plan)
		}
		if len(filter.Statuses) > 0 {
			w.add("status IN (?)", filter.Statuses)
		}
		if filter.HasEndDate != nil {
			if *filter.HasEndDate {
				w.add("end_date IS NOT NULL")
			} else {
				w.add("end_date IS NULL")
			}
		}
		if !filter.EndFrom.IsZero() {
			w.add("end_date >= ?", filter.EndFrom.UTC())
		}
		if !filter.EndTo.IsZero() {
			w.add("end_date <= ?", filter.EndTo.UTC())
		}
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscription` + w.String()
	if orderBy := core.OrderByClause(ordering, subscriptionOrderColumns); orderBy != "" {
		query += " ORDER BY " + orderBy + ", id"
	} else {
		query += " ORDER BY created_at, id"
	}

	q, args, err := build(repo.exec, query, w.args...)
	if err != nil {
		return nil, err
	}
	var rows []subscriptionRow
	if err = sqlx.SelectContext(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	subs := make([]subscription.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, repo.fromRow(row))
	}
	return subs, nil
}

func (repo subscriptionRepository) GetSubscription(ctx context.Context, id string) (subscription.Subscription, error) {
	if !isValidID(id) {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	q := repo.exec.Rebind(`SELECT ` + subscriptionColumns + ` FROM subscription WHERE id = ?`)
	var row subscriptionRow
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return subscription.Subscription{}, trapNoRowsErr(err, subscription.ErrNotFound, "finding subscription")
	}
	return repo.fromRow(row), nil
}

func (repo subscriptionRepository) UpdateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	if !isValidID(sub.ID) {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	row := repo.toRow(sub)
	res, err := sqlx.NamedExecContext(ctx, repo.exec, `
		UPDATE subscription
		SET plan = :plan, status = :status, start_date = :start_date, end_date = :end_date, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return repo.fromRow(row), nil
}

func (repo subscriptionRepository) DeleteSubscriptionsByID(ctx context.Context, ids ...string) (int, error) {
	if ids = validIDs(ids); len(ids) == 0 {
		return 0, nil
	}
	q, args, err := build(repo.exec, `DELETE FROM subscription WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting subscriptions")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting subscriptions")
	}
	return int(cnt), nil
}
