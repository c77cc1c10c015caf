package repository

import (
	"context"
	"fmt"

	"post_scheduler/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var allowedStatuses = map[string]struct{}{
	models.StatusPending: {},
	models.StatusPosting: {},
	models.StatusPosted:  {},
	models.StatusFailed:  {},
}

// PostRepository is the store adapter over the posts table. It owns the
// translation between the loosely-typed schedule columns and the typed model;
// nothing else reads those columns directly.
type PostRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewPostRepository(db *pgxpool.Pool) *PostRepository {
	return &PostRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var postColumns = []string{
	"id",
	"content",
	"post_date",
	"post_hour",
	"post_minute",
	"thread_group",
	"reply_link",
	"status",
	"result",
	"likes",
	"reposts",
	"replies",
	"refreshed_at",
	"created_at",
	"updated_at",
}

// List returns every row ordered by id ascending. Row order is load-bearing:
// it is the scan order of the selector and the publish order inside a thread
// group.
func (r *PostRepository) List(ctx context.Context) ([]*models.Post, error) {
	q := r.sb.
		Select(postColumns...).
		From("posts").
		OrderBy("id ASC")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build posts select: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	res := make([]*models.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return res, nil
}

// ListByStatus returns a page of rows, optionally filtered by status, plus
// the total count for pagination. Ordered by id ascending like List.
func (r *PostRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.Post, int, error) {
	if status != "" {
		if _, ok := allowedStatuses[status]; !ok {
			return nil, 0, fmt.Errorf("invalid status: %s", status)
		}
	}
	if limit <= 0 {
		limit = 50
	}

	filters := sq.And{}
	if status != "" {
		filters = append(filters, sq.Eq{"status": status})
	} else {
		filters = append(filters, sq.Expr("TRUE"))
	}

	countQuery := r.sb.Select("COUNT(*)").From("posts").Where(filters)
	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build posts count: %w", err)
	}

	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	dataQuery := r.sb.
		Select(postColumns...).
		From("posts").
		Where(filters).
		OrderBy("id ASC").
		Limit(uint64(limit))
	if offset > 0 {
		dataQuery = dataQuery.Offset(uint64(offset))
	}

	dataSQL, dataArgs, err := dataQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build posts page select: %w", err)
	}

	rows, err := r.db.Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query posts page: %w", err)
	}
	defer rows.Close()

	res := make([]*models.Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate posts page: %w", err)
	}

	return res, int(total), nil
}

// Create inserts a new pending row authored via the API or the Kafka intake.
func (r *PostRepository) Create(ctx context.Context, p *models.Post) error {
	if p == nil {
		return fmt.Errorf("post is nil")
	}
	if p.Content == "" {
		return fmt.Errorf("content is empty")
	}

	p.Status = models.StatusPending

	q := r.sb.
		Insert("posts").
		Columns("content", "post_date", "post_hour", "post_minute", "thread_group", "reply_link", "status").
		Values(p.Content, p.DateRaw, p.HourRaw, p.MinuteRaw, p.ThreadGroup, p.ReplyLink, models.StatusPending).
		Suffix("RETURNING id, created_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build post insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&id, &p.CreatedAt); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	p.ID = int(id)

	return nil
}

// UpdateStatus moves a row through pending -> posting -> posted|failed.
func (r *PostRepository) UpdateStatus(ctx context.Context, id int, status string) error {
	if id <= 0 {
		return fmt.Errorf("invalid id")
	}
	if _, ok := allowedStatuses[status]; !ok {
		return fmt.Errorf("invalid status: %s", status)
	}

	q := r.sb.
		Update("posts").
		Set("status", status).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build post status update: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update post status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetResult writes the shared result column: the post URL on success, the
// failure detail otherwise. Status stays the authoritative signal.
func (r *PostRepository) SetResult(ctx context.Context, id int, result string) error {
	if id <= 0 {
		return fmt.Errorf("invalid id")
	}

	q := r.sb.
		Update("posts").
		Set("result", result).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build post result update: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update post result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MediaRefs returns the attachments of a row ordered by position, capped at
// MaxMediaPerPost.
func (r *PostRepository) MediaRefs(ctx context.Context, postID int) ([]*models.MediaRef, error) {
	if postID <= 0 {
		return nil, fmt.Errorf("invalid post id")
	}

	q := r.sb.
		Select("post_id", "position", "url", "data", "mime").
		From("post_media").
		Where(sq.Eq{"post_id": postID}).
		OrderBy("position ASC").
		Limit(models.MaxMediaPerPost)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build media select: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query media refs: %w", err)
	}
	defer rows.Close()

	res := make([]*models.MediaRef, 0, models.MaxMediaPerPost)
	for rows.Next() {
		var (
			m    models.MediaRef
			url  pgtype.Text
			mime pgtype.Text
		)
		if err := rows.Scan(&m.PostID, &m.Position, &url, &m.Data, &mime); err != nil {
			return nil, fmt.Errorf("scan media ref: %w", err)
		}
		if url.Valid {
			m.URL = url.String
		}
		if mime.Valid {
			m.Mime = mime.String
		}
		res = append(res, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media refs: %w", err)
	}

	return res, nil
}

// AddMediaRef attaches one media reference during authoring.
func (r *PostRepository) AddMediaRef(ctx context.Context, m *models.MediaRef) error {
	if m == nil {
		return fmt.Errorf("media ref is nil")
	}
	if m.PostID <= 0 {
		return fmt.Errorf("invalid post id")
	}
	if m.URL == "" && len(m.Data) == 0 {
		return fmt.Errorf("media ref has neither url nor data")
	}

	q := r.sb.
		Insert("post_media").
		Columns("post_id", "position", "url", "data", "mime").
		Values(m.PostID, m.Position, m.URL, m.Data, m.Mime)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build media insert: %w", err)
	}

	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert media ref: %w", err)
	}

	return nil
}

// ListPostedForRefresh returns posted rows with a recorded URL, least
// recently refreshed first, for the engagement refresher.
func (r *PostRepository) ListPostedForRefresh(ctx context.Context, limit int) ([]*models.Post, error) {
	if limit <= 0 {
		limit = 50
	}

	q := r.sb.
		Select(postColumns...).
		From("posts").
		Where(sq.Eq{"status": models.StatusPosted}).
		Where(sq.NotEq{"result": ""}).
		OrderBy("refreshed_at ASC NULLS FIRST", "id ASC").
		Limit(uint64(limit))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build refresh select: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts for refresh: %w", err)
	}
	defer rows.Close()

	res := make([]*models.Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts for refresh: %w", err)
	}

	return res, nil
}

// UpdateEngagement writes refreshed engagement counts and stamps refreshed_at.
func (r *PostRepository) UpdateEngagement(ctx context.Context, id, likes, reposts, replies int) error {
	if id <= 0 {
		return fmt.Errorf("invalid id")
	}

	q := r.sb.
		Update("posts").
		Set("likes", likes).
		Set("reposts", reposts).
		Set("replies", replies).
		Set("refreshed_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build engagement update: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update engagement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

type pgxRows interface {
	Scan(dest ...any) error
}

func scanPost(rows pgxRows) (*models.Post, error) {
	var (
		p           models.Post
		id          int64
		threadGroup pgtype.Text
		replyLink   pgtype.Text
		status      pgtype.Text
		result      pgtype.Text
		refreshedAt pgtype.Timestamptz
	)

	if err := rows.Scan(
		&id,
		&p.Content,
		&p.DateRaw,
		&p.HourRaw,
		&p.MinuteRaw,
		&threadGroup,
		&replyLink,
		&status,
		&result,
		&p.Likes,
		&p.Reposts,
		&p.Replies,
		&refreshedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan post row: %w", err)
	}

	p.ID = int(id)
	if threadGroup.Valid {
		p.ThreadGroup = threadGroup.String
	}
	if replyLink.Valid {
		p.ReplyLink = replyLink.String
	}
	if status.Valid {
		p.Status = status.String
	}
	if result.Valid {
		p.Result = result.String
	}
	if refreshedAt.Valid {
		t := refreshedAt.Time
		p.RefreshedAt = &t
	}

	return &p, nil
}
