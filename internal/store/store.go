package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/internal/selector"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("record not found")

// Send status values for queue items.
const (
	SendStatusSent   = "SENT"
	SendStatusFailed = "FAILED"
)

// ApprovedYes marks a queue item cleared by a human reviewer.
const ApprovedYes = "YES"

type User struct {
	UID        string
	Name       string
	GroupID    string
	LastSyncAt sql.NullTime
}

// QueueItem is one generated response awaiting review and delivery.
type QueueItem struct {
	ID                string
	UID               string
	UserName          string
	GroupID           string
	PostID            string
	PostContent       string
	HistoryBlock      string
	Prompt            string
	GeneratedResponse string
	FinalResponse     string
	Approved          string
	SendStatus        string
	SendError         string
	CommentID         string
	CreatedAt         time.Time
}

// ResponseText returns the text to deliver: the reviewer's edited response
// when present, otherwise the generated one.
func (q *QueueItem) ResponseText() string {
	if q.FinalResponse != "" {
		return q.FinalResponse
	}
	return q.GeneratedResponse
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the responder schema and tables if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) GetUser(ctx context.Context, uid string) (*User, error) {
	query := `
		SELECT uid, name, group_id, last_sync_at
		FROM responder.users
		WHERE uid = $1
	`
	var u User
	err := s.db.QueryRowContext(ctx, query, uid).Scan(&u.UID, &u.Name, &u.GroupID, &u.LastSyncAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	query := `
		SELECT uid, name, group_id, last_sync_at
		FROM responder.users
		ORDER BY uid
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UID, &u.Name, &u.GroupID, &u.LastSyncAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpsertUser(ctx context.Context, u *User) error {
	query := `
		INSERT INTO responder.users (uid, name, group_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO UPDATE SET
			name = EXCLUDED.name,
			group_id = EXCLUDED.group_id
	`
	_, err := s.db.ExecContext(ctx, query, u.UID, u.Name, u.GroupID)
	return err
}

// UpsertPosts stores a fetched timeline, replacing counts on conflict so
// engagement numbers stay current.
func (s *Store) UpsertPosts(ctx context.Context, uid string, posts []selector.Post) error {
	query := `
		INSERT INTO responder.posts (post_id, uid, publish_time, content, reposts, comments, likes, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (post_id) DO UPDATE SET
			content = EXCLUDED.content,
			reposts = EXCLUDED.reposts,
			comments = EXCLUDED.comments,
			likes = EXCLUDED.likes,
			fetched_at = NOW()
	`
	for _, p := range posts {
		if _, err := s.db.ExecContext(ctx, query,
			p.ID, uid, p.PublishTime, p.Content, p.Reposts, p.Comments, p.Likes,
		); err != nil {
			return err
		}
	}
	return nil
}

// PostsForUser returns a user's stored posts, newest first.
func (s *Store) PostsForUser(ctx context.Context, uid string) ([]selector.Post, error) {
	query := `
		SELECT post_id, uid, publish_time, content, reposts, comments, likes
		FROM responder.posts
		WHERE uid = $1
		ORDER BY publish_time DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []selector.Post
	for rows.Next() {
		var p selector.Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.PublishTime, &p.Content, &p.Reposts, &p.Comments, &p.Likes); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) TouchLastSync(ctx context.Context, uid string) error {
	query := `
		UPDATE responder.users SET last_sync_at = NOW() WHERE uid = $1
	`
	_, err := s.db.ExecContext(ctx, query, uid)
	return err
}

// EnqueueResponse inserts a generated response with approved defaulting to
// NO so nothing is sent without review. The generated id is written back.
func (s *Store) EnqueueResponse(ctx context.Context, item *QueueItem) error {
	item.ID = uuid.New().String()
	query := `
		INSERT INTO responder.response_queue
			(id, uid, user_name, group_id, post_id, post_content, history_block, prompt, generated_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	return s.db.QueryRowContext(ctx, query,
		item.ID, item.UID, item.UserName, item.GroupID, item.PostID,
		item.PostContent, item.HistoryBlock, item.Prompt, item.GeneratedResponse,
	).Scan(&item.CreatedAt)
}

// ListApprovedUnsent returns reviewer-approved items not yet delivered,
// oldest first. Items whose last delivery attempt failed are included so a
// transient error does not orphan them; only SENT is terminal.
func (s *Store) ListApprovedUnsent(ctx context.Context) ([]QueueItem, error) {
	query := `
		SELECT id, uid, user_name, group_id, post_id, post_content, history_block,
		       prompt, generated_response, final_response, approved, send_status,
		       send_error, comment_id, created_at
		FROM responder.response_queue
		WHERE approved = $1 AND send_status <> $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ApprovedYes, SendStatusSent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var q QueueItem
		if err := rows.Scan(
			&q.ID, &q.UID, &q.UserName, &q.GroupID, &q.PostID, &q.PostContent,
			&q.HistoryBlock, &q.Prompt, &q.GeneratedResponse, &q.FinalResponse,
			&q.Approved, &q.SendStatus, &q.SendError, &q.CommentID, &q.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

func (s *Store) MarkSent(ctx context.Context, id, commentID string) error {
	query := `
		UPDATE responder.response_queue
		SET send_status = $2, comment_id = $3, send_error = '', sent_at = NOW()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, SendStatusSent, commentID)
	return err
}

// MarkSendFailed records a delivery failure. The error text is capped so the
// column stays readable.
func (s *Store) MarkSendFailed(ctx context.Context, id, sendErr string) error {
	query := `
		UPDATE responder.response_queue
		SET send_status = $2, send_error = $3
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, SendStatusFailed, gateway.Truncate(sendErr, 500))
	return err
}
