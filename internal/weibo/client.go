package weibo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/internal/selector"
	"github.com/llj0824/weibo-research-guanghua/pkg/config"
)

const (
	defaultAPIBase = "https://api.weibo.com"

	// rateLimitErrorCode is Weibo's "user requests out of rate limit" code,
	// which can arrive with HTTP 200
	rateLimitErrorCode = 10023

	// maxCommentRunes is Weibo's comment length ceiling
	maxCommentRunes = 140
)

// Config holds Weibo open-platform API settings.
type Config struct {
	APIBase     string
	AccessToken string
}

// ConfigFromEnv reads Weibo settings from the environment.
func ConfigFromEnv() Config {
	return Config{
		APIBase:     config.GetEnv("WEIBO_API_BASE", defaultAPIBase),
		AccessToken: config.GetEnv("WEIBO_ACCESS_TOKEN", ""),
	}
}

// Client talks to the Weibo open platform through the gateway, sharing its
// hourly quota and pacing.
type Client struct {
	gw          *gateway.Gateway
	apiBase     string
	accessToken string
}

func NewClient(gw *gateway.Gateway, cfg Config) *Client {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		gw:          gw,
		apiBase:     apiBase,
		accessToken: cfg.AccessToken,
	}
}

// IsRateLimitBody reports whether a response body carries Weibo's rate-limit
// error code. Wire it into the gateway config so these responses become
// upstream rate-limit errors regardless of HTTP status.
func IsRateLimitBody(body []byte) bool {
	var probe struct {
		ErrorCode int `json:"error_code"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.ErrorCode == rateLimitErrorCode
}

type timelineStatus struct {
	IDStr          string `json:"idstr"`
	ID             int64  `json:"id"`
	CreatedAt      string `json:"created_at"`
	Text           string `json:"text"`
	RepostsCount   int    `json:"reposts_count"`
	CommentsCount  int    `json:"comments_count"`
	AttitudesCount int    `json:"attitudes_count"`
	User           struct {
		IDStr string `json:"idstr"`
		ID    int64  `json:"id"`
	} `json:"user"`
}

type timelineResponse struct {
	Statuses []timelineStatus `json:"statuses"`
}

// UserTimeline fetches up to count recent posts for a user, newest first.
func (c *Client) UserTimeline(ctx context.Context, uid string, count int) ([]selector.Post, error) {
	q := url.Values{}
	q.Set("access_token", c.accessToken)
	q.Set("uid", uid)
	q.Set("count", strconv.Itoa(count))

	req, err := http.NewRequest(http.MethodGet, c.apiBase+"/2/statuses/user_timeline.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("weibo: create timeline request: %w", err)
	}

	body, err := c.gw.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var parsed timelineResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &gateway.UpstreamError{
			Status: http.StatusOK,
			Body:   gateway.Truncate(string(body), 500),
		}
	}

	posts := make([]selector.Post, 0, len(parsed.Statuses))
	for _, s := range parsed.Statuses {
		publishTime, err := time.Parse(time.RubyDate, s.CreatedAt)
		if err != nil {
			// Skip rather than fail the whole timeline on one bad timestamp
			continue
		}
		posts = append(posts, selector.Post{
			ID:          statusID(s.IDStr, s.ID),
			UserID:      statusID(s.User.IDStr, s.User.ID),
			PublishTime: publishTime,
			Content:     s.Text,
			Reposts:     s.RepostsCount,
			Comments:    s.CommentsCount,
			Likes:       s.AttitudesCount,
		})
	}
	return posts, nil
}

type commentResponse struct {
	IDStr string `json:"idstr"`
	ID    int64  `json:"id"`
}

// CreateComment posts a comment on a status and returns the new comment's id.
// Text beyond Weibo's 140-character limit is truncated before sending.
func (c *Client) CreateComment(ctx context.Context, postID, text string) (string, error) {
	form := url.Values{}
	form.Set("access_token", c.accessToken)
	form.Set("id", postID)
	form.Set("comment", TruncateComment(text))

	req, err := http.NewRequest(http.MethodPost, c.apiBase+"/2/comments/create.json",
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("weibo: create comment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.gw.Do(ctx, req)
	if err != nil {
		return "", err
	}

	var parsed commentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &gateway.UpstreamError{
			Status: http.StatusOK,
			Body:   gateway.Truncate(string(body), 500),
		}
	}
	id := statusID(parsed.IDStr, parsed.ID)
	if id == "" {
		return "", &gateway.UpstreamError{
			Status: http.StatusOK,
			Body:   gateway.Truncate(string(body), 500),
		}
	}
	return id, nil
}

// TruncateComment caps text at Weibo's comment length, counting runes so
// multi-byte characters are not split.
func TruncateComment(text string) string {
	runes := []rune(text)
	if len(runes) <= maxCommentRunes {
		return text
	}
	return string(runes[:maxCommentRunes])
}

func statusID(idstr string, id int64) string {
	if idstr != "" {
		return idstr
	}
	if id != 0 {
		return strconv.FormatInt(id, 10)
	}
	return ""
}
