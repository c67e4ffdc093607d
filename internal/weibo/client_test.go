package weibo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/pkg/clients"
)

func testGateway(rateLimitBody func([]byte) bool) *gateway.Gateway {
	return gateway.New(gateway.Config{
		Upstream:      "weibo",
		Quota:         gateway.NewHourlyQuota(10),
		RateLimitBody: rateLimitBody,
		Retry: &clients.RetryConfig{
			MaxRetries: 0,
			RetryFunc:  clients.TransportOnlyShouldRetry,
		},
	})
}

func TestUserTimelineParsesStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/2/statuses/user_timeline.json" {
			t.Errorf("unexpected path: %s", got)
		}
		q := r.URL.Query()
		if q.Get("uid") != "1234567890" {
			t.Errorf("unexpected uid: %s", q.Get("uid"))
		}
		if q.Get("count") != "20" {
			t.Errorf("unexpected count: %s", q.Get("count"))
		}
		if q.Get("access_token") != "tok" {
			t.Errorf("unexpected access_token: %s", q.Get("access_token"))
		}
		w.Write([]byte(`{"statuses":[
			{"idstr":"900001","created_at":"Tue May 07 14:30:00 +0800 2024","text":"第一条",
			 "reposts_count":3,"comments_count":5,"attitudes_count":12,"user":{"idstr":"1234567890"}},
			{"id":900002,"created_at":"Mon May 06 09:00:00 +0800 2024","text":"第二条",
			 "reposts_count":0,"comments_count":1,"attitudes_count":2,"user":{"id":1234567890}}
		]}`))
	}))
	defer server.Close()

	c := NewClient(testGateway(nil), Config{APIBase: server.URL, AccessToken: "tok"})

	posts, err := c.UserTimeline(context.Background(), "1234567890", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}

	first := posts[0]
	if first.ID != "900001" || first.UserID != "1234567890" {
		t.Fatalf("unexpected ids: %+v", first)
	}
	if first.Content != "第一条" {
		t.Fatalf("unexpected content: %q", first.Content)
	}
	if first.Reposts != 3 || first.Comments != 5 || first.Likes != 12 {
		t.Fatalf("unexpected counts: %+v", first)
	}
	want := time.Date(2024, time.May, 7, 14, 30, 0, 0, time.FixedZone("", 8*3600))
	if !first.PublishTime.Equal(want) {
		t.Fatalf("unexpected publish time: %v", first.PublishTime)
	}

	// numeric ids fall back when idstr is absent
	if posts[1].ID != "900002" || posts[1].UserID != "1234567890" {
		t.Fatalf("unexpected fallback ids: %+v", posts[1])
	}
}

func TestUserTimelineSkipsUnparseableTimestamps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"statuses":[
			{"idstr":"1","created_at":"not a date","text":"bad"},
			{"idstr":"2","created_at":"Mon May 06 09:00:00 +0800 2024","text":"good"}
		]}`))
	}))
	defer server.Close()

	c := NewClient(testGateway(nil), Config{APIBase: server.URL})

	posts, err := c.UserTimeline(context.Background(), "u", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "2" {
		t.Fatalf("expected only the parseable status, got %+v", posts)
	}
}

func TestCreateCommentSendsFormAndReturnsID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2/comments/create.json" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("id") != "900001" {
			t.Errorf("unexpected id: %s", r.PostForm.Get("id"))
		}
		if r.PostForm.Get("comment") != "加油！" {
			t.Errorf("unexpected comment: %s", r.PostForm.Get("comment"))
		}
		if r.PostForm.Get("access_token") != "tok" {
			t.Errorf("unexpected access_token: %s", r.PostForm.Get("access_token"))
		}
		w.Write([]byte(`{"idstr":"555","id":555}`))
	}))
	defer server.Close()

	c := NewClient(testGateway(nil), Config{APIBase: server.URL, AccessToken: "tok"})

	id, err := c.CreateComment(context.Background(), "900001", "加油！")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "555" {
		t.Fatalf("unexpected comment id: %s", id)
	}
}

func TestCreateCommentTruncatesLongText(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		received = r.PostForm.Get("comment")
		w.Write([]byte(`{"idstr":"1"}`))
	}))
	defer server.Close()

	c := NewClient(testGateway(nil), Config{APIBase: server.URL})

	long := strings.Repeat("好", 200)
	if _, err := c.CreateComment(context.Background(), "1", long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len([]rune(received)); got != 140 {
		t.Fatalf("expected 140 runes, got %d", got)
	}
}

func TestRateLimitBodyBecomesUpstreamRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code":10023,"error":"user requests out of rate limit"}`))
	}))
	defer server.Close()

	c := NewClient(testGateway(IsRateLimitBody), Config{APIBase: server.URL})

	_, err := c.UserTimeline(context.Background(), "u", 5)
	if !errors.Is(err, gateway.ErrUpstreamRateLimited) {
		t.Fatalf("expected ErrUpstreamRateLimited, got %v", err)
	}
}

func TestIsRateLimitBody(t *testing.T) {
	if !IsRateLimitBody([]byte(`{"error_code":10023}`)) {
		t.Fatal("expected 10023 to match")
	}
	if IsRateLimitBody([]byte(`{"error_code":10022}`)) {
		t.Fatal("10022 must not match")
	}
	if IsRateLimitBody([]byte(`{"statuses":[]}`)) {
		t.Fatal("normal body must not match")
	}
	if IsRateLimitBody([]byte(`not json`)) {
		t.Fatal("non-JSON body must not match")
	}
}

func TestTruncateComment(t *testing.T) {
	if got := TruncateComment("short"); got != "short" {
		t.Fatalf("unexpected: %q", got)
	}
	long := strings.Repeat("微", 150)
	if got := TruncateComment(long); got != strings.Repeat("微", 140) {
		t.Fatalf("expected clean rune truncation, got %d runes", len([]rune(got)))
	}
}
