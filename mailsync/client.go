package mailsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
)

type mailGatewayClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	path      string
	http      *http.Client
	limiter   <-chan time.Time
}

// NewMailGatewaySource builds the HTTP MessageSource against the mail
// gateway. Configuration comes from env: MAILGATE_BASE_URL (required),
// MAILGATE_API_KEY (required), MAILGATE_API_KEY_HEADER,
// MAILGATE_MESSAGES_PATH and MAILGATE_RATE_LIMIT_PER_MIN.
func NewMailGatewaySource() (MessageSource, error) {
	baseURL := strings.TrimSpace(os.Getenv("MAILGATE_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("MAILGATE_BASE_URL is empty")
	}
	apiKey := strings.TrimSpace(os.Getenv("MAILGATE_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("MAILGATE_API_KEY is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("MAILGATE_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	path := strings.TrimSpace(os.Getenv("MAILGATE_MESSAGES_PATH"))
	if path == "" {
		path = "/v1/messages"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("MAILGATE_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &mailGatewayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		path:      path,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type mailListResponse struct {
	Data       []Message `json:"data"`
	Items      []Message `json:"items"`
	NextCursor string    `json:"next_cursor"`
	HasMore    *bool     `json:"has_more"`
}

// FetchWindow pages through the gateway's message listing for the inclusive
// [from, to] calendar window. The upper bound is sent as the start of the
// following day so messages received any time on the to-date are included.
func (c *mailGatewayClient) FetchWindow(ctx context.Context, from time.Time, to time.Time) ([]Message, error) {
	after := utils.DayKey(from)
	before := utils.DayKey(to).Add(24 * time.Hour)

	var (
		messages []Message
		cursor   string
	)
	for {
		params := url.Values{}
		params.Set("received_after", after.Format(time.RFC3339))
		params.Set("received_before", before.Format(time.RFC3339))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		page, err := c.getList(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrorSourceUnavailable, err)
		}

		items := page.Data
		if len(items) == 0 {
			items = page.Items
		}
		messages = append(messages, items...)

		if page.NextCursor == "" || (page.HasMore != nil && !*page.HasMore) {
			break
		}
		cursor = page.NextCursor
	}
	return messages, nil
}

func (c *mailGatewayClient) getList(ctx context.Context, params url.Values) (mailListResponse, error) {
	<-c.limiter
	endpoint := c.baseURL + c.path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return mailListResponse{}, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return mailListResponse{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mailListResponse{}, fmt.Errorf("mail gateway error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed mailListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return mailListResponse{}, err
	}
	return parsed, nil
}
