package billing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

const listEventsMaxPages = 50

// Customer 上游客户对象（兜底解析路径取邮箱用）。
type Customer struct {
	ID    string
	Email string
	Name  string
	Raw   map[string]interface{}
}

// Client 计费处理方查询客户端。
// 所有出站请求都走同一个熔断器，上游持续故障时快速失败。
type Client struct {
	cfg        *Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient 创建计费处理方客户端。
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	cfg.normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "billing-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 >= counts.Requests
		},
	})
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.timeout()},
		breaker:    breaker,
	}, nil
}

// ListSucceededEvents 拉取自某时刻以来的成功类事件，自动翻页。
// 对账扫描用，只取会产生本地效果的事件类型。
func (c *Client) ListSucceededEvents(ctx context.Context, since time.Time, pageSize int) ([]*InboundEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	types := []string{
		"payment_intent.succeeded",
		"charge.succeeded",
		"checkout.session.completed",
	}

	events := make([]*InboundEvent, 0)
	startingAfter := ""
	for page := 0; page < listEventsMaxPages; page++ {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("created[gte]", strconv.FormatInt(since.Unix(), 10))
		for _, t := range types {
			query.Add("types[]", t)
		}
		if startingAfter != "" {
			query.Set("starting_after", startingAfter)
		}

		body, err := c.doJSONRequest(ctx, http.MethodGet, "/v1/events?"+query.Encode())
		if err != nil {
			return nil, err
		}
		raw, err := decodeRawMap(body)
		if err != nil {
			return nil, err
		}
		data, ok := raw["data"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: missing event list data", ErrResponseInvalid)
		}
		for _, item := range data {
			itemRaw, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			event, err := ParseEvent(itemRaw)
			if err != nil {
				// 无法解析的单条事件跳过，不中断整页拉取
				continue
			}
			events = append(events, event)
			startingAfter = event.EventID
		}
		if !readBool(raw, "has_more") || len(data) == 0 {
			break
		}
	}
	return events, nil
}

// GetCustomer 按上游客户标识获取客户对象。
func (c *Client) GetCustomer(ctx context.Context, customerRef string) (*Customer, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	customerRef = strings.TrimSpace(customerRef)
	if customerRef == "" {
		return nil, fmt.Errorf("%w: customer_ref is required", ErrConfigInvalid)
	}

	path := fmt.Sprintf("/v1/customers/%s", url.PathEscape(customerRef))
	body, err := c.doJSONRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	customer := &Customer{
		ID:    strings.TrimSpace(readString(raw, "id")),
		Email: strings.ToLower(strings.TrimSpace(readString(raw, "email"))),
		Name:  strings.TrimSpace(readString(raw, "name")),
		Raw:   raw,
	}
	if customer.ID == "" {
		return nil, fmt.Errorf("%w: missing customer id", ErrResponseInvalid)
	}
	return customer, nil
}

func (c *Client) doJSONRequest(ctx context.Context, method, path string) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		endpoint := c.cfg.APIBaseURL + path
		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %s %s status %d", ErrResponseInvalid, method, path, resp.StatusCode)
		}
		return body, nil
	})
}
