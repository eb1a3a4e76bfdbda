package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"family-admin/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// resultSuccess 与服务端 Result 信封一致
const resultSuccess = 2000

// envelope 服务端统一响应 {code, type, message, result}
type envelope[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

// APIError 非 2xx 响应或 code != 2000
type APIError struct {
	Method  string
	Path    string
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d, code %d: %s", e.Method, e.Path, e.Status, e.Code, e.Message)
}

// Options 客户端配置
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RetryCount 只作用于 GET；PATCH 从不重试
	RetryCount int
	// SessionCookie "name=value"，模拟浏览器 credentials: include
	SessionCookie string
}

// Client 权限 REST API 客户端
type Client struct {
	read   *resty.Client
	write  *resty.Client
	logger *zap.Logger
}

// NewClient 创建客户端
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	read := newResty(opts).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	// 写请求单独一个 client（RetryCount=0），共享同一个 cookie jar
	write := newResty(opts).SetCookieJar(read.GetClient().Jar)

	return &Client{read: read, write: write, logger: logger}
}

func newResty(opts Options) *resty.Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if name, value, ok := strings.Cut(opts.SessionCookie, "="); ok && name != "" {
		c.SetCookie(&http.Cookie{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return c
}

// GetSubject GET /user/{id}
func (c *Client) GetSubject(ctx context.Context, subjectID string) (*domain.SubjectView, error) {
	var res envelope[domain.SubjectView]
	resp, err := c.read.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString()).
		SetPathParam("id", subjectID).
		SetResult(&res).
		SetError(&res).
		Get("/user/{id}")
	if err != nil {
		return nil, fmt.Errorf("GET /user/%s: %w", subjectID, err)
	}
	if err := checkResponse(resp, res.Code, res.Message); err != nil {
		return nil, err
	}
	return &res.Result, nil
}

// FetchPermissions 读取 baseline，缺失的 entity 补全为全 false
func (c *Client) FetchPermissions(ctx context.Context, subjectID string) (domain.Matrix, error) {
	view, err := c.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	m, ignored := domain.MatrixFromRecords(view.Permissions)
	if len(ignored) > 0 {
		c.logger.Warn("ignoring permissions for unknown entities",
			zap.String("subject_id", subjectID),
			zap.Strings("entities", ignored),
		)
	}
	return m, nil
}

// UpdatePermission PATCH /user/{id}/permissions，每个单元格一次
func (c *Client) UpdatePermission(ctx context.Context, subjectID string, change domain.CellChange) error {
	var res envelope[any]
	resp, err := c.write.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString()).
		SetPathParam("id", subjectID).
		SetBody(change).
		SetResult(&res).
		SetError(&res).
		Patch("/user/{id}/permissions")
	if err != nil {
		return fmt.Errorf("PATCH /user/%s/permissions: %w", subjectID, err)
	}
	return checkResponse(resp, res.Code, res.Message)
}

func checkResponse(resp *resty.Response, code int, message string) error {
	if !resp.IsError() && code == resultSuccess {
		return nil
	}
	if message == "" {
		message = strings.TrimSpace(resp.String())
	}
	return &APIError{
		Method:  resp.Request.Method,
		Path:    resp.Request.URL,
		Status:  resp.StatusCode(),
		Code:    code,
		Message: message,
	}
}
