// Package renderer 封装外部无头文档渲染服务(HTML/JSON→PDF)。
// 对本系统而言它是黑盒：投递结构化文档，拿回PDF字节流。
package renderer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client 渲染服务客户端。sem限制同进程并发渲染数，
// 每次调用领取/释放一个槽位，失败路径同样释放。
type Client struct {
	http *resty.Client
	sem  chan struct{}
}

// NewClient 创建渲染客户端
func NewClient(baseURL string, timeout time.Duration, maxConcurrent int) *Client {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(2 * time.Second)

	return &Client{
		http: httpClient,
		sem:  make(chan struct{}, maxConcurrent),
	}
}

// Render 渲染结构化文档为PDF字节流
func (c *Client) Render(ctx context.Context, document interface{}) ([]byte, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/pdf").
		SetBody(document).
		Post("/render")
	if err != nil {
		return nil, fmt.Errorf("call renderer: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("renderer returned status %d: %s", resp.StatusCode(), resp.String())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("renderer returned empty document")
	}
	return body, nil
}
