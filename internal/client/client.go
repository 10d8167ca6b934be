// Package client talks to a running shopassist server over HTTP and its
// cart notification socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"shopassist/internal/domain"
	"shopassist/internal/notify"
	"shopassist/internal/service"
)

// Client is a thin JSON client for the assistant API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

// Query sends a text query and returns the assistant reply.
func (c *Client) Query(ctx context.Context, text string) (service.QueryResponse, error) {
	var out service.QueryResponse
	err := c.post(ctx, "/query/", map[string]string{"query_text": text}, &out)
	return out, err
}

// Cart returns the current cart lines.
func (c *Client) Cart(ctx context.Context) ([]domain.CartItem, error) {
	var out struct {
		Cart []domain.CartItem `json:"cart"`
	}
	if err := c.do(ctx, http.MethodGet, "/cart/", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Cart, nil
}

// ResetCatalog drops every indexed product on the server.
func (c *Client) ResetCatalog(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/catalog/", "", nil, nil)
}

// Product is one catalog image to upload.
type Product struct {
	Path        string
	Data        []byte
	Description string
	Price       float64
}

// Ingest uploads products as a single multipart request.
func (c *Client) Ingest(ctx context.Context, products []Product) ([]domain.CatalogItem, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range products {
		fw, err := mw.CreateFormFile("files", p.Path)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(p.Data); err != nil {
			return nil, err
		}
		_ = mw.WriteField("descriptions", p.Description)
		_ = mw.WriteField("prices", strconv.FormatFloat(p.Price, 'f', -1, 64))
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var out struct {
		Images []domain.CatalogItem `json:"images"`
	}
	if err := c.do(ctx, http.MethodPost, "/ingest/", mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// Subscribe connects to the cart socket and delivers decoded notifications
// until ctx is cancelled or the connection drops. Frames that are not
// notifications are skipped.
func (c *Client) Subscribe(ctx context.Context) (<-chan notify.Notification, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws/cart"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	out := make(chan notify.Notification, 16)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var n notify.Notification
			if json.Unmarshal(msg, &n) != nil || n.Action == "" {
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(data), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Details != "" {
			return fmt.Errorf("%s %s: %s: %s (%s)", method, path, resp.Status, e.Error, e.Details)
		}
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
