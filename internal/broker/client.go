// Package broker is the boundary to the external broker. Only the status
// query and the order-update stream live here; placement and cancellation
// are driven by components outside this core.
package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// OrderStatus is the broker's ground-truth view of one order.
type OrderStatus struct {
	Status      string
	FilledQty   decimal.Decimal
	FilledPrice decimal.Decimal
}

type Config struct {
	BaseURL   string
	WSURL     string
	APIKey    string
	APISecret string
}

type Client struct {
	cfg      Config
	http     *http.Client
	wsDialer *websocket.Dialer
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: 10 * time.Second},
		wsDialer: websocket.DefaultDialer,
	}
}

type orderStatusResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		OrderID   string `json:"ordId"`
		State     string `json:"state"`
		FilledQty string `json:"accFillSz"`
		AvgFillPx string `json:"avgPx"`
	} `json:"data"`
}

// GetOrderStatus queries the broker for one order by its broker-assigned id.
func (c *Client) GetOrderStatus(ctx context.Context, brokerOrderID string) (OrderStatus, error) {
	path := "/api/v1/orders/" + brokerOrderID
	resp, err := c.http.Do(c.generateRequest(ctx, http.MethodGet, path, ""))
	if err != nil {
		return OrderStatus{}, err
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return OrderStatus{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))
	}

	respData := orderStatusResponse{}
	if err := json.Unmarshal(rb, &respData); err != nil {
		return OrderStatus{}, err
	}
	if respData.Code != "0" {
		return OrderStatus{}, fmt.Errorf("broker status error: code=%s msg=%s", respData.Code, respData.Msg)
	}
	if len(respData.Data) == 0 {
		return OrderStatus{}, fmt.Errorf("broker returned no order for %s", brokerOrderID)
	}

	d := respData.Data[0]
	filledQty, _ := decimal.NewFromString(d.FilledQty)
	filledPx, _ := decimal.NewFromString(d.AvgFillPx)
	return OrderStatus{
		Status:      d.State,
		FilledQty:   filledQty,
		FilledPrice: filledPx,
	}, nil
}

func (c *Client) generateRequest(ctx context.Context, method string, requestPath string, body string) *http.Request {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	msg := ts + strings.ToUpper(method) + requestPath + body
	h := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	h.Write([]byte(msg))
	req, _ := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+requestPath, nil)
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	req.Header.Set("X-API-SIGN", base64.StdEncoding.EncodeToString(h.Sum(nil)))
	req.Header.Set("X-API-TIMESTAMP", ts)
	return req
}
