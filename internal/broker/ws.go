package broker

import (
	"context"
	"encoding/json"
	"time"

	"order_core/pkg/logger"

	"github.com/shopspring/decimal"
)

// OrderUpdate is one frame of the broker's order channel.
type OrderUpdate struct {
	BrokerOrderID string
	Status        string // "open", "partial", "filled", "cancelled"
	FilledQty     decimal.Decimal
	FilledPrice   decimal.Decimal
}

// StreamOrderUpdates keeps one websocket subscription to the broker's order
// channel, reconnecting forever until ctx is cancelled.
func (c *Client) StreamOrderUpdates(ctx context.Context) <-chan OrderUpdate {
	ch := make(chan OrderUpdate)
	go func() {
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			logger.Info("[WS] connect %s", c.cfg.WSURL)
			conn, _, err := c.wsDialer.Dial(c.cfg.WSURL, nil)
			if err != nil {
				logger.Error("[WS] dial error: %v", err)
				time.Sleep(time.Second)
				continue
			}

			sub := map[string]any{
				"op":   "subscribe",
				"args": []map[string]string{{"channel": "orders"}},
			}
			if err := conn.WriteJSON(sub); err != nil {
				logger.Error("[WS] subscribe error: %v", err)
				_ = conn.Close()
				continue
			}

			// keepalive ping every 20s, the broker drops idle connections
			stopPing := make(chan struct{})
			go func() {
				t := time.NewTicker(20 * time.Second)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-stopPing:
						return
					case <-t.C:
						_ = conn.WriteJSON(map[string]string{"op": "ping"})
					}
				}
			}()

			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					logger.Error("[WS] read error: %v", err)
					close(stopPing)
					_ = conn.Close()
					break
				}

				var frame struct {
					Arg struct {
						Channel string `json:"channel"`
					} `json:"arg"`
					Data []struct {
						OrderID   string `json:"ordId"`
						State     string `json:"state"`
						FilledQty string `json:"accFillSz"`
						AvgFillPx string `json:"avgPx"`
					} `json:"data"`
				}
				if err := json.Unmarshal(msg, &frame); err != nil {
					continue
				}
				if frame.Arg.Channel != "orders" {
					continue
				}

				for _, d := range frame.Data {
					qty, _ := decimal.NewFromString(d.FilledQty)
					px, _ := decimal.NewFromString(d.AvgFillPx)
					upd := OrderUpdate{
						BrokerOrderID: d.OrderID,
						Status:        d.State,
						FilledQty:     qty,
						FilledPrice:   px,
					}
					select {
					case <-ctx.Done():
						close(stopPing)
						_ = conn.Close()
						return
					case ch <- upd:
					}
				}
			}
		}
	}()
	return ch
}
