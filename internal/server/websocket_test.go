package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/collinmckay/vulnsuite/internal/analysis"
	"github.com/collinmckay/vulnsuite/internal/server"
)

// Broadcasting runs on the analysis goroutine while clients connect and
// drop at will; the hub must survive that churn.
func TestHubBroadcastDuringClientChurn(t *testing.T) {
	hub := server.NewHub()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		hub.Subscribe("proj-1", conn)
		defer hub.Unsubscribe("proj-1", conn)
		defer conn.CloseNow()
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast("proj-1", analysis.OutputLine{
					Timestamp: time.Now(),
					Stream:    "stdout",
					Line:      "tick",
				})
			}
		}
	}()

	for i := 0; i < 40; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		conn, _, err := websocket.Dial(ctx, srv.URL, nil)
		require.NoError(t, err)
		conn.Close(websocket.StatusNormalClosure, "")
		cancel()
	}

	close(stop)
	wg.Wait()
}
