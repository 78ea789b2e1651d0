package kucoin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Kucoin/kucoin-go-sdk"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const level2Frame = `{"type":"message","topic":"/market/level2:BTC-USDT","subject":"trade.l2update","data":{"changes":{"asks":[["18906","0.00331","14103845"]],"bids":[]},"sequenceEnd":14103845,"sequenceStart":14103844,"symbol":"BTC-USDT","time":1663747970273}}`

type fakeFeed struct {
	srv *httptest.Server

	mu          sync.Mutex
	connections int
	pings       int
	topics      []string
	conns       []*websocket.Conn
	badQuery    bool
}

func newFakeFeed(t *testing.T) *fakeFeed {
	t.Helper()

	f := &fakeFeed{}
	upgrader := websocket.Upgrader{}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		f.mu.Lock()
		f.connections++
		f.conns = append(f.conns, conn)
		if r.URL.Query().Get("token") != "test-token" || r.URL.Query().Get("connectId") == "" {
			f.badQuery = true
		}
		f.mu.Unlock()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"welcome","type":"welcome"}`))

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var m struct {
				Id    string `json:"id"`
				Type  string `json:"type"`
				Topic string `json:"topic"`
			}
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}

			switch m.Type {
			case "subscribe":
				f.mu.Lock()
				f.topics = append(f.topics, m.Topic)
				f.mu.Unlock()

				_ = conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"id":%q,"type":"ack"}`, m.Id)))
				_ = conn.WriteMessage(websocket.TextMessage, []byte(level2Frame))
			case "ping":
				f.mu.Lock()
				f.pings++
				f.mu.Unlock()

				_ = conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"id":%q,"type":"pong"}`, m.Id)))
			}
		}
	}))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeFeed) WsConnOpts() (*kucoin.WebSocketTokenModel, error) {
	return &kucoin.WebSocketTokenModel{
		Token: "test-token",
		Servers: []*kucoin.WebSocketServerModel{{
			Endpoint:     "ws" + strings.TrimPrefix(f.srv.URL, "http"),
			Protocol:     "websocket",
			PingInterval: 50,
			PingTimeout:  1000,
		}},
	}, nil
}

func (f *fakeFeed) dropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, conn := range f.conns {
		_ = conn.Close()
	}
}

func (f *fakeFeed) stats() (connections, pings int, topics []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connections, f.pings, append([]string(nil), f.topics...)
}

func newTestStreamClient(t *testing.T, feed *fakeFeed, symbols []string) *KucoinStreamClient {
	t.Helper()

	config := DefaultStreamClientConfig()
	config.ReconnectMin = 10 * time.Millisecond
	config.ReconnectMax = 50 * time.Millisecond

	client := NewKucoinStreamClient(feed, symbols, config, zap.NewNop())
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func nextMessage(t *testing.T, client *KucoinStreamClient) []byte {
	t.Helper()

	select {
	case msg := <-client.Messages():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestKucoinStreamClient_SubscribesAndDelivers(t *testing.T) {
	feed := newFakeFeed(t)
	client := newTestStreamClient(t, feed, []string{"BTC-USDT", "ETH-USDT"})

	connected := make(chan struct{}, 1)
	client.OnConnected(func() { connected <- struct{}{} })

	require.NoError(t, client.Start())

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
	}

	received := false
	for i := 0; i < 5 && !received; i++ {
		update, err := DecodeDepthUpdate(nextMessage(t, client))
		if err == nil {
			received = true
			assert.Equal(t, "BTC-USDT", update.Symbol)
			assert.Equal(t, int64(14103845), update.SequenceEnd)
		}
	}
	assert.True(t, received, "level2 frame should be delivered")

	_, _, topics := feed.stats()
	assert.Equal(t, []string{"/market/level2:BTC-USDT,ETH-USDT"}, topics)
	assert.True(t, client.Connected())

	require.Eventually(t, func() bool {
		_, pings, _ := feed.stats()
		return pings > 0
	}, 2*time.Second, 10*time.Millisecond, "client should keep the connection alive")

	feed.mu.Lock()
	assert.False(t, feed.badQuery, "token and connectId must be sent")
	feed.mu.Unlock()
}

func TestKucoinStreamClient_ChunksTopics(t *testing.T) {
	feed := newFakeFeed(t)

	symbols := make([]string, 150)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%d-USDT", i)
	}
	client := newTestStreamClient(t, feed, symbols)
	require.NoError(t, client.Start())

	require.Eventually(t, func() bool {
		_, _, topics := feed.stats()
		return len(topics) == 2
	}, 2*time.Second, 10*time.Millisecond)

	_, _, topics := feed.stats()
	assert.Equal(t, maxSymbolsPerTopic, strings.Count(topics[0], ",")+1)
	assert.Equal(t, 50, strings.Count(topics[1], ",")+1)
}

func TestKucoinStreamClient_Reconnects(t *testing.T) {
	feed := newFakeFeed(t)
	client := newTestStreamClient(t, feed, []string{"BTC-USDT"})

	var mu sync.Mutex
	sessions := 0
	client.OnConnected(func() {
		mu.Lock()
		sessions++
		mu.Unlock()
	})

	require.NoError(t, client.Start())
	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	feed.dropConnections()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sessions >= 2
	}, 2*time.Second, 10*time.Millisecond, "client should reconnect and resubscribe")
}

func TestKucoinStreamClient_StopAndStart(t *testing.T) {
	feed := newFakeFeed(t)
	client := newTestStreamClient(t, feed, []string{"BTC-USDT"})

	require.NoError(t, client.Start())
	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Stop())
	require.Eventually(t, func() bool { return !client.Connected() }, 2*time.Second, 10*time.Millisecond)

	connections, _, _ := feed.stats()
	time.Sleep(100 * time.Millisecond)
	after, _, _ := feed.stats()
	assert.Equal(t, connections, after, "stopped client must not reconnect")

	require.NoError(t, client.Start())
	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)
}

func TestKucoinStreamClient_Restart(t *testing.T) {
	feed := newFakeFeed(t)
	client := newTestStreamClient(t, feed, []string{"BTC-USDT"})

	require.NoError(t, client.Start())
	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Restart())
	require.Eventually(t, func() bool {
		connections, _, _ := feed.stats()
		return connections >= 2 && client.Connected()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKucoinStreamClient_SetSymbolsResubscribes(t *testing.T) {
	feed := newFakeFeed(t)
	client := newTestStreamClient(t, feed, []string{"BTC-USDT"})

	require.NoError(t, client.Start())
	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	client.SetSymbols([]string{"KCS-USDT"})

	require.Eventually(t, func() bool {
		_, _, topics := feed.stats()
		return len(topics) >= 2 && topics[len(topics)-1] == "/market/level2:KCS-USDT"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"KCS-USDT"}, client.Symbols())
}

func TestKucoinStreamClient_ClosedClientRejectsStart(t *testing.T) {
	feed := newFakeFeed(t)
	client := newTestStreamClient(t, feed, []string{"BTC-USDT"})

	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Start(), ErrStreamClosed)
	assert.ErrorIs(t, client.Restart(), ErrStreamClosed)
}
