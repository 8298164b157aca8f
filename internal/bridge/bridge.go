// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package bridge implements the localhost WebSocket server the browser
// extension connects to: single connection at a time, correlated
// JSON-RPC request/response, keep-alive pings, and fail-fast draining of
// every pending call on disconnect.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robmacrae/surfbroker/internal/id"
	"github.com/robmacrae/surfbroker/internal/logging"
	"github.com/robmacrae/surfbroker/internal/model"
)

const (
	DefaultTimeout  = 30 * time.Second
	pingInterval    = 10 * time.Second
	rejectSettle    = 100 * time.Millisecond
	conflictErrCode = -32001
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireRequest is a broker -> extension JSON-RPC request.
type wireRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// wireEnvelope is the superset shape needed to classify an inbound frame:
// a response (has id), a notification (has method, no id), or a
// handshake (has type == "handshake").
type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"`

	Browser        string `json:"browser,omitempty"`
	BuildTimestamp string `json:"buildTimestamp,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Bridge owns the single extension WebSocket connection.
type Bridge struct {
	addr   string
	server *http.Server
	log    *logging.Trail

	mu            sync.Mutex
	conn          *websocket.Conn
	inflight      map[string]*model.PendingCall
	pingTimer     *time.Timer
	pingDone      chan struct{}
	browserType   string
	buildTime     string
	handshakeSeen bool

	OnReconnect      func()
	OnTabInfoUpdate  func(model.TabInfo)
	OnHandshake      func(browser, buildTimestamp string)
	OnDisconnect     func()
}

func New(addr string, log *logging.Trail) *Bridge {
	return &Bridge{
		addr:     addr,
		log:      log,
		inflight: map[string]*model.PendingCall{},
	}
}

// Start opens the loopback listener and begins serving WebSocket
// upgrades. It returns once the listener is bound; serving continues in
// the background until Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleUpgrade)

	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", b.addr, err)
	}
	b.server = &http.Server{Handler: mux}
	go func() {
		if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.log.Logf("bridge: serve error: %v", err)
		}
	}()
	return nil
}

func (b *Bridge) Stop() {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.server.Shutdown(ctx)
	}
}

func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.handshakeSeen
}

func (b *Bridge) BrowserName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.browserType
}

func (b *Bridge) BuildTimestamp() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buildTime
}

func (b *Bridge) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Logf("bridge: upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	existing := b.conn
	reconnecting := existing != nil
	b.mu.Unlock()

	if reconnecting {
		// Single-connection policy: reject the newcomer outright only if
		// the existing connection is still alive; detect liveness with a
		// control-frame ping.
		if b.pingAlive(existing) {
			b.rejectConflict(conn)
			return
		}
		b.teardown(existing, false)
	}

	b.mu.Lock()
	b.conn = conn
	b.handshakeSeen = false
	b.inflight = map[string]*model.PendingCall{}
	b.mu.Unlock()

	if reconnecting && b.OnReconnect != nil {
		b.OnReconnect()
	}

	b.armKeepAlive(conn)
	go b.readLoop(conn)
}

func (b *Bridge) pingAlive(conn *websocket.Conn) bool {
	if conn == nil {
		return false
	}
	err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(2*time.Second))
	return err == nil
}

func (b *Bridge) rejectConflict(conn *websocket.Conn) {
	payload, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    conflictErrCode,
			"message": "Another browser is already connected. Only one browser at a time.",
		},
	})
	_ = conn.WriteMessage(websocket.TextMessage, payload)
	time.Sleep(rejectSettle)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(1008, "single connection only"),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func (b *Bridge) armKeepAlive(conn *websocket.Conn) {
	done := make(chan struct{})
	b.mu.Lock()
	b.pingDone = done
	b.mu.Unlock()
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.teardown(conn, true)
			return
		}
		b.handleFrame(data)
	}
}

func (b *Bridge) handleFrame(data []byte) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.log.Logf("bridge: unparseable frame: %v", err)
		return
	}

	switch {
	case env.Type == "handshake":
		b.mu.Lock()
		b.browserType = env.Browser
		b.buildTime = env.BuildTimestamp
		b.handshakeSeen = true
		b.mu.Unlock()
		if b.OnHandshake != nil {
			b.OnHandshake(env.Browser, env.BuildTimestamp)
		}

	case env.Method == "notifications/tab_info_update":
		var payload struct {
			CurrentTab model.TabInfo `json:"currentTab"`
		}
		if err := json.Unmarshal(env.Params, &payload); err == nil && b.OnTabInfoUpdate != nil {
			b.OnTabInfoUpdate(payload.CurrentTab)
		}

	case env.ID != "":
		b.settle(env.ID, env.Result, env.Error)

	default:
		b.log.Logf("bridge: unrecognized frame: %s", string(data))
	}
}

func (b *Bridge) settle(id string, result json.RawMessage, wireErr *wireError) {
	b.mu.Lock()
	pc, ok := b.inflight[id]
	if ok {
		delete(b.inflight, id)
	}
	b.mu.Unlock()
	if !ok {
		b.log.Logf("bridge: response for unknown id %s", id)
		return
	}
	if wireErr != nil {
		pc.ResultCh <- model.PendingResult{Err: model.NewToolError(model.KindPeerError, wireErr.Message)}
		return
	}
	pc.ResultCh <- model.PendingResult{Value: result}
}

// teardown handles both graceful (disconnect) and forced (superseded by
// a reconnect) closes of a connection that is, or was, the active one.
func (b *Bridge) teardown(conn *websocket.Conn, drain bool) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	if b.pingDone != nil {
		close(b.pingDone)
		b.pingDone = nil
	}
	b.conn = nil
	b.handshakeSeen = false
	pending := b.inflight
	b.inflight = map[string]*model.PendingCall{}
	b.mu.Unlock()

	_ = conn.Close()

	for id, pc := range pending {
		_ = id
		pc.ResultCh <- model.PendingResult{Err: model.NewToolError(model.KindDisconnected, "extension disconnected")}
	}

	if drain && b.OnDisconnect != nil {
		b.OnDisconnect()
	}
}

func newCorrelationID() (string, error) {
	return id.NewN(8)
}

// SendCmd forwards method/params to the extension and awaits a
// correlated response, or returns a typed error.
func (b *Bridge) SendCmd(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return b.SendCmdTimeout(ctx, method, params, DefaultTimeout)
}

func (b *Bridge) SendCmdTimeout(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil, model.NewToolError(model.KindNotConnected, "no extension connected")
	}

	id, err := newCorrelationID()
	if err != nil {
		return nil, fmt.Errorf("bridge: generate correlation id: %w", err)
	}

	pc := &model.PendingCall{ResultCh: make(chan model.PendingResult, 1), Created: time.Now()}
	b.mu.Lock()
	b.inflight[id] = pc
	b.mu.Unlock()

	req := wireRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		b.removeInflight(id)
		return nil, fmt.Errorf("bridge: marshal request: %w", err)
	}

	if method == "secureType" {
		// secure_fill's credential must never reach the trail log.
		b.log.Logf("-> extension %s (params withheld)", method)
	} else {
		b.log.LogJSON("-> extension", req)
	}

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		b.removeInflight(id)
		return nil, model.WrapToolError(model.KindDisconnected, "write failed", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pc.ResultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		b.log.LogJSON("<- extension", res.Value)
		return res.Value, nil
	case <-timer.C:
		b.removeInflight(id)
		return nil, model.NewToolError(model.KindTimeout, fmt.Sprintf("Request timeout: %s", method))
	case <-ctx.Done():
		b.removeInflight(id)
		return nil, ctx.Err()
	}
}

func (b *Bridge) removeInflight(id string) {
	b.mu.Lock()
	delete(b.inflight, id)
	b.mu.Unlock()
}
