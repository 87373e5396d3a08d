package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS runs one generation per websocket connection. The first client
// frame carries the request JSON; the server then pushes the same records as
// the SSE endpoint and closes after the terminal record.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan WireRecord, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					cancel()
					return
				}
				if err := conn.WriteJSON(rec); err != nil {
					cancel()
					return
				}
				if IsTerminalRecord(rec) {
					_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					cancel()
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	var in apiRequest
	if err := conn.ReadJSON(&in); err != nil {
		cancel()
		<-writerDone
		return
	}

	// From here the reader only notices the peer going away and abandons
	// the run.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	req := in.toGeneration()
	if err := req.Validate(); err != nil {
		h.push(ctx, writeCh, WireRecord{Status: "error", Message: err.Error()})
		<-writerDone
		return
	}

	runID := newRunID(req)
	h.trace.Append(runID, "api", "ws_start", map[string]any{
		"owner": req.Owner, "repo": req.Repo,
	})

	rc, err := h.provider.Fetch(ctx, req.Owner, req.Repo, req.GitHubToken)
	if err != nil {
		h.trace.Append(runID, "api", "fetch_failed", map[string]any{"error": err.Error()})
		h.push(ctx, writeCh, WireRecord{Status: "error", Message: err.Error()})
		<-writerDone
		return
	}

	for ev := range h.svc.Run(ctx, req, rc) {
		h.tracePhase(runID, ev)
		rec := ToWire(ev)
		if !h.push(ctx, writeCh, rec) {
			log.Printf("handler: ws client gone, abandoning run %s", runID)
			break
		}
		if IsTerminalRecord(rec) {
			h.trace.Append(runID, "api", "ws_end", map[string]any{"status": rec.Status})
			break
		}
	}
	<-writerDone
}

func (h *Handler) push(ctx context.Context, writeCh chan<- WireRecord, rec WireRecord) bool {
	select {
	case writeCh <- rec:
		return true
	case <-ctx.Done():
		return false
	}
}
