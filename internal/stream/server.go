package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sessionBuffer = 4096
	writeTimeout  = 5 * time.Second
	readTimeout   = 60 * time.Second
)

// Handler upgrades loopback requests to a mesh stream. The client must send
// SUBSCRIBE first.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(writeTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, err := h.decodeSubscribe(msg)
		if err != nil {
			h.log.Printf("reject subscribe from %s: %v", r.RemoteAddr, err)
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}

		s := &session{
			id:  fmt.Sprintf("S%d", h.nextID.Add(1)),
			out: make(chan frame, sessionBuffer),
		}
		s.maxLod.Store(maxLod(sub))
		h.join(s, sub.Replay)
		defer h.leave(s.id)
		h.log.Printf("session %s joined from %s", s.id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() { writeErr <- writeLoop(ctx, conn, s.out) }()

		// Reader loop: SUBSCRIBE may be re-sent to change the filter.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, err := h.decodeSubscribe(msg)
			if err != nil {
				continue
			}
			s.maxLod.Store(maxLod(sub))
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, f.header); err != nil {
				return err
			}
			if f.payload == nil {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, f.payload); err != nil {
				return err
			}
		}
	}
}

// decodeSubscribe validates msg against the SUBSCRIBE schema before decoding it.
func (h *Hub) decodeSubscribe(msg []byte) (SubscribeMsg, error) {
	var raw any
	if err := json.Unmarshal(msg, &raw); err != nil {
		return SubscribeMsg{}, err
	}
	if err := h.subscribe.Validate(raw); err != nil {
		return SubscribeMsg{}, err
	}
	var sub SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return SubscribeMsg{}, err
	}
	if sub.ProtocolVersion != Version {
		return SubscribeMsg{}, fmt.Errorf("protocol version %q, want %q", sub.ProtocolVersion, Version)
	}
	return sub, nil
}

func maxLod(sub SubscribeMsg) int32 {
	if sub.MaxLod == nil {
		return 1<<31 - 1
	}
	return int32(*sub.MaxLod)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
