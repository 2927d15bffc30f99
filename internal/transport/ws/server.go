// Package ws carries player commands over a websocket: one request frame
// in, one RESULT frame out, in order.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"paddlers.io/internal/protocol"
)

// Executor runs one decoded command.
type Executor interface {
	Execute(ctx context.Context, cmd protocol.Command) (protocol.Result, error)
}

const (
	readTimeout    = 60 * time.Second
	writeTimeout   = 5 * time.Second
	commandTimeout = 10 * time.Second
	outQueue       = 16
	maxFrameBytes  = 64 * 1024
)

type Server struct {
	exec Executor
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(exec Executor, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		exec: exec,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxFrameBytes,
			WriteBufferSize: maxFrameBytes,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxFrameBytes)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, outQueue)
		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			typ, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if typ != websocket.TextMessage {
				continue
			}
			b, err := json.Marshal(s.handle(ctx, msg))
			if err != nil {
				s.log.Printf("ws: encode response: %v", err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		}
		cancel()
		<-done
	}
}

func (s *Server) handle(ctx context.Context, msg []byte) protocol.Response {
	req, cmd, err := protocol.DecodeRequest(msg)
	if err != nil {
		if req.RequestID == "" {
			var probe struct {
				RequestID string `json:"request_id"`
			}
			_ = json.Unmarshal(msg, &probe)
			req.RequestID = probe.RequestID
		}
		return protocol.NewResponse(req.RequestID, protocol.Result{}, err)
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	res, err := s.exec.Execute(ctx, cmd)
	if err != nil && protocol.ErrorCode(err) == protocol.ErrInternal {
		s.log.Printf("ws: %s %s: %v", req.RequestID, req.Type, err)
	}
	return protocol.NewResponse(req.RequestID, res, err)
}
