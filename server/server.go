// Package server exposes agent sessions over a websocket gateway. Every
// connection gets its own independent session: one inbound frame drives one
// loop step, and the step outcome is written back as a JSON frame.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/pilot-go-sdk/core"
	"github.com/becomeliminal/pilot-go-sdk/engine"
	"github.com/becomeliminal/pilot-go-sdk/llm"
	"github.com/becomeliminal/pilot-go-sdk/parse"
)

// Config holds gateway settings.
type Config struct {
	// Addr is the listen address. Default: ":8080".
	Addr string

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the defaults used when no config is given.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server serves websocket sessions for one engine and identity.
type Server struct {
	eng      *engine.Engine
	identity *core.Identity
	cfg      *Config
	upgrader websocket.Upgrader
}

// New creates a gateway. A nil config uses DefaultConfig.
func New(eng *engine.Engine, identity *core.Identity, cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	return &Server{
		eng:      eng,
		identity: identity,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler: GET /session upgrades to a websocket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// ListenAndServe runs the gateway until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Handler()}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[WS] Listening on %s", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// inboundFrame is one client message: the input for the next step. "start"
// kicks off the loop; any other non-empty text is human feedback.
type inboundFrame struct {
	Input string `json:"input"`
}

// resultFrame mirrors the command outcome on the wire.
type resultFrame struct {
	Status  string `json:"status"`
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"`
}

// stepFrame is one step outcome pushed to the client.
type stepFrame struct {
	Log      string               `json:"log,omitempty"`
	Thoughts *parse.ThoughtRecord `json:"thoughts,omitempty"`
	Result   *resultFrame         `json:"result,omitempty"`
	State    string               `json:"state"`
	Error    string               `json:"error,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	connID := uuid.NewString()
	log.Printf("[WS] Session %s connected from %s", connID, r.RemoteAddr)

	sess, err := s.eng.StartSession(r.Context(), s.identity)
	if err != nil {
		log.Printf("[WS] Session %s start failed: %v", connID, err)
		_ = ws.WriteJSON(stepFrame{State: engine.StateAborted.String(), Error: err.Error()})
		return
	}
	defer sess.Stop()

	for {
		var in inboundFrame
		if err := ws.ReadJSON(&in); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[WS] Session %s closed", connID)
			} else {
				log.Printf("[WS] Session %s read error: %v", connID, err)
			}
			return
		}

		res, err := sess.Step(r.Context(), in.Input)
		if err != nil {
			frame := stepFrame{State: sess.State().String(), Error: err.Error()}
			var terminal *llm.TerminalError
			if errors.As(err, &terminal) {
				log.Printf("[WS] Session %s terminal fault: %v", connID, terminal)
			}
			_ = ws.WriteJSON(frame)
			return
		}

		frame := stepFrame{
			Log:      res.Log,
			Thoughts: res.Thoughts,
			State:    res.State.String(),
			Result: &resultFrame{
				Status:  statusString(res.Result.Status),
				Command: res.Result.Command,
				Output:  res.Result.Output,
			},
		}
		if err := ws.WriteJSON(frame); err != nil {
			log.Printf("[WS] Session %s write error: %v", connID, err)
			return
		}

		if res.State == engine.StateCompleted || res.State == engine.StateAborted {
			log.Printf("[WS] Session %s finished: %s", connID, res.State)
			return
		}
	}
}

func statusString(status core.CommandStatus) string {
	switch status {
	case core.CommandSuccess:
		return "success"
	case core.CommandError:
		return "error"
	case core.CommandNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
