package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cityrun.ai/internal/logging"
	"cityrun.ai/internal/protocol"
	"cityrun.ai/internal/sim/city"
	"cityrun.ai/internal/sim/world"
)

// Authenticator decides whether user may log in with password.
type Authenticator func(user, password string) bool

// Passwords authenticates against a fixed agent -> password table.
func Passwords(table map[string]string) Authenticator {
	return func(user, password string) bool {
		pw, ok := table[user]
		return ok && pw == password
	}
}

type Options struct {
	Auth   Authenticator
	Logger *slog.Logger
	// Queue is the per-connection outbound buffer.
	Queue int
}

// Server is the agent socket endpoint. It is also the runner's Publisher:
// percepts are pushed to whichever connection is logged in as the agent.
type Server struct {
	gate *city.ActionGate
	auth Authenticator
	log  *slog.Logger
	q    int

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	start    map[string][]byte
	request  map[string][]byte
}

type session struct {
	id    string
	agent string
	out   chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *session) close() { s.once.Do(func() { close(s.done) }) }

func NewServer(gate *city.ActionGate, opts Options) *Server {
	if opts.Auth == nil {
		opts.Auth = func(user, _ string) bool { return user != "" }
	}
	if opts.Queue <= 0 {
		opts.Queue = 8
	}
	return &Server{
		gate: gate,
		auth: opts.Auth,
		log:  logging.OrNoop(opts.Logger),
		q:    opts.Queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[string]*session{},
		start:    map[string][]byte{},
		request:  map[string][]byte{},
	}
}

func now() int64 { return time.Now().UnixMilli() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		log := s.log.With("agent", sess.agent, "session", sess.id)
		log.Info("agent connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// writer
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-sess.done:
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
					_ = conn.Close()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// reader
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleMessage(log, sess.agent, msg)
		}
		s.drop(sess)
		log.Info("agent disconnected")
	}
}

func (s *Server) handleMessage(log *slog.Logger, agent string, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		log.Debug("undecodable message", "err", err)
		return
	}
	if base.Type != protocol.TypeAction {
		log.Debug("ignored message", "type", base.Type)
		return
	}
	act, err := protocol.ValidateAction(base.Content)
	if err != nil {
		log.Debug("invalid action", "err", err)
		return
	}
	if err := s.gate.Submit(int(act.ID), agent, world.Action{Type: act.Type, Params: act.Params}); err != nil {
		log.Debug("action rejected", "id", act.ID, "err", err)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeAuthRequest {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected auth-request"), time.Now().Add(time.Second))
		return nil
	}
	var req protocol.AuthRequest
	if err := json.Unmarshal(base.Content, &req); err != nil || !s.auth(req.User, req.Password) {
		s.log.Warn("authentication failed", "user", req.User)
		_ = writeMessage(conn, protocol.TypeAuthResponse, protocol.AuthResponse{Result: protocol.AuthFail})
		return nil
	}

	sess := &session{
		id:    uuid.NewString(),
		agent: req.User,
		out:   make(chan []byte, s.q),
		done:  make(chan struct{}),
	}
	if err := writeMessage(conn, protocol.TypeAuthResponse, protocol.AuthResponse{Result: protocol.AuthOK, SessionID: sess.id}); err != nil {
		return nil
	}

	s.mu.Lock()
	if old := s.sessions[sess.agent]; old != nil {
		old.close()
	}
	s.sessions[sess.agent] = sess
	// late joiners get the start message and the open request
	for _, b := range [][]byte{s.start[sess.agent], s.request[sess.agent]} {
		if b != nil {
			s.enqueueLocked(sess, b)
		}
	}
	s.mu.Unlock()
	return sess
}

func (s *Server) drop(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.agent] == sess {
		delete(s.sessions, sess.agent)
	}
	sess.close()
}

func (s *Server) enqueueLocked(sess *session, b []byte) {
	select {
	case sess.out <- b:
	default:
		s.log.Warn("agent queue full, message dropped", "agent", sess.agent)
	}
}

func (s *Server) send(agent string, b []byte) {
	if sess := s.sessions[agent]; sess != nil {
		s.enqueueLocked(sess, b)
	}
}

// Connected lists the agents with a live session.
func (s *Server) Connected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for a := range s.sessions {
		out = append(out, a)
	}
	return out
}

func (s *Server) SimStart(simID string, percepts map[string]protocol.InitialPercept) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for agent, p := range percepts {
		b, err := protocol.Encode(protocol.TypeSimStart, now(), protocol.SimStart{Percept: p})
		if err != nil {
			s.log.Error("encode sim-start", "agent", agent, "err", err)
			continue
		}
		s.start[agent] = b
		s.send(agent, b)
	}
	s.log.Info("sim-start sent", "sim_id", simID, "agents", len(percepts))
}

func (s *Server) RequestAction(step int, deadline time.Time, percepts map[string]protocol.StepPercept) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.request = make(map[string][]byte, len(percepts))
	for agent, p := range percepts {
		b, err := protocol.Encode(protocol.TypeRequestAction, now(), protocol.RequestAction{
			ID:       int64(step),
			Deadline: deadline.UnixMilli(),
			Percept:  p,
		})
		if err != nil {
			s.log.Error("encode request-action", "agent", agent, "err", err)
			continue
		}
		s.request[agent] = b
		s.send(agent, b)
	}
}

func (s *Server) SimEnd(results map[string]protocol.SimEnd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.request = map[string][]byte{}
	for agent, r := range results {
		b, err := protocol.Encode(protocol.TypeSimEnd, now(), r)
		if err != nil {
			s.log.Error("encode sim-end", "agent", agent, "err", err)
			continue
		}
		s.send(agent, b)
	}
}

// Close says bye to every connected agent and ends their sessions.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	bye, _ := protocol.Encode(protocol.TypeBye, now(), struct{}{})
	for agent, sess := range s.sessions {
		s.enqueueLocked(sess, bye)
		// let the writer flush bye before closing
		go func(sess *session) {
			time.Sleep(100 * time.Millisecond)
			sess.close()
		}(sess)
		delete(s.sessions, agent)
	}
}

func writeMessage(conn *websocket.Conn, typ string, content any) error {
	b, err := protocol.Encode(typ, now(), content)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
