package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"cityrun.ai/internal/logging"
	"cityrun.ai/internal/protocol"
)

var errAuth = errors.New("authentication rejected")

func main() {
	var (
		url      = flag.String("url", "ws://localhost:12300/agent", "agent socket url")
		names    = flag.String("agents", "agentA1", "comma separated agent names; one connection each")
		password = flag.String("password", "1", "password sent for every agent")
		action   = flag.String("action", "skip", "action answered to every request")
		logLevel = flag.String("log_level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	slogger := logging.New(logging.Config{Level: *logLevel}, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, name := range strings.Split(*names, ",") {
		name := name
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		b := &bot{name: name, password: *password, action: *action, log: slogger.With("agent", name)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.run(ctx, *url); err != nil && ctx.Err() == nil {
				logger.Printf("%s: %v", name, err)
			}
		}()
	}
	wg.Wait()
}

// bot is a reference agent: it logs in and answers every action request
// with the same action.
type bot struct {
	name     string
	password string
	action   string
	log      *slog.Logger
}

// run plays one session and returns when the server says bye or closes
// the connection.
func (b *bot) run(ctx context.Context, url string) error {
	log := logging.OrNoop(b.log)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(8 << 20)

	if err := send(ctx, conn, protocol.TypeAuthRequest, protocol.AuthRequest{User: b.name, Password: b.password}); err != nil {
		return fmt.Errorf("send auth-request: %w", err)
	}

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		msg, err := protocol.DecodeBase(raw)
		if err != nil {
			log.Warn("undecodable message", "err", err)
			continue
		}
		switch msg.Type {
		case protocol.TypeAuthResponse:
			var resp protocol.AuthResponse
			if err := json.Unmarshal(msg.Content, &resp); err != nil || resp.Result != protocol.AuthOK {
				return errAuth
			}
			log.Info("logged in", "session", resp.SessionID)
		case protocol.TypeSimStart, protocol.TypeSimEnd:
			lits, _ := protocol.Translate(msg)
			log.Info(msg.Type, "percepts", len(lits))
			for _, l := range lits {
				log.Debug("percept", "literal", l.String())
			}
		case protocol.TypeRequestAction:
			var req protocol.RequestAction
			if err := json.Unmarshal(msg.Content, &req); err != nil {
				log.Warn("bad request-action", "err", err)
				continue
			}
			lits, _ := protocol.Translate(msg)
			log.Debug("request-action", "id", req.ID, "percepts", len(lits))
			if err := send(ctx, conn, protocol.TypeAction, protocol.ActionContent{ID: req.ID, Type: b.action, Params: []string{}}); err != nil {
				return fmt.Errorf("send action: %w", err)
			}
		case protocol.TypeBye:
			log.Info("bye")
			return conn.Close(websocket.StatusNormalClosure, "")
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, typ string, content any) error {
	b, err := protocol.Encode(typ, time.Now().UnixMilli(), content)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}
