package observer

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chaoscoin.world/internal/catalogs"
	"chaoscoin.world/internal/engine"
	"chaoscoin.world/internal/observerproto"
)

// Server exposes a read-only feed over the engine: a bootstrap HTTP handler
// and a websocket stream of status plus audit entries. Loopback-only; the
// operator tunnels or proxies if remote access is ever needed.
type Server struct {
	eng  *engine.Engine
	cats *catalogs.Catalogs
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(eng *engine.Engine, cats *catalogs.Catalogs, logger *log.Logger) *Server {
	return &Server{
		eng:  eng,
		cats: cats,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.eng.Config()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			EngineID:        cfg.ID,
			Block:           s.eng.CurrentBlock(),
			Seed:            cfg.Seed,
			GenesisBlock:    cfg.GenesisBlock,
			Status:          s.eng.Status(),
			CatalogDigests: map[string]string{
				"eras":   s.cats.Eras.Digest,
				"zones":  s.cats.Zones.Digest,
				"events": s.cats.Events.Digest,
				"quirks": s.cats.Quirks.Digest,
			},
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		normalizeSubscribe(&sub)

		updates := make(chan observerproto.SubscribeMsg, 1)

		// Reader goroutine: allow SUBSCRIBE updates, detect close.
		readErr := make(chan error, 1)
		go func() {
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				_, msg, err := conn.ReadMessage()
				if err != nil {
					readErr <- err
					return
				}
				var next observerproto.SubscribeMsg
				if err := json.Unmarshal(msg, &next); err != nil {
					continue
				}
				if next.Type != "SUBSCRIBE" || next.ProtocolVersion != observerproto.Version {
					continue
				}
				normalizeSubscribe(&next)
				select {
				case updates <- next:
				default:
					// Drop updates under load; the client may resend.
				}
			}
		}()

		sinceSeq := sub.SinceSeq
		poll := time.NewTimer(time.Duration(sub.PollMillis) * time.Millisecond)
		defer poll.Stop()

		var lastBlock uint64
		first := true
		for {
			select {
			case <-readErr:
				return
			case next := <-updates:
				sub.PollMillis = next.PollMillis
				if next.SinceSeq != 0 {
					sinceSeq = next.SinceSeq
				}
			case <-poll.C:
				audits := s.eng.RecentAudit(sinceSeq)
				status := s.eng.Status()
				if first || len(audits) > 0 || status.Block != lastBlock {
					out := observerproto.StateMsg{
						Type:            "STATE",
						ProtocolVersion: observerproto.Version,
						Status:          status,
						Audits:          audits,
					}
					b, err := json.Marshal(out)
					if err == nil {
						_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
						if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
							return
						}
					}
					if n := len(audits); n > 0 {
						sinceSeq = audits[n-1].Seq
					}
					lastBlock = status.Block
					first = false
				}
				poll.Reset(time.Duration(sub.PollMillis) * time.Millisecond)
			}
		}
	}
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.PollMillis <= 0 {
		sub.PollMillis = 1000
	}
	if sub.PollMillis < 100 {
		sub.PollMillis = 100
	}
	if sub.PollMillis > 60000 {
		sub.PollMillis = 60000
	}
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
