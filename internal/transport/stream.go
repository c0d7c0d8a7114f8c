package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// debounceWindow bounds how often a single streamer is pushed a fresh
// graph_snapshot when notifications arrive in a burst (e.g. several HTTP
// publishes in quick succession).
const debounceWindow = 100 * time.Millisecond

// streamConn is one subscriber to the graph/topic push feed.
type streamConn struct {
	notify chan struct{}
	done   chan struct{}
}

// handleGraphStream upgrades the request to a WebSocket (gobwas/ws, the
// teacher's own low-level upgrade/frame library) and pushes a fresh
// graph_snapshot after each successful POST /config or POST /topics/{name}
// on this server, debounced. Publications made by agents or by the
// ingestion bridges do not trigger a push.
func (s *Server) handleGraphStream(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Error().Err(err).Msg("graph stream upgrade failed")
		return
	}
	defer conn.Close()

	sc := &streamConn{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.addStreamer(sc)
	defer s.removeStreamer(sc)

	go func() {
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				close(sc.done)
				return
			}
		}
	}()

	if err := s.pushSnapshot(conn); err != nil {
		return
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-sc.done:
			return
		case <-sc.notify:
			timer.Reset(debounceWindow)
		case <-timer.C:
			if err := s.pushSnapshot(conn); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushSnapshot(w io.Writer) error {
	snap := s.eng.GraphSnapshot()
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return wsutil.WriteServerMessage(w, ws.OpText, body)
}

func (s *Server) addStreamer(sc *streamConn) {
	s.mu <- struct{}{}
	s.streamers[sc] = struct{}{}
	<-s.mu
}

func (s *Server) removeStreamer(sc *streamConn) {
	s.mu <- struct{}{}
	delete(s.streamers, sc)
	<-s.mu
}

// notifyStreamers wakes every connected graph/topic stream subscriber
// without blocking on a slow one; each has its own 1-slot notify buffer.
func (s *Server) notifyStreamers() {
	s.mu <- struct{}{}
	for sc := range s.streamers {
		select {
		case sc.notify <- struct{}{}:
		default:
		}
	}
	<-s.mu
}
