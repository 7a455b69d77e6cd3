// Package socketio exposes the playback orchestrator to UI clients over
// Socket.io. Command handlers never fail the connection: orchestrator
// errors are logged and the client is brought back in sync with a state
// push instead.
package socketio

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/cadencefm/cadence-player-backend/internal/domain/catalog"
	"github.com/cadencefm/cadence-player-backend/internal/domain/history"
	"github.com/cadencefm/cadence-player-backend/internal/domain/player"
)

// broadcastWindow batches rapid state changes into one push.
const broadcastWindow = 50 * time.Millisecond

// maxExternalClients caps concurrent non-localhost connections.
const maxExternalClients = 8

// LyricsProvider fetches timed lyrics for a song.
type LyricsProvider interface {
	Lyrics(ctx context.Context, id string) ([]catalog.LyricLine, error)
}

// Server handles Socket.io connections and command events.
type Server struct {
	io        *socket.Server
	orch      *player.Orchestrator
	history   *history.Store
	lyrics    LyricsProvider
	limiter   *ConnectionLimiter
	debouncer *BroadcastDebouncer

	mu      sync.RWMutex
	clients map[string]*socket.Socket
}

// NewServer creates the Socket.io server around the orchestrator.
// hist and lyrics may be nil; the matching events then push empty
// results.
func NewServer(orch *player.Orchestrator, hist *history.Store, lyrics LyricsProvider) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:      socket.NewServer(nil, opts),
		orch:    orch,
		history: hist,
		lyrics:  lyrics,
		limiter: NewConnectionLimiter(maxExternalClients),
		clients: make(map[string]*socket.Socket),
	}
	s.debouncer = NewBroadcastDebouncer(broadcastWindow, s.BroadcastState, s.BroadcastQueue)

	s.setupHandlers()
	return s, nil
}

// NotifyChange is wired as the orchestrator's change listener. Bursts
// collapse into a single broadcast per window.
func (s *Server) NotifyChange(player.Status) {
	s.debouncer.TriggerState()
	s.debouncer.TriggerQueue()
}

func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		remoteIP := clientIP(client)

		if _, evicted := s.limiter.TryAdd(clientID, remoteIP); evicted != "" {
			s.disconnectClient(evicted)
		}

		log.Info().Str("id", clientID).Str("ip", remoteIP).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Initial sync after the handshake settles.
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
			s.pushQueue(client)
		}()

		client.On("disconnect", func(args ...any) {
			log.Info().Str("id", clientID).Msg("Client disconnected")
			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			s.pushState(client)
		})

		client.On("getQueue", func(args ...any) {
			s.pushQueue(client)
		})

		client.On("playById", func(args ...any) {
			id := stringArg(args, "id")
			log.Debug().Str("id", clientID).Str("songId", id).Msg("playById")
			if err := s.orch.PlayByID(context.Background(), id); err != nil {
				log.Error().Err(err).Str("songId", id).Msg("playById failed")
				s.pushState(client)
			}
		})

		client.On("playPause", func(args ...any) {
			if err := s.orch.PlayPauseToggle(); err != nil {
				log.Error().Err(err).Msg("playPause failed")
			}
		})

		client.On("next", func(args ...any) {
			if err := s.orch.Next(); err != nil {
				log.Error().Err(err).Msg("next failed")
			}
		})

		client.On("prev", func(args ...any) {
			if err := s.orch.Previous(); err != nil {
				log.Error().Err(err).Msg("prev failed")
			}
		})

		client.On("seek", func(args ...any) {
			if len(args) == 0 {
				return
			}
			pos, ok := args[0].(float64)
			if !ok {
				return
			}
			if err := s.orch.Seek(pos); err != nil {
				log.Error().Err(err).Float64("pos", pos).Msg("seek failed")
			}
		})

		client.On("stop", func(args ...any) {
			if err := s.orch.Stop(); err != nil {
				log.Error().Err(err).Msg("stop failed")
			}
		})

		client.On("addToQueue", func(args ...any) {
			id := stringArg(args, "id")
			log.Debug().Str("id", clientID).Str("songId", id).Msg("addToQueue")
			if err := s.orch.AddToQueueByID(context.Background(), id); err != nil {
				log.Error().Err(err).Str("songId", id).Msg("addToQueue failed")
			}
		})

		client.On("removeFromQueue", func(args ...any) {
			id := stringArg(args, "id")
			if err := s.orch.RemoveFromQueue(id); err != nil {
				log.Error().Err(err).Str("songId", id).Msg("removeFromQueue failed")
			}
		})

		client.On("playFromQueue", func(args ...any) {
			if len(args) == 0 {
				return
			}
			index := -1
			switch v := args[0].(type) {
			case float64:
				index = int(v)
			case map[string]any:
				if f, ok := v["index"].(float64); ok {
					index = int(f)
				}
			}
			if index < 0 {
				return
			}
			if err := s.orch.PlayFromQueue(index); err != nil {
				log.Error().Err(err).Int("index", index).Msg("playFromQueue failed")
			}
		})

		client.On("shuffleQueue", func(args ...any) {
			if err := s.orch.ShuffleQueue(); err != nil {
				log.Error().Err(err).Msg("shuffleQueue failed")
			}
		})

		client.On("toggleRepeat", func(args ...any) {
			mode, err := s.orch.ToggleRepeat()
			if err != nil {
				log.Error().Err(err).Msg("toggleRepeat failed")
				return
			}
			client.Emit("pushRepeatMode", map[string]any{"repeatMode": mode.String()})
		})

		client.On("getHistory", func(args ...any) {
			limit := 50
			if len(args) > 0 {
				if m, ok := args[0].(map[string]any); ok {
					if v, ok := m["limit"].(float64); ok {
						limit = int(v)
					}
				}
			}
			var entries []history.Entry
			if s.history != nil {
				entries = s.history.Recent(limit)
			}
			client.Emit("pushHistory", entries)
		})

		client.On("getLyrics", func(args ...any) {
			id := stringArg(args, "id")
			var lines []catalog.LyricLine
			if s.lyrics != nil && id != "" {
				var err error
				lines, err = s.lyrics.Lyrics(context.Background(), id)
				if err != nil {
					log.Warn().Err(err).Str("songId", id).Msg("getLyrics failed")
				}
			}
			client.Emit("pushLyrics", map[string]any{"songId": id, "lines": lines})
		})
	})
}

// stringArg reads a string either bare or under the given key of an
// object argument.
func stringArg(args []any, key string) string {
	if len(args) == 0 {
		return ""
	}
	switch v := args[0].(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v[key].(string); ok {
			return s
		}
	}
	return ""
}

func clientIP(client *socket.Socket) string {
	addr := client.Handshake().Address
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (s *Server) disconnectClient(clientID string) {
	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	log.Info().Str("id", clientID).Msg("Evicting oldest external client")
	client.Disconnect(true)
}

func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", statePayload(s.orch.Status()))
}

func (s *Server) pushQueue(client *socket.Socket) {
	client.Emit("pushQueue", queuePayload(s.orch.Status()))
}

// BroadcastState sends the playback state to all connected clients.
func (s *Server) BroadcastState() {
	s.io.Emit("pushState", statePayload(s.orch.Status()))
}

// BroadcastQueue sends the queue to all connected clients.
func (s *Server) BroadcastQueue() {
	s.io.Emit("pushQueue", queuePayload(s.orch.Status()))
}

// statePayload is the pushState wire shape.
func statePayload(st player.Status) map[string]any {
	payload := map[string]any{
		"status":     string(st.State),
		"position":   st.ActiveIndex,
		"seek":       st.Progress.PositionMS,
		"duration":   st.Progress.DurationMS,
		"repeatMode": st.RepeatMode,
		"shuffled":   st.Shuffled,
		"songId":     "",
		"title":      "",
		"artist":     "",
		"albumart":   "",
	}
	if st.CurrentTrack != nil {
		payload["songId"] = st.CurrentTrack.ID
		payload["title"] = st.CurrentTrack.Title
		payload["artist"] = st.CurrentTrack.Author
		payload["albumart"] = st.CurrentTrack.ArtworkURI
	}
	return payload
}

// queuePayload is the pushQueue wire shape.
func queuePayload(st player.Status) []map[string]any {
	queue := make([]map[string]any, len(st.Queue))
	for i, t := range st.Queue {
		queue[i] = map[string]any{
			"songId":   t.ID,
			"title":    t.Title,
			"artist":   t.Artist,
			"albumart": t.Artwork,
			"uri":      t.URL,
			"active":   i == st.ActiveIndex,
		}
	}
	return queue
}

// ServeHTTP implements http.Handler for the Socket.io endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close shuts the Socket.io server down.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}
