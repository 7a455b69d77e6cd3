package socketio

import (
	"net"
	"sync"
)

// ConnectionLimiter caps concurrent connections from off-device clients.
// Connections from the device itself (loopback) are always allowed; when
// an external connection exceeds the cap, the oldest external connection
// is evicted to make room. Remote-control apps reconnect often, so
// eviction beats rejection.
type ConnectionLimiter struct {
	mu       sync.Mutex
	limit    int
	external []string          // external client ids, oldest first
	byClient map[string]string // client id -> remote IP
}

// NewConnectionLimiter allows up to limit concurrent non-loopback
// connections.
func NewConnectionLimiter(limit int) *ConnectionLimiter {
	return &ConnectionLimiter{
		limit:    limit,
		external: make([]string, 0),
		byClient: make(map[string]string),
	}
}

// TryAdd registers a connection. It returns whether the connection is
// allowed and the id of any client evicted to make room.
func (cl *ConnectionLimiter) TryAdd(clientID, remoteIP string) (allowed bool, evictedID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.byClient[clientID]; exists {
		return true, ""
	}

	cl.byClient[clientID] = remoteIP

	if isLocalIP(remoteIP) {
		return true, ""
	}

	cl.external = append(cl.external, clientID)
	if len(cl.external) > cl.limit {
		evictedID = cl.external[0]
		cl.external = cl.external[1:]
		delete(cl.byClient, evictedID)
		return true, evictedID
	}

	return true, ""
}

// Remove unregisters a connection on disconnect.
func (cl *ConnectionLimiter) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	ip, exists := cl.byClient[clientID]
	if !exists {
		return
	}
	delete(cl.byClient, clientID)

	if isLocalIP(ip) {
		return
	}
	for i, id := range cl.external {
		if id == clientID {
			cl.external = append(cl.external[:i], cl.external[i+1:]...)
			break
		}
	}
}

func isLocalIP(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
