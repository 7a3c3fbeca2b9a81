package session

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Outbound message types.
const (
	MsgState    = "state"
	MsgUnlocked = "unlocked"
	MsgError    = "error"
)

const sendBuffer = 64

// Message is the JSON envelope for everything sent to clients.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps payload in a Message and marshals it.
func Encode(msgType string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Payload: p})
}

// UnlockedPayload tells clients a player's lockout is over.
type UnlockedPayload struct {
	PlayerID string `json:"playerId"`
}

// ErrorPayload carries a human-readable error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Client is one live connection. A player may have several.
type Client struct {
	ID       string
	PlayerID string
	Send     chan []byte // outbound messages
}

// Session is the set of live connections to the match.
type Session struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{clients: make(map[string]*Client)}
}

// Add registers a new connection for playerID.
func (s *Session) Add(playerID string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Send:     make(chan []byte, sendBuffer),
	}
	s.mu.Lock()
	s.clients[c.ID] = c
	s.mu.Unlock()
	return c
}

// Remove drops a connection and closes its Send channel. It returns the
// player the connection belonged to.
func (s *Session) Remove(clientID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return "", false
	}
	close(c.Send)
	delete(s.clients, clientID)
	return c.PlayerID, true
}

// Count returns how many connections playerID has open.
func (s *Session) Count(playerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.clients {
		if c.PlayerID == playerID {
			n++
		}
	}
	return n
}

// Len returns the number of open connections.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends a message to every connection.
func (s *Session) Broadcast(msg []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		deliver(c, msg)
	}
}

// Send delivers a message to every connection of one player.
func (s *Session) Send(playerID string, msg []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.PlayerID == playerID {
			deliver(c, msg)
		}
	}
}

// SendClient delivers a message to a single connection.
func (s *Session) SendClient(clientID string, msg []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.clients[clientID]; ok {
		deliver(c, msg)
	}
}

// CloseAll closes every connection's Send channel.
func (s *Session) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		close(c.Send)
		delete(s.clients, id)
	}
}

func deliver(c *Client, msg []byte) {
	select {
	case c.Send <- msg:
	default:
		// drop message if buffer full
	}
}
