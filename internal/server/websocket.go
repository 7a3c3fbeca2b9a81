package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"github.com/Sprinter100/dobble/internal/game"
	"github.com/Sprinter100/dobble/internal/game/dobble"
	"github.com/Sprinter100/dobble/internal/identity"
	"github.com/Sprinter100/dobble/internal/session"
)

// WSMessage is the JSON envelope for WebSocket messages.
type WSMessage = session.Message

type movePayload struct {
	Symbols []game.Symbol `json:"symbols"`
}

type renamePayload struct {
	Name string `json:"name"`
}

type errorPayload = session.ErrorPayload

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.PlayerID == "" {
		http.Error(w, "no identity", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	client := s.manager.Connect(id.PlayerID, id.Name)
	defer s.manager.Disconnect(client)
	log.Info().Str("player", id.PlayerID).Bool("account", id.Authenticated).Msg("player connected")

	// Writer goroutine: send messages from the channel to the websocket
	go func() {
		for msg := range client.Send {
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}()

	// Reader loop: handle incoming messages
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(client, "invalid message")
			continue
		}
		s.handleMessage(client, id, msg)
	}

	log.Info().Str("player", id.PlayerID).Msg("player disconnected")
}

func (s *Server) handleMessage(client *session.Client, id identity.Identity, msg WSMessage) {
	switch msg.Type {
	case "join":
		s.manager.Join(id.PlayerID)
		if id.Name != "" {
			s.manager.Rename(id.PlayerID, id.Name)
		}

	case "ready":
		s.manager.Ready(id.PlayerID)

	case "move":
		var mp movePayload
		if err := json.Unmarshal(msg.Payload, &mp); err != nil || len(mp.Symbols) != 2 {
			s.sendError(client, "move needs exactly two symbols")
			return
		}
		s.manager.Move(id.PlayerID, dobble.Selection{mp.Symbols[0], mp.Symbols[1]})

	case "leave":
		s.manager.Leave(id.PlayerID)

	case "newMatch":
		s.manager.NewMatch()

	case "rename":
		var rp renamePayload
		if err := json.Unmarshal(msg.Payload, &rp); err != nil {
			s.sendError(client, "invalid rename payload")
			return
		}
		s.manager.Rename(id.PlayerID, rp.Name)

	default:
		s.sendError(client, "unknown message type: "+msg.Type)
	}
}

func (s *Server) sendError(client *session.Client, message string) {
	msg, err := session.Encode(session.MsgError, errorPayload{Message: message})
	if err != nil {
		return
	}
	s.manager.Session().SendClient(client.ID, msg)
}
