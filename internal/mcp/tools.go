// Package mcp exposes the match as Model Context Protocol tools so agents
// can play alongside websocket clients.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Sprinter100/dobble/internal/game"
	"github.com/Sprinter100/dobble/internal/game/dobble"
	"github.com/Sprinter100/dobble/internal/session"
)

// Tools serves the match over MCP.
type Tools struct {
	manager   *session.Manager
	registry  *game.Registry
	mcpServer *server.MCPServer
}

// NewTools registers every tool against manager.
func NewTools(manager *session.Manager, registry *game.Registry, version string) *Tools {
	t := &Tools{manager: manager, registry: registry}
	t.mcpServer = server.NewMCPServer(
		"Dobble",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Dobble - MCP Interface

Every player holds a hand of symbols. The table shows a central set of the
same size. Exactly one symbol (or at least one, depending on the rules) is
in both your hand and the central set: find it and submit it twice.

FLOW:
- join with a player_id, then ready. The match starts when every player is ready.
- game_state shows your hand and the central set.
- move submits two symbols. Both must be the shared symbol.
- A wrong move locks you out for a short time; moves during the lockout are ignored.
- The first player to run out of turns wins. new_match starts over.`),
	)
	t.registerTools()
	return t
}

// MCPServer returns the underlying MCP server for serving.
func (t *Tools) MCPServer() *server.MCPServer {
	return t.mcpServer
}

func playerIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Stable identifier of the player you act as",
	}
}

func (t *Tools) registerTools() {
	t.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current match state. With player_id, your own hand is highlighted",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player_id": playerIDProperty(),
			},
		},
	}, t.handleGameState)

	t.mcpServer.AddTool(mcp.Tool{
		Name:        "join",
		Description: "Join the match while it is waiting for players",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player_id": playerIDProperty(),
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Display name (optional)",
				},
			},
			Required: []string{"player_id"},
		},
	}, t.handleJoin)

	t.mcpServer.AddTool(mcp.Tool{
		Name:        "ready",
		Description: "Mark yourself ready. The first round is dealt once everyone is ready",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player_id": playerIDProperty(),
			},
			Required: []string{"player_id"},
		},
	}, t.handleReady)

	t.mcpServer.AddTool(mcp.Tool{
		Name:        "move",
		Description: "Submit a move: the symbol shared by your hand and the central set, given twice",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player_id": playerIDProperty(),
				"symbols": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"minItems":    2,
					"maxItems":    2,
					"description": "One symbol picked from the central set and one from your hand",
				},
			},
			Required: []string{"player_id", "symbols"},
		},
	}, t.handleMove)

	t.mcpServer.AddTool(mcp.Tool{
		Name:        "leave",
		Description: "Leave the match",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player_id": playerIDProperty(),
			},
			Required: []string{"player_id"},
		},
	}, t.handleLeave)

	t.mcpServer.AddTool(mcp.Tool{
		Name:        "new_match",
		Description: "Reset the match to waiting for players, keeping the roster",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, t.handleNewMatch)

	t.mcpServer.AddTool(mcp.Tool{
		Name:        "list_catalogs",
		Description: "List the symbol catalogs the server knows",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, t.handleListCatalogs)
}

// Handler serves MCP JSON-RPC messages over HTTP POST.
func (t *Tools) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := t.mcpServer.HandleMessage(r.Context(), body)
		if response == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	})
}

// ServeStdio serves MCP over stdin and stdout until the input closes.
func (t *Tools) ServeStdio() error {
	return server.ServeStdio(t.mcpServer)
}

// Tool handlers

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	return args
}

func requirePlayer(args map[string]interface{}) (string, *mcp.CallToolResult) {
	id, _ := args["player_id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return "", mcp.NewToolResultError("player_id is required")
	}
	return id, nil
}

func (t *Tools) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	playerID, _ := arguments(request)["player_id"].(string)
	return mcp.NewToolResultText(formatState(t.manager.Snapshot(), playerID)), nil
}

func (t *Tools) handleJoin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	playerID, errResult := requirePlayer(args)
	if errResult != nil {
		return errResult, nil
	}
	joined := t.manager.Join(playerID)
	if name, _ := args["name"].(string); name != "" {
		t.manager.Rename(playerID, name)
	}
	s := t.manager.Snapshot()
	if _, ok := s.Player(playerID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("cannot join while the match is in %s", s.Phase)), nil
	}
	msg := "Already in the match."
	if joined {
		msg = "Joined the match."
	}
	return mcp.NewToolResultText(msg + "\n\n" + formatState(s, playerID)), nil
}

func (t *Tools) handleReady(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	playerID, errResult := requirePlayer(arguments(request))
	if errResult != nil {
		return errResult, nil
	}
	t.manager.Ready(playerID)
	return mcp.NewToolResultText(formatState(t.manager.Snapshot(), playerID)), nil
}

func (t *Tools) handleMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	playerID, errResult := requirePlayer(args)
	if errResult != nil {
		return errResult, nil
	}
	raw, _ := args["symbols"].([]interface{})
	if len(raw) != 2 {
		return mcp.NewToolResultError("symbols must contain exactly two entries"), nil
	}
	var sel dobble.Selection
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return mcp.NewToolResultError("symbols must be strings"), nil
		}
		sel[i] = game.Symbol(s)
	}

	var msg string
	switch t.manager.Move(playerID, sel) {
	case dobble.MoveAccepted:
		msg = "Correct! A new round was dealt."
	case dobble.MoveWon:
		msg = "Correct! You won the match."
	case dobble.MoveRejected:
		msg = fmt.Sprintf("Wrong. You are locked out for %s.", t.manager.Rules().Lockout)
	default:
		msg = "Move ignored: the match is not waiting for moves, you are not playing, or you are locked out."
	}
	return mcp.NewToolResultText(msg + "\n\n" + formatState(t.manager.Snapshot(), playerID)), nil
}

func (t *Tools) handleLeave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	playerID, errResult := requirePlayer(arguments(request))
	if errResult != nil {
		return errResult, nil
	}
	t.manager.Leave(playerID)
	return mcp.NewToolResultText("Left the match."), nil
}

func (t *Tools) handleNewMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.manager.NewMatch()
	return mcp.NewToolResultText("New match started.\n\n" + formatState(t.manager.Snapshot(), "")), nil
}

func (t *Tools) handleListCatalogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString("Catalogs:\n")
	for _, c := range t.registry.List() {
		fmt.Fprintf(&b, "- %s (%d symbols)\n", c.Name, c.Size)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// formatState renders a snapshot for a language model. playerID may be
// empty.
func formatState(s dobble.Snapshot, playerID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase: %s\n", s.Phase)
	fmt.Fprintf(&b, "Rules: hand %d, %d turns to win, %dms lockout, %d min players\n",
		s.Rules.HandSize, s.Rules.TurnsToWin, s.Rules.LockoutDurationMs, s.Rules.MinPlayers)
	if len(s.CentralSet) > 0 {
		fmt.Fprintf(&b, "Central set: %s\n", joinSymbols(s.CentralSet))
	}
	if s.Winner != nil {
		fmt.Fprintf(&b, "Winner: %s (%s)\n", s.Winner.Name, s.Winner.ID)
	}
	fmt.Fprintf(&b, "Players (%d):\n", len(s.Players))
	for _, p := range s.Players {
		marker := " "
		if p.ID == playerID {
			marker = "*"
		}
		status := "not ready"
		if p.IsReady {
			status = "ready"
		}
		fmt.Fprintf(&b, "%s %s [%s] %s, %d turns remaining", marker, p.Name, p.ID, status, p.TurnsRemaining)
		if p.LockedUntil != nil {
			fmt.Fprintf(&b, ", locked until %s", p.LockedUntil.Format("15:04:05.000"))
		}
		b.WriteString("\n")
	}
	if p, ok := s.Player(playerID); ok && len(p.Hand) > 0 {
		fmt.Fprintf(&b, "Your hand: %s\n", joinSymbols(p.Hand))
	}
	return b.String()
}

func joinSymbols(set []game.Symbol) string {
	parts := make([]string, len(set))
	for i, s := range set {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}
