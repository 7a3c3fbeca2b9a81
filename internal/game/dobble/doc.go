// Package dobble implements the server-authoritative engine for a
// spot-the-common-symbol match.
//
// A Match owns the phase, the player roster and the active central set.
// Commands (Join, SetReady, SubmitMove, Leave, NewMatch, SetName) are
// processed one at a time; every state change is delivered to subscribers
// as an immutable Snapshot, including the transitional dealing phases.
//
// Lifecycle:
//
//	WAITING_FOR_PLAYERS -> PREPARE_INITIAL_ROUND -> WAIT_FOR_PLAYER_MOVE
//	WAIT_FOR_PLAYER_MOVE -> PREPARE_NEXT_ROUND -> WAIT_FOR_PLAYER_MOVE
//	WAIT_FOR_PLAYER_MOVE -> RESULTS -> (NewMatch) WAITING_FOR_PLAYERS
//
// Illegal or malformed commands are ignored rather than reported; the next
// snapshot is the only answer a client gets.
package dobble
