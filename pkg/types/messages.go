// Package types documents the JSON wire protocol spoken over /ws. The Go
// definitions live in internal/types.
package types

// Every frame is a JSON object with a "type" field.

// Client -> Server
// announceOnline:
//   token?: string            // omitted when the token was sent on the handshake
//
// presence.listOnlineFriends: {}
//
// invite.send:
//   toUserId: string
//
// invite.respond:
//   inviteId: string
//   accept: boolean
//
// room.ready:
//   roomId: string
//
// room.guess:
//   roomId: string
//   text: string              // trimmed and upper-cased by the server
//
// room.leave:
//   roomId: string            // also acknowledges a finished room

// Server -> Client
// presence.onlineList:
//   friends: { id, displayName, avatarRef? }[]   // sorted by displayName
//
// presence.userOnline / presence.userOffline:
//   userId: string
//
// invite.received / invite.sent:
//   invite: { id, from, to, createdAt, state }
//
// invite.accepted:
//   inviteId: string
//   roomId: string
//   opponent: { id, displayName, avatarRef? }
//
// invite.rejected:
//   inviteId: string
//
// invite.expired:
//   inviteId: string
//   reason?: "cancelled"      // set when the other party disconnected
//
// room.opponentReady:
//   roomId: string
//
// room.start:
//   roomId: string
//   length: number            // the word itself is never sent
//   durationSeconds: number
//   opponent: { id, displayName, avatarRef? }
//
// room.newKeyword:
//   roomId: string
//   length: number
//
// room.guessResult:            // guesser only
//   roomId: string
//   correct: boolean
//   tags: ("exact" | "present" | "absent")[]
//   yourScore?: number        // present when correct
//   opponentScore?: number
//
// room.opponentGuessResult:    // the other player, on a correct guess only
//   roomId: string
//   yourScore: number
//   opponentScore: number
//
// room.opponentLeft:
//   roomId: string
//
// room.end:
//   roomId: string
//   yourScore: number
//   opponentScore: number
//   outcome: "win" | "loss" | "draw"
//
// error:
//   code: UNAUTHENTICATED | NOT_ONLINE | ALREADY_PENDING | NOT_FOUND |
//         NOT_AUTHORIZED | INVALID_GUESS_LENGTH | INVALID_STATE |
//         INVALID_REQUEST | BUSY | INTERNAL
//   message: string
