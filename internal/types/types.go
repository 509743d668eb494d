package types

import "time"

// UserRef is an immutable snapshot of a player's public identity.
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// Inbound event types (client -> server).
const (
	InAnnounceOnline    = "announceOnline"
	InInviteSend        = "invite.send"
	InInviteRespond     = "invite.respond"
	InRoomReady         = "room.ready"
	InRoomGuess         = "room.guess"
	InRoomLeave         = "room.leave"
	InListOnlineFriends = "presence.listOnlineFriends"
)

// Outbound event types (server -> client).
const (
	OutOnlineList          = "presence.onlineList"
	OutUserOnline          = "presence.userOnline"
	OutUserOffline         = "presence.userOffline"
	OutInviteReceived      = "invite.received"
	OutInviteSent          = "invite.sent"
	OutInviteAccepted      = "invite.accepted"
	OutInviteRejected      = "invite.rejected"
	OutInviteExpired       = "invite.expired"
	OutOpponentReady       = "room.opponentReady"
	OutRoomStart           = "room.start"
	OutNewKeyword          = "room.newKeyword"
	OutGuessResult         = "room.guessResult"
	OutOpponentGuessResult = "room.opponentGuessResult"
	OutOpponentLeft        = "room.opponentLeft"
	OutRoomEnd             = "room.end"
	OutError               = "error"
)

type ClientMessage struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	ToUserID string `json:"toUserId,omitempty"`
	InviteID string `json:"inviteId,omitempty"`
	Accept   bool   `json:"accept,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ServerMessage is the single outbound envelope. Only the fields relevant to
// Type are populated.
type ServerMessage struct {
	Type string `json:"type"`

	UserID  string    `json:"userId,omitempty"`
	Friends []UserRef `json:"friends,omitempty"`

	Invite   *InviteView `json:"invite,omitempty"`
	InviteID string      `json:"inviteId,omitempty"`
	Reason   string      `json:"reason,omitempty"`

	RoomID          string   `json:"roomId,omitempty"`
	Opponent        *UserRef `json:"opponent,omitempty"`
	Length          int      `json:"length,omitempty"`
	DurationSeconds int      `json:"durationSeconds,omitempty"`
	Correct         *bool    `json:"correct,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	YourScore       *int     `json:"yourScore,omitempty"`
	OpponentScore   *int     `json:"opponentScore,omitempty"`
	Outcome         string   `json:"outcome,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type InviteView struct {
	ID        string    `json:"id"`
	From      UserRef   `json:"from"`
	To        UserRef   `json:"to"`
	CreatedAt time.Time `json:"createdAt"`
	State     string    `json:"state"`
}

// Bool and Int return pointers for optional payload fields.
func Bool(b bool) *bool { return &b }

func Int(i int) *int { return &i }

func ErrorMessage(code, message string) ServerMessage {
	return ServerMessage{Type: OutError, Code: code, Message: message}
}
