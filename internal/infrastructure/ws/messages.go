package ws

import (
	"encoding/json"
	"time"

	"watchparty/internal/core/domain"
)

// Client -> server message types.
const (
	TypeVideoAction = "video_action"
	TypeChat        = "chat"
	TypeLeave       = "leave"
	TypePing        = "ping"
)

// Server -> client message types.
const (
	TypeParticipants = "participants"
	TypeVideoUpdate  = "video_update"
	TypeVideoSync    = "video_sync"
	TypeSessionEnded = "session_ended"
	TypeError        = "error"
	TypePong         = "pong"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type VideoActionPayload struct {
	Action string  `json:"action"`
	Time   float64 `json:"time"`
}

type ChatPayload struct {
	Message string `json:"message"`
}

type ParticipantInfo struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type ParticipantsPayload struct {
	Participants []ParticipantInfo `json:"participants"`
}

type VideoUpdatePayload struct {
	VideoProvider string `json:"videoProvider"`
	VideoID       string `json:"videoId"`
	VideoTitle    string `json:"videoTitle"`
	VideoDuration int    `json:"videoDuration"`
}

type VideoSyncPayload struct {
	Action    string    `json:"action"`
	Time      float64   `json:"time"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatMessagePayload struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionEndedPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// NewParticipantsPayload converts a roster snapshot into its wire form.
func NewParticipantsPayload(roster []*domain.Participant) ParticipantsPayload {
	infos := make([]ParticipantInfo, 0, len(roster))
	for _, p := range roster {
		infos = append(infos, ParticipantInfo{
			UserID: string(p.UserID),
			Name:   p.Name,
			Avatar: p.AvatarURL,
		})
	}
	return ParticipantsPayload{Participants: infos}
}

// NewVideoUpdatePayload converts a video assignment into its wire form.
func NewVideoUpdatePayload(video *domain.Video) VideoUpdatePayload {
	return VideoUpdatePayload{
		VideoProvider: video.Provider,
		VideoID:       video.ID,
		VideoTitle:    video.Title,
		VideoDuration: video.DurationSeconds,
	}
}

// NewChatMessagePayload converts a relayed chat message into its wire form.
func NewChatMessagePayload(msg domain.ChatMessage) ChatMessagePayload {
	return ChatMessagePayload{
		ID:        msg.ID,
		UserID:    string(msg.UserID),
		UserName:  msg.UserName,
		Message:   msg.Text,
		Timestamp: msg.Timestamp,
	}
}

// NewVideoSyncPayload converts authoritative playback state into its wire form.
func NewVideoSyncPayload(state *domain.PlaybackState) VideoSyncPayload {
	return VideoSyncPayload{
		Action:    string(state.Action),
		Time:      state.TimeSeconds,
		Timestamp: state.UpdatedAt,
	}
}
