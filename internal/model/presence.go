package model

import "time"

// PresenceEntry is one identified connection as shown in the online roster
type PresenceEntry struct {
	ConnectionID  string    `json:"connectionId"`
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	RemoteAddress string    `json:"remoteAddress"`
	JoinedAt      time.Time `json:"-"`
}
