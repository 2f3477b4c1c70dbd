package store

import "time"

// User is the full account record, password hash included. Never serialized
// to clients directly; use PublicUser.
type User struct {
	ID            string
	Email         string
	PasswordHash  []byte
	DisplayName   string
	StatusMessage *string
	AvatarURL     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PublicUser is the client-safe projection of a user.
type PublicUser struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	StatusMessage *string   `json:"statusMessage"`
	AvatarURL     *string   `json:"avatarUrl"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Public returns the client-safe projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		StatusMessage: u.StatusMessage,
		AvatarURL:     u.AvatarURL,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// ChannelKind tags the two channel variants. Access rules switch on the tag:
// room channels require a room membership, direct channels an explicit
// channel-member row.
type ChannelKind string

const (
	ChannelKindRoom   ChannelKind = "room"
	ChannelKindDirect ChannelKind = "direct"
)

type Channel struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      ChannelKind `json:"kind"`
	RoomID    string      `json:"roomId,omitempty"` // set only for room channels
	CreatedAt time.Time   `json:"createdAt"`
}

type Message struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channelId"`
	Content   string     `json:"content"`
	Author    PublicUser `json:"author"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RoomWithDetail carries a room together with its channels and member
// projections, as listed for a particular user.
type RoomWithDetail struct {
	Room
	Role     string       `json:"role"`
	Channels []Channel    `json:"channels"`
	Members  []PublicUser `json:"members"`
}

const (
	RoleOwner  = "OWNER"
	RoleMember = "MEMBER"
)

type RoomMembership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	RoomID    string    `json:"roomId"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	RequestPending  = "PENDING"
	RequestAccepted = "ACCEPTED"
	RequestDeclined = "DECLINED"
)

type FriendRequest struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Sender      PublicUser `json:"sender"`
	Receiver    PublicUser `json:"receiver"`
	CreatedAt   time.Time  `json:"createdAt"`
	RespondedAt *time.Time `json:"respondedAt"`
}

type Friendship struct {
	ID        string    `json:"id"`
	UserAID   string    `json:"userAId"`
	UserBID   string    `json:"userBId"`
	CreatedAt time.Time `json:"createdAt"`
}
