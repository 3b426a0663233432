package models

// Actor is the authenticated user a session runs for. Its metadata is known
// up front, so the actor's own messages never need an identity lookup.
type Actor struct {
	ID       string         `json:"id"`
	Metadata SenderMetadata `json:"metadata"`
}

func NewActor(id, name, contact, avatarURL string) *Actor {
	return &Actor{ID: id, Metadata: NewSenderMetadata(id, name, contact, avatarURL)}
}
