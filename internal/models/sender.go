package models

import (
	"net/url"
	"strings"
)

// UnknownContact is the contact string used when no identity source knows the user.
const UnknownContact = "unknown"

const placeholderIDLen = 6

// AvatarBaseURL is the generated-avatar service. Avatars are derived from the
// display name only, so the same name always yields the same URL.
var AvatarBaseURL = "https://ui-avatars.com/api/"

// SenderMetadata is the display information attached to a message. Build it
// with NewSenderMetadata or PlaceholderSender so the fallbacks are applied.
type SenderMetadata struct {
	Name      string `json:"name"`
	Contact   string `json:"contact"`
	AvatarURL string `json:"avatar_url"`
}

// NewSenderMetadata fills empty fields with the generated fallbacks.
func NewSenderMetadata(userID, name, contact, avatarURL string) SenderMetadata {
	name = strings.TrimSpace(name)
	if name == "" {
		name = PlaceholderName(userID)
	}
	if strings.TrimSpace(contact) == "" {
		contact = UnknownContact
	}
	if strings.TrimSpace(avatarURL) == "" {
		avatarURL = GeneratedAvatar(name)
	}
	return SenderMetadata{Name: name, Contact: contact, AvatarURL: avatarURL}
}

// PlaceholderSender is the metadata used until, or instead of, a real lookup.
func PlaceholderSender(userID string) SenderMetadata {
	return NewSenderMetadata(userID, "", "", "")
}

// PlaceholderName labels a user by a truncated identifier.
func PlaceholderName(userID string) string {
	if userID == "" {
		return "Unknown User"
	}
	short := userID
	if len(short) > placeholderIDLen {
		short = short[:placeholderIDLen]
	}
	return "User " + short
}

// GeneratedAvatar returns the avatar service URL for name.
func GeneratedAvatar(name string) string {
	return AvatarBaseURL + "?name=" + url.QueryEscape(name) + "&background=random"
}

// IsPlaceholderFor reports whether s is empty or the placeholder for userID.
func (s SenderMetadata) IsPlaceholderFor(userID string) bool {
	return s.Name == "" || s.Name == PlaceholderName(userID)
}

// Profile is a user record as returned by the profile store or the fallback RPC.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url"`
}

func (p Profile) Metadata() SenderMetadata {
	return NewSenderMetadata(p.ID, p.DisplayName, p.Email, p.AvatarURL)
}
