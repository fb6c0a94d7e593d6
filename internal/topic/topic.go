// Package topic derives channel ids for direct and community chat.
package topic

import "strings"

const (
	// Separator joins the two participants of a direct channel. It is not
	// a valid character in an identity.
	Separator = "|"

	communityPrefix = "community:"
)

// Direct returns the channel id for a conversation between a and b.
// The result does not depend on argument order.
func Direct(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + Separator + b
}

// Community returns the channel id for a region's community room.
func Community(region string) string {
	return communityPrefix + region
}

// IsCommunity reports whether channel is a community room.
func IsCommunity(channel string) bool {
	return strings.HasPrefix(channel, communityPrefix)
}

// Participants splits a direct channel id into its two identities.
func Participants(channel string) (a, b string, ok bool) {
	if IsCommunity(channel) {
		return "", "", false
	}
	a, b, ok = strings.Cut(channel, Separator)
	if !ok || a == "" || b == "" || strings.Contains(b, Separator) {
		return "", "", false
	}
	return a, b, true
}

// Includes reports whether identity is one of the participants of channel.
func Includes(channel, identity string) bool {
	a, b, ok := Participants(channel)
	return ok && (a == identity || b == identity)
}

// ValidIdentity reports whether id can be used as a participant.
func ValidIdentity(id string) bool {
	return id != "" && !strings.Contains(id, Separator)
}
