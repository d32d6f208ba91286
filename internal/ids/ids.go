// Package ids generates and validates the time-ordered identifiers used for
// conversations and messages. Identifiers are 12-byte ObjectIDs rendered as
// 24 lowercase hex characters; their byte order, and therefore their string
// order, follows creation time, which lets message ids double as cursors.
package ids

import (
	"regexp"
	"strings"

	"github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// New returns a fresh identifier.
func New() string {
	return bson.NewObjectID().Hex()
}

// IsValid reports whether s is a syntactically valid identifier.
func IsValid(s string) bool {
	_, err := bson.ObjectIDFromHex(strings.ToLower(s))
	return err == nil
}

// Parse normalises s and returns a ValidationError naming field when s is
// not a valid identifier.
func Parse(field, s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, err := bson.ObjectIDFromHex(s); err != nil {
		return "", &store.ValidationError{Field: field, Message: "invalid id"}
	}
	return s, nil
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@|-]{1,128}$`)

// ParseUser validates a user id. User ids come from the identity provider
// and are opaque tokens rather than ObjectIDs.
func ParseUser(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if !userIDPattern.MatchString(s) {
		return "", &store.ValidationError{Field: field, Message: "invalid user id"}
	}
	return s, nil
}

// ParseUsers parses every element of values as a user id.
func ParseUsers(field string, values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		id, err := ParseUser(field, v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
