package util

import (
	"regexp"
)

var roomNameRegex = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,128}$`)

// IsValidRoomName matches the names produced for issued grants.
func IsValidRoomName(s string) bool {
	return roomNameRegex.MatchString(s)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
