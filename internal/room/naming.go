package room

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/teknolabs/vocameet-server/internal/auth"
	apperrors "github.com/teknolabs/vocameet-server/internal/errors"
	"github.com/teknolabs/vocameet-server/internal/model"
	"github.com/teknolabs/vocameet-server/internal/util"
)

// maxRoomPrefix leaves room for "_voice_agent_room_" and a uuid within the
// 128 characters IsValidRoomName allows.
const maxRoomPrefix = 48

type participant struct {
	Identity string
	Name     string
	Room     string
}

// resolveParticipant fills whatever the request left empty according to
// policy. Generated room names carry a uuid suffix so concurrent callers
// never share a room by accident. A requested room name must already be a
// valid room name.
func resolveParticipant(policy model.ParticipantPolicy, caller *auth.Claims, req GrantRequest) (participant, error) {
	suffix := uuid.NewString()

	var p participant
	switch policy {
	case model.PolicyAnonymizeParticipant:
		p = participant{
			Identity: "voice_assistant_user_" + suffix,
			Name:     "user",
			Room:     "voice_assistant_room_" + suffix,
		}
	default:
		name := firstNonEmpty(caller.Name, caller.Email, "Anonymous")
		p = participant{
			Identity: firstNonEmpty(caller.Email, caller.Name, "anonymous"),
			Name:     name,
			Room:     sanitizeRoomPart(name) + "_voice_agent_room_" + suffix,
		}
	}

	if req.ParticipantIdentity != "" {
		p.Identity = req.ParticipantIdentity
	}
	if req.ParticipantName != "" {
		p.Name = req.ParticipantName
	}
	if req.RoomName != "" {
		if !util.IsValidRoomName(req.RoomName) {
			return participant{}, apperrors.InvalidInput("room_name", "may only contain letters, digits and _.@- (max 128)")
		}
		p.Room = req.RoomName
	}
	return p, nil
}

// sanitizeRoomPart reduces a display name to the ASCII room name alphabet.
// Accents are folded ("Zoë" becomes "Zoe"), other scripts are dropped.
func sanitizeRoomPart(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range folded {
		if b.Len() >= maxRoomPrefix {
			break
		}
		switch {
		case unicode.IsSpace(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("-_.@", r)):
			b.WriteRune(r)
			lastUnderscore = r == '_'
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return "guest"
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
