package model

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerAssistant
}

type AuthStrategy string

const (
	StrategyLocalDecode   AuthStrategy = "local_decode"
	StrategyCodeExchange  AuthStrategy = "code_exchange"
	StrategyHostedSession AuthStrategy = "hosted_session"
)

type ParticipantPolicy string

const (
	PolicyUseCallerIdentity    ParticipantPolicy = "use-caller-identity"
	PolicyAnonymizeParticipant ParticipantPolicy = "anonymize-participant"
)
