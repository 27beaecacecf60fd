package domain

import "errors"

// Error codes surfaced to the browser with every failure
const (
	CodeLevelNotFound        = "level_not_found"
	CodeProgramNotFound      = "program_not_found"
	CodeSessionNotFound      = "session_not_found"
	CodeAudioNotFound        = "audio_not_found"
	CodeMissingAPIKey        = "missing_api_key"
	CodeMissingVariable      = "missing_prompt_variable"
	CodeNoAudio              = "no_audio"
	CodeAudioTooLarge        = "audio_too_large"
	CodeTurnInProgress       = "turn_in_progress"
	CodeEmptyConversation    = "empty_conversation"
	CodeInvalidTransition    = "invalid_transition"
	CodeProgramLevelMismatch = "program_level_mismatch"
	CodeNoProgram            = "no_program"
	CodeServiceAuth          = "service_auth_failed"
	CodeServiceNetwork       = "service_unavailable"
	CodeServiceResponse      = "service_invalid_response"
	CodeInternal             = "internal_error"
)

var sentinelCodes = []struct {
	err  error
	code string
}{
	{ErrLevelNotFound, CodeLevelNotFound},
	{ErrProgramNotFound, CodeProgramNotFound},
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrAudioNotFound, CodeAudioNotFound},
	{ErrMissingAPIKey, CodeMissingAPIKey},
	{ErrMissingVariable, CodeMissingVariable},
	{ErrNoAudio, CodeNoAudio},
	{ErrAudioTooLarge, CodeAudioTooLarge},
	{ErrTurnInProgress, CodeTurnInProgress},
	{ErrEmptyConversation, CodeEmptyConversation},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrProgramLevelMismatch, CodeProgramLevelMismatch},
	{ErrNoProgramSelected, CodeNoProgram},
}

// ErrorCode returns the stable code of err. A missing key reported by a
// hosted service keeps its own code rather than the generic auth one.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	if kind, ok := ServiceErrorKind(err); ok {
		switch kind {
		case ServiceKindAuth:
			return CodeServiceAuth
		case ServiceKindNetwork:
			return CodeServiceNetwork
		default:
			return CodeServiceResponse
		}
	}
	return CodeInternal
}
