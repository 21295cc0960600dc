package domain

// Sender identifies who contributed a turn.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// NoticeLevel grades the one-line messages shown next to the input area.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Human readable messages for recoverable failures.
const (
	MessagePermissionDenied     = "Could not access the microphone. Please check your microphone permissions."
	MessageTranscriptionFailed  = "Transcription failed. Please try again or type your message."
	MessageConfigurationMissing = "Voice input is not configured. You can still type your message."
	MessageUploadFailed         = "Upload failed. Retry or remove the file."
	MessageAgentFallback        = "I'm sorry, I encountered an error processing your request. Please try again."
)
