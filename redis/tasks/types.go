package tasks

// Task types
const (
	TypeNoteEvent   = "notify:note_event"
	TypeHealthCheck = "health:check"
)
