package core

// Logger is any service that can report application events.
// args may hold an error, a map[string]interface{} of extra fields and a LogPerson.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// LogPerson identifies the operator on whose behalf an event was logged.
type LogPerson struct {
	ID       string
	Username string
	Email    string
}
