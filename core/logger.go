package core

// Logger is any service that can log messages.
// expected args: error, map[string]interface{}, Actor
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies the authenticated person behind a request, for error reports.
type Actor struct {
	ID    string
	Name  string
	Email string
}
