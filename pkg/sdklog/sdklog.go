// Package sdklog defines the logging surface the SDK packages rely on.
package sdklog

// Logger logs a message with a single structured field named key.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) InfoObj(string, string, interface{})  {}
func (Nop) DebugObj(string, string, interface{}) {}
func (Nop) WarnObj(string, string, interface{})  {}
func (Nop) ErrorObj(string, string, interface{}) {}

// Ensure returns log, or a Nop logger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return Nop{}
	}
	return log
}
