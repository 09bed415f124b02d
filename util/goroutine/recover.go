package goroutine

import (
	"fmt"
	"os"
	"runtime/debug"

	"go.uber.org/zap"
)

// PanicError is a panic recovered from a fan-out task.
type PanicError struct {
	Task  string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Recover recovers a panic in a fan-out task, logs it with its stack and
// hands it to each onPanic. Must be called via defer. With a nil logger the
// panic is written to stderr.
func Recover(name string, logger *zap.SugaredLogger, onPanic ...func(*PanicError)) {
	r := recover()
	if r == nil {
		return
	}
	p := &PanicError{Task: name, Value: r, Stack: debug.Stack()}
	report(p, logger)
	for _, fn := range onPanic {
		fn(p)
	}
}

func report(p *PanicError, logger *zap.SugaredLogger) {
	if logger == nil {
		fmt.Fprintf(os.Stderr, "%v\n%s\n", p, p.Stack)
		return
	}
	logger.Errorw("Fetch task panic recovered",
		"task", p.Task,
		"panic", p.Value,
		"stack", string(p.Stack))
}
