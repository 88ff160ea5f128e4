package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	mu          sync.RWMutex
	log         *zap.Logger
	serviceName = "default"
)

// Init installs the process logger. Called once from the composition root;
// callers before Init get a development logger so tests need no setup.
func Init(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

func SetServiceName(newName string) string {
	mu.Lock()
	defer mu.Unlock()

	oldName := serviceName
	serviceName = newName

	return oldName
}

func get() (*zap.Logger, string) {
	mu.RLock()
	l, name := log, serviceName
	mu.RUnlock()
	if l != nil {
		return l, name
	}

	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log, _ = zap.NewDevelopment()
	}
	return log, serviceName
}

func Info(format string, args ...interface{}) {
	l, name := get()
	l.With(zap.String("service", name)).Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	l, name := get()
	l.With(zap.String("service", name)).Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	l, name := get()
	l.With(zap.String("service", name)).Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	l, name := get()
	l.With(zap.String("service", name)).Fatal(fmt.Sprintf(format, args...))
}
