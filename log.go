package secureendpoint

import "go.uber.org/zap"

// defaultLogger is used by any SecureEndpoint whose Config did not set one.
// A no-op logger keeps the package silent by default (nothing is printed
// unless a caller asks for it), while still giving callers a real
// zap.Logger to plug observability into instead of a bespoke interface.
var defaultLogger = zap.NewNop()

// SetDefaultLogger overrides the package-wide default logger used by
// endpoints constructed without an explicit Config.Logger. It is meant to
// be called once, at process startup.
func SetDefaultLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	defaultLogger = l
}

func loggerOrDefault(l *zap.Logger) *zap.Logger {
	if l == nil {
		return defaultLogger
	}
	return l
}
