package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap SugaredLogger whose key/value pairs pass through a
// redactor: credentials are dropped, user identifiers are hashed, and
// generated or user-written text is reduced to its size.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
	redact        *redactor
}

type Options struct {
	Mode  string
	Level string
	// Redact defaults to on; set DisableRedaction for local debugging.
	DisableRedaction bool
	HashSalt         string
}

// OptionsFromEnv reads LOG_LEVEL, LOG_REDACTION_ENABLED and LOG_HASH_SALT.
func OptionsFromEnv(mode string) Options {
	opts := Options{
		Mode:     mode,
		Level:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		HashSalt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT")),
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		opts.DisableRedaction = true
	}
	return opts
}

// New builds a logger for mode with settings from the environment.
// "production" emits JSON, "test" only warnings and above, anything else is
// the development console encoder at debug.
func New(mode string) (*Logger, error) {
	return NewWithOptions(OptionsFromEnv(mode))
}

func NewWithOptions(opts Options) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(opts.Mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	var r *redactor
	if !opts.DisableRedaction {
		r = &redactor{salt: opts.HashSalt}
	}
	return &Logger{SugaredLogger: z.Sugar(), redact: r}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.SugaredLogger.Debugw(msg, l.redact.kvs(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.SugaredLogger.Infow(msg, l.redact.kvs(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.SugaredLogger.Warnw(msg, l.redact.kvs(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.SugaredLogger.Errorw(msg, l.redact.kvs(kv)...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.SugaredLogger.Fatalw(msg, l.redact.kvs(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(l.redact.kvs(kv)...), redact: l.redact}
}

type redactor struct {
	salt string
}

// kvs rewrites values by key. A nil redactor passes everything through.
func (r *redactor) kvs(kv []interface{}) []interface{} {
	if r == nil || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		name := toString(kv[i])
		out = append(out, name, r.value(strings.ToLower(strings.TrimSpace(name)), kv[i+1]))
	}
	return out
}

func (r *redactor) value(key string, val interface{}) interface{} {
	switch classify(key) {
	case keySecret:
		return "[REDACTED]"
	case keyIdentity:
		return r.hash(val)
	case keyText:
		return sizeOf(val)
	}
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = r.value(strings.ToLower(strings.TrimSpace(k)), inner)
		}
		return out
	case string:
		if looksLikeJWT(v) {
			return "[REDACTED]"
		}
	}
	return val
}

type keyClass int

const (
	keyPlain keyClass = iota
	keySecret
	keyIdentity
	keyText
)

var (
	secretMarkers   = []string{"token", "authorization", "password", "secret", "cookie", "api_key", "apikey", "email"}
	identityMarkers = []string{"user_id", "viewer_id", "session_id"}
	// Message bodies: logged by size only.
	textKeys = map[string]bool{"prompt": true, "content": true, "delta": true, "text": true, "system_prompt": true}
)

func classify(key string) keyClass {
	if key == "" {
		return keyPlain
	}
	for _, m := range secretMarkers {
		if strings.Contains(key, m) {
			return keySecret
		}
	}
	for _, m := range identityMarkers {
		if strings.Contains(key, m) {
			return keyIdentity
		}
	}
	if textKeys[key] {
		return keyText
	}
	return keyPlain
}

func (r *redactor) hash(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	_, _ = h.Write([]byte(r.salt))
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

func sizeOf(val interface{}) string {
	return fmt.Sprintf("<%d bytes>", len(toString(val)))
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
