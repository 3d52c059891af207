package core

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// LogLevel orders log severities.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLogLevel maps a config string to a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ProductionLogger writes structured logs through zerolog.
//
// Every line carries the service name and the component that produced it.
// JSON is the default format; "text" switches to zerolog's console writer
// for local development. Error lines can be rate limited so a failing
// dependency cannot flood the output.
type ProductionLogger struct {
	level       LogLevel
	serviceName string
	component   string
	format      string
	pretty      bool
	output      io.Writer
	zl          zerolog.Logger

	// shared with every component logger derived from this one
	errorLimiter *rate.Limiter
}

// NewProductionLogger builds the default logger from configuration.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	level := ParseLogLevel(logging.Level)
	if dev.DebugLogging {
		level = LogLevelDebug
	}

	format := strings.ToLower(logging.Format)
	if dev.PrettyLogs {
		format = "text"
	}
	if format != "text" {
		format = "json"
	}

	var output io.Writer = os.Stdout
	if strings.EqualFold(logging.Output, "stderr") {
		output = os.Stderr
	}

	var limiter *rate.Limiter
	if logging.ErrorRatePerSecond > 0 {
		burst := int(logging.ErrorRatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(logging.ErrorRatePerSecond), burst)
	}

	p := &ProductionLogger{
		level:        level,
		serviceName:  serviceName,
		component:    "framework/core",
		format:       format,
		pretty:       dev.PrettyLogs,
		output:       output,
		errorLimiter: limiter,
	}
	p.zl = p.build()
	return p
}

// WithComponent returns a copy of the logger stamped with component.
func (p *ProductionLogger) WithComponent(component string) Logger {
	child := *p
	child.component = component
	child.zl = child.build()
	return &child
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.log(LogLevelDebug, msg, fields)
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.log(LogLevelInfo, msg, fields)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.log(LogLevelWarn, msg, fields)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	if p.errorLimiter != nil && !p.errorLimiter.Allow() {
		return
	}
	p.log(LogLevelError, msg, fields)
}

func (p *ProductionLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if level < p.level {
		return
	}
	ev := p.zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}

// build creates the zerolog logger once per component.
func (p *ProductionLogger) build() zerolog.Logger {
	out := p.output
	if out == nil {
		out = os.Stdout
	}
	if p.format == "text" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: !p.pretty, TimeFormat: "15:04:05.000"}
	}
	return zerolog.New(out).With().
		Timestamp().
		Str("service", p.serviceName).
		Str("component", p.component).
		Logger()
}
