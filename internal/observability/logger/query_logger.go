package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is the latency above which a statement is logged at warn.
const DefaultSlowQuery = 200 * time.Millisecond

// QueryLogger adapts gorm's logger interface onto zap. Statements are only
// written when they fail or are slow; bound values never reach the log.
type QueryLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewQueryLogger(base *zap.Logger, slow time.Duration) *QueryLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &QueryLogger{log: base.Named("gorm"), level: gormlogger.Warn, slow: slow}
}

func (q *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *q
	next.level = level
	return &next
}

func (q *QueryLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	q.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, args)
}

func (q *QueryLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	q.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, args)
}

func (q *QueryLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	q.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, args)
}

func (q *QueryLogger) printf(ctx context.Context, threshold gormlogger.LogLevel, level zapcore.Level, msg string, args []interface{}) {
	if q.level < threshold {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	WithContext(ctx, q.log).Check(level, msg).Write()
}

// Trace is called by gorm after every statement.
func (q *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var level zapcore.Level
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		level = zapcore.ErrorLevel
	case q.slow > 0 && elapsed > q.slow && q.level >= gormlogger.Warn:
		level = zapcore.WarnLevel
	case q.level >= gormlogger.Info:
		level = zapcore.DebugLevel
	default:
		return
	}

	ce := WithContext(ctx, q.log).Check(level, "gorm.query")
	if ce == nil {
		return
	}
	sql, rows := fc()
	verb, table := describeStatement(sql)
	fields := []zap.Field{
		zap.String("operation", verb),
		zap.String("table", table),
		zap.Duration("duration", elapsed),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// ParamsFilter drops bound values so amounts and payloads stay out of logs.
func (q *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

// describeStatement returns the leading DML verb and the table it targets.
func describeStatement(sql string) (string, string) {
	tokens := strings.Fields(strings.ToUpper(sql))
	verb := "UNKNOWN"
	for i, tok := range tokens {
		tok = strings.Trim(tok, "(;")
		switch tok {
		case "SELECT", "DELETE":
			verb = tok
			return verb, tableAfter(tokens[i+1:], "FROM")
		case "INSERT":
			return tok, tableAfter(tokens[i+1:], "INTO")
		case "UPDATE":
			if i+1 < len(tokens) {
				return tok, cleanTable(tokens[i+1])
			}
			return tok, ""
		}
	}
	return verb, ""
}

func tableAfter(tokens []string, keyword string) string {
	for i, tok := range tokens {
		if tok == keyword && i+1 < len(tokens) {
			return cleanTable(tokens[i+1])
		}
	}
	return ""
}

func cleanTable(tok string) string {
	return strings.ToLower(strings.Trim(tok, "\"`();"))
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
