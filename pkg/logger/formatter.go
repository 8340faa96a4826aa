package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const colorReset = "\033[0m"

var levelColors = map[logrus.Level]string{
	logrus.PanicLevel: "\033[31m",
	logrus.FatalLevel: "\033[31m",
	logrus.ErrorLevel: "\033[31m",
	logrus.WarnLevel:  "\033[33m",
	logrus.InfoLevel:  "\033[36m",
	logrus.DebugLevel: "\033[37m",
	logrus.TraceLevel: "\033[37m",
}

// Keys the JSON formatter writes itself. Entry fields with the same name
// are kept under a "fields." prefix.
var reservedKeys = map[string]bool{
	"timestamp": true,
	"level":     true,
	"message":   true,
	"app":       true,
	"version":   true,
	"caller":    true,
	"function":  true,
}

type CustomJSONFormatter struct {
	TimestampFormat string
	PrettyPrint     bool
	AppName         string
	Version         string
}

func (f *CustomJSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Data)+7)
	for k, v := range entry.Data {
		if reservedKeys[k] {
			k = "fields." + k
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}

	data["timestamp"] = entry.Time.Format(layoutOr(f.TimestampFormat, time.RFC3339Nano))
	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if f.AppName != "" {
		data["app"] = f.AppName
	}
	if f.Version != "" {
		data["version"] = f.Version
	}
	if entry.HasCaller() {
		data["caller"] = fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line)
		data["function"] = entry.Caller.Function
	}

	b := entryBuffer(entry)
	encoder := json.NewEncoder(b)
	if f.PrettyPrint {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to marshal fields to JSON: %w", err)
	}
	return b.Bytes(), nil
}

// CustomTextFormatter writes one human-readable line per entry. The
// emergency id, when present, leads the line so a single alert can be
// followed with grep.
type CustomTextFormatter struct {
	TimestampFormat string
	Colors          bool
	AppName         string
}

func (f *CustomTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entryBuffer(entry)

	level := strings.ToUpper(entry.Level.String())
	if f.Colors {
		level = levelColors[entry.Level] + level + colorReset
	}
	fmt.Fprintf(b, "%s [%s] ", entry.Time.Format(layoutOr(f.TimestampFormat, "2006-01-02 15:04:05.000")), level)

	if f.AppName != "" {
		fmt.Fprintf(b, "[%s] ", f.AppName)
	}
	if id, ok := entry.Data["emergency_id"]; ok {
		fmt.Fprintf(b, "[emergency %v] ", id)
	}
	if entry.HasCaller() {
		fmt.Fprintf(b, "[%s:%d] ", entry.Caller.File, entry.Caller.Line)
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "emergency_id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		value := fmt.Sprint(entry.Data[k])
		if strings.ContainsAny(value, " =\"") {
			value = fmt.Sprintf("%q", value)
		}
		fmt.Fprintf(b, " %s=%s", k, value)
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func entryBuffer(entry *logrus.Entry) *bytes.Buffer {
	if entry.Buffer != nil {
		return entry.Buffer
	}
	return &bytes.Buffer{}
}

func layoutOr(layout, fallback string) string {
	if layout == "" {
		return fallback
	}
	return layout
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// AuditLogger writes one JSON entry per emergency state change or acknowledgment.
type AuditLogger struct {
	logger *Logger
}

// NewAuditLoggerFrom reuses an existing logger's output.
func NewAuditLoggerFrom(l *Logger) *AuditLogger {
	return &AuditLogger{logger: l.WithField("type", "audit")}
}

func (a *AuditLogger) LogTransition(emergencyID, userID primitive.ObjectID, from, to string, details map[string]interface{}) {
	fields := map[string]interface{}{
		"action":       "transition",
		"resource":     "emergency",
		"emergency_id": emergencyID.Hex(),
		"user_id":      userID.Hex(),
		"from_status":  from,
		"to_status":    to,
		"timestamp":    time.Now().UTC(),
		"type":         "audit",
	}

	for k, v := range details {
		fields[k] = v
	}

	a.logger.WithFields(fields).Info("Audit log entry")
}

func (a *AuditLogger) LogAcknowledgment(emergencyID, contactID primitive.ObjectID, contactName string) {
	a.logger.WithFields(map[string]interface{}{
		"action":       "acknowledge",
		"resource":     "acknowledgment",
		"emergency_id": emergencyID.Hex(),
		"contact_id":   contactID.Hex(),
		"contact_name": contactName,
		"timestamp":    time.Now().UTC(),
		"type":         "audit",
	}).Info("Audit log entry")
}
