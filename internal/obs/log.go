// Package obs carries the observability primitives shared across the
// service: the JSON line logger and the Prometheus metrics the HTTP layer
// and auth handlers record.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// Every log line is stamped with the service name so api and migrate output
// stays distinguishable when the processes share a stream.
const serviceName = "authgate-api"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line-oriented logger. All structured output in
// the service funnels through it, one JSON object per line.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line, adding the service field when
// the caller did not set one.
func LogRequest(entry map[string]any) {
	if entry == nil {
		entry = map[string]any{}
	}
	if _, ok := entry["service"]; !ok {
		entry["service"] = serviceName
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"service":"` + serviceName + `","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// LogError reports an internal failure with its cause and any extra fields.
// Handlers use it for storage and ledger errors whose detail must reach the
// log but never a response body.
func LogError(msg string, err error, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "error",
		"msg":   msg,
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	for k, v := range fields {
		entry[k] = v
	}
	LogRequest(entry)
}
