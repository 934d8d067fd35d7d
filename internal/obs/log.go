package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line-oriented logger. Every component writes
// single-line JSON through it so log shippers never have to reassemble
// multi-line entries.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// Emit writes one structured JSON log line. The ts/level/msg keys are set
// here; callers supply the rest.
func Emit(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = msg
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
