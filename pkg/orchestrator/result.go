package orchestrator

import "time"

// Result codes.
const (
	CodeOK     = 0
	CodeFailed = -1
)

// Result is the reply to every host bridge operation.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Ts      int64  `json:"ts"`
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Code == CodeOK
}

func result(code int, message string, data any) Result {
	return Result{Code: code, Message: message, Data: data, Ts: time.Now().UnixMilli()}
}

func success(data any) Result {
	return result(CodeOK, "success", data)
}

func failure(message string) Result {
	return result(CodeFailed, message, nil)
}

// StatusData is the payload of Status.
type StatusData struct {
	Recording  bool `json:"recording"`
	Previewing bool `json:"previewing"`
}

// PathData is the payload of operations that produce a file.
type PathData struct {
	Path string `json:"path"`
}
