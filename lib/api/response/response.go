package response

import "chartscan/lib/clock"

// Response is the envelope of every JSON answer of the API.
type Response struct {
	Data          any    `json:"data,omitempty"`
	Success       bool   `json:"success" validate:"required"`
	StatusMessage string `json:"status_message"`
	Retryable     bool   `json:"retryable,omitempty"`
	Timestamp     string `json:"timestamp"`
}

func Ok(data any) Response {
	return Response{
		Data:          data,
		Success:       true,
		StatusMessage: "Success",
		Timestamp:     clock.Now(),
	}
}

func Error(message string) Response {
	return Response{
		Success:       false,
		StatusMessage: message,
		Timestamp:     clock.Now(),
	}
}

// Unavailable tells the client nothing was written and the call may be repeated.
func Unavailable(message string) Response {
	r := Error(message)
	r.Retryable = true
	return r
}
