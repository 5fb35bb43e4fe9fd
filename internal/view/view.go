package view

// Response is the envelope every endpoint returns.
type Response[T any] struct {
	Data    T           `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Request interface{} `json:"request,omitempty"`
	Message string      `json:"message,omitempty"`
}

// MessageResponse and ErrorResponse exist for the API docs.
type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func CreateResponse[T any](data T, err error, request interface{}, message string) Response[T] {
	resp := Response[T]{
		Data:    data,
		Request: request,
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
