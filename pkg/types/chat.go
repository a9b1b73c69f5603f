package types

// ChatRequest is the caller-supplied payload for one chat exchange.
type ChatRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// ChatResponse carries the generated text and the model that produced it.
type ChatResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
