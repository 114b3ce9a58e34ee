package llm

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the backend can enforce a JSON-only reply.
	SupportsJSONMode bool

	SupportsStreaming bool
}

// EstimateTokens approximates the token count of messages using the
// four-characters-per-token heuristic plus a small per-message overhead.
// Backends without a tokeniser endpoint use it for CountTokens.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += 4 // role + framing overhead
		total += (len(m.Content) + 3) / 4
		if m.Name != "" {
			total += (len(m.Name) + 3) / 4
		}
	}
	return total
}
