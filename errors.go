package ragchat

import "errors"

var (
	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("ragchat: unsupported document format")

	// ErrFetchFailed is returned when a URL cannot be fetched or read.
	ErrFetchFailed = errors.New("ragchat: url fetch failed")

	// ErrEmbedderUnavailable is returned when the embedding backend cannot
	// be reached or fails to encode. The failing ingest is aborted; documents
	// already indexed are unaffected.
	ErrEmbedderUnavailable = errors.New("ragchat: embedder unavailable")

	// ErrNoCorpus is returned when rag mode is requested against an empty index.
	ErrNoCorpus = errors.New("ragchat: no documents in corpus")

	// ErrNoRelevantResults is returned when retrieval finds nothing above the
	// fallback threshold. Surfaced as a normal chat response, not a failure.
	ErrNoRelevantResults = errors.New("ragchat: no relevant results")

	// ErrLLMUnavailable is returned when no chat provider is configured or
	// reachable. The router degrades instead of propagating this to clients.
	ErrLLMUnavailable = errors.New("ragchat: LLM provider unavailable")

	// ErrUnknownDocument is returned when a document ID does not exist.
	ErrUnknownDocument = errors.New("ragchat: document not found")

	// ErrUnknownConversation is returned when a conversation ID does not exist.
	ErrUnknownConversation = errors.New("ragchat: conversation not found")

	// ErrInvalidRequest is returned for malformed client input.
	ErrInvalidRequest = errors.New("ragchat: invalid request")
)
