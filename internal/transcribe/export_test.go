package transcribe

// NewTestTranscriber creates an OpenAITranscriber around a fake client.
func NewTestTranscriber(client audioTranscriber, opts ...TranscriberOption) *OpenAITranscriber {
	return newTranscriber(client, "test-api-key", opts...)
}

var (
	ClassifyError = classifyError
	BaseLanguage  = baseLanguage
)
