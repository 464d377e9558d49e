package gateway

// User-facing texts. Field names and these strings are relied on by
// existing clients.
const (
	MsgPromptMissing   = "Prompt is missing."
	MsgImageMissing    = "Image is missing."
	MsgDocumentMissing = "Document is missing."
	MsgMessageMissing  = "Message is missing."
	MsgMixedHistory    = "Use either messages or contents, not both."

	MsgUnavailable     = "The AI service is temporarily unavailable. Please try again later."
	MsgProviderFailure = "Sorry, I couldn't generate a response to that request."
	MsgHealthFailure   = "AI Assistant is currently unavailable."
	MsgHealthOffTopic  = "I'm here to help with health-related questions only. Please ask something related to health or wellness."

	CategorizePrompt = "Categorize this image as 'Harmful', 'Neutral', or 'Good'."

	DocumentInstruction = "Answer the user's question using the document provided in the message. If the document does not contain the answer, say so."
	HealthInstruction   = "You are a helpful AI health assistant. Only respond to health-related questions."
)

func unsupportedFileType(ext string) string {
	return "Unsupported file type: " + ext
}

func unsupportedRole(role string) string {
	return "Unsupported role: " + role
}

func unsupportedImageType(mimeType string) string {
	return "Unsupported image type: " + mimeType
}
