package intake

// prompts.go holds the instructions sent to the text-structuring model.
// Keeping them in one file makes them easy to tune without touching the
// normalization logic.

const (
	// historySystemPrompt asks the model to structure free-text medical
	// history into the exact entry shape the validator accepts. The reply is
	// parsed strictly and then re-validated; anything else falls back to the
	// deterministic splitter.
	historySystemPrompt = "You convert a patient's free-text medical history into structured data. " +
		"Reply with ONLY a JSON array, no prose and no code fences. " +
		"Each element is an object with: \"condition\" (short name of the condition, required), " +
		"\"notes\" (optional clarifying detail), \"year\" (optional 4-digit year it began or was diagnosed). " +
		"Omit \"year\" when the text gives none. Never invent conditions, diagnoses, or dates " +
		"that the text does not state. An empty array [] is the correct reply for text with no conditions."
)
