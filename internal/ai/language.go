package ai

// Script is the writing system detected in a user turn
type Script string

const (
	ScriptBengali    Script = "bengali"
	ScriptDevanagari Script = "devanagari"
	ScriptLatin      Script = "latin"
)

// Unicode blocks checked by DetectScript
const (
	bengaliFirst    = '\u0980'
	bengaliLast     = '\u09FF'
	devanagariFirst = '\u0900'
	devanagariLast  = '\u097F'
)

const (
	bengaliDirective = "\n\n[SYSTEM INSTRUCTION: The user is writing in Bengali. " +
		"You MUST respond ONLY in Bengali (Bangla script). " +
		"Do not use Hindi or English.]"

	devanagariDirective = "\n\n[SYSTEM INSTRUCTION: The user is writing in Hindi. " +
		"You MUST respond ONLY in Hindi (Devanagari script). " +
		"Do not use Bengali or English.]"

	latinDirective = "\n\n[SYSTEM INSTRUCTION: The user is writing in Latin script. " +
		"Analyze the text for phonetic Hindi or Bengali. " +
		"1. If it is Hindi (e.g., 'kya haal hai', 'namaste'), respond ONLY in Hindi (Devanagari script). " +
		"2. If it is Bengali (e.g., 'kemon acho', 'ki khobor'), respond ONLY in Bengali (Bangla script). " +
		"3. If it is English, respond in English. " +
		"Respond in the detected language script only.]"
)

// DetectScript classifies text by the first matching rule:
// any Bengali character wins, then any Devanagari character, otherwise Latin.
func DetectScript(text string) Script {
	hasDevanagari := false
	for _, r := range text {
		if r >= bengaliFirst && r <= bengaliLast {
			return ScriptBengali
		}
		if r >= devanagariFirst && r <= devanagariLast {
			hasDevanagari = true
		}
	}
	if hasDevanagari {
		return ScriptDevanagari
	}
	return ScriptLatin
}

// Directive returns the response-language instruction appended to the outbound user turn
func Directive(script Script) string {
	switch script {
	case ScriptBengali:
		return bengaliDirective
	case ScriptDevanagari:
		return devanagariDirective
	default:
		return latinDirective
	}
}

// Decorate appends the directive for text's script
func Decorate(text string) string {
	return text + Directive(DetectScript(text))
}
