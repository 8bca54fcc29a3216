// Package language knows the ISO 639-1 codes the supported transcription
// services accept, so a typo fails validation locally instead of as a
// provider rejection mid-job.
package language

// Language pairs an ISO 639-1 code with its English name.
type Language struct {
	Code string
	Name string
}

// Auto is the zero language: let the provider detect it.
var Auto = Language{Code: "", Name: "Auto-detect"}

var languages = []Language{
	{Code: "af", Name: "Afrikaans"},
	{Code: "am", Name: "Amharic"},
	{Code: "ar", Name: "Arabic"},
	{Code: "as", Name: "Assamese"},
	{Code: "az", Name: "Azerbaijani"},
	{Code: "be", Name: "Belarusian"},
	{Code: "bg", Name: "Bulgarian"},
	{Code: "bn", Name: "Bengali"},
	{Code: "ca", Name: "Catalan"},
	{Code: "cs", Name: "Czech"},
	{Code: "cy", Name: "Welsh"},
	{Code: "da", Name: "Danish"},
	{Code: "de", Name: "German"},
	{Code: "el", Name: "Greek"},
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Spanish"},
	{Code: "et", Name: "Estonian"},
	{Code: "eu", Name: "Basque"},
	{Code: "fa", Name: "Persian"},
	{Code: "fi", Name: "Finnish"},
	{Code: "fr", Name: "French"},
	{Code: "ga", Name: "Irish"},
	{Code: "gl", Name: "Galician"},
	{Code: "gu", Name: "Gujarati"},
	{Code: "ha", Name: "Hausa"},
	{Code: "he", Name: "Hebrew"},
	{Code: "hi", Name: "Hindi"},
	{Code: "hr", Name: "Croatian"},
	{Code: "hu", Name: "Hungarian"},
	{Code: "hy", Name: "Armenian"},
	{Code: "id", Name: "Indonesian"},
	{Code: "ig", Name: "Igbo"},
	{Code: "is", Name: "Icelandic"},
	{Code: "it", Name: "Italian"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ka", Name: "Georgian"},
	{Code: "kk", Name: "Kazakh"},
	{Code: "km", Name: "Khmer"},
	{Code: "kn", Name: "Kannada"},
	{Code: "ko", Name: "Korean"},
	{Code: "ky", Name: "Kyrgyz"},
	{Code: "lo", Name: "Lao"},
	{Code: "lt", Name: "Lithuanian"},
	{Code: "lv", Name: "Latvian"},
	{Code: "mg", Name: "Malagasy"},
	{Code: "mk", Name: "Macedonian"},
	{Code: "ml", Name: "Malayalam"},
	{Code: "mn", Name: "Mongolian"},
	{Code: "mr", Name: "Marathi"},
	{Code: "ms", Name: "Malay"},
	{Code: "mt", Name: "Maltese"},
	{Code: "my", Name: "Burmese"},
	{Code: "ne", Name: "Nepali"},
	{Code: "nl", Name: "Dutch"},
	{Code: "no", Name: "Norwegian"},
	{Code: "or", Name: "Odia"},
	{Code: "pa", Name: "Punjabi"},
	{Code: "pl", Name: "Polish"},
	{Code: "ps", Name: "Pashto"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "ro", Name: "Romanian"},
	{Code: "ru", Name: "Russian"},
	{Code: "rw", Name: "Kinyarwanda"},
	{Code: "sa", Name: "Sanskrit"},
	{Code: "si", Name: "Sinhala"},
	{Code: "sk", Name: "Slovak"},
	{Code: "sl", Name: "Slovenian"},
	{Code: "sn", Name: "Shona"},
	{Code: "so", Name: "Somali"},
	{Code: "sq", Name: "Albanian"},
	{Code: "sv", Name: "Swedish"},
	{Code: "sw", Name: "Swahili"},
	{Code: "ta", Name: "Tamil"},
	{Code: "te", Name: "Telugu"},
	{Code: "tg", Name: "Tajik"},
	{Code: "th", Name: "Thai"},
	{Code: "tr", Name: "Turkish"},
	{Code: "uk", Name: "Ukrainian"},
	{Code: "ur", Name: "Urdu"},
	{Code: "uz", Name: "Uzbek"},
	{Code: "vi", Name: "Vietnamese"},
	{Code: "xh", Name: "Xhosa"},
	{Code: "yo", Name: "Yoruba"},
	{Code: "zh", Name: "Chinese"},
	{Code: "zu", Name: "Zulu"},
}

var codeIndex map[string]Language

func init() {
	codeIndex = make(map[string]Language, len(languages)+1)
	codeIndex[""] = Auto
	for _, lang := range languages {
		codeIndex[lang.Code] = lang
	}
}

// FromCode returns the Language for the given code, Auto if unknown.
func FromCode(code string) Language {
	if lang, ok := codeIndex[code]; ok {
		return lang
	}
	return Auto
}

// IsValidCode reports whether a code is recognized. The empty code is
// valid and means auto-detect.
func IsValidCode(code string) bool {
	_, ok := codeIndex[code]
	return ok
}

// List returns all supported languages excluding Auto.
func List() []Language {
	result := make([]Language, len(languages))
	copy(result, languages)
	return result
}
