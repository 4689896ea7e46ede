package domain

// ClassificationErrorType marks a failed classification. It is a valid
// terminal outcome, not a retryable state.
const ClassificationErrorType = "error"

// Entity is one labeled span reported by the classification service.
type Entity struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Normalized string  `json:"normalized,omitempty"`
}

type ClassificationResult struct {
	Type       string   `json:"type"`
	Confidence float64  `json:"confidence"`
	PageCount  int      `json:"page_count"`
	Entities   []Entity `json:"entities,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ErrorClassification builds the sentinel result recorded when the
// classification call itself failed.
func ErrorClassification(err error) ClassificationResult {
	return ClassificationResult{
		Type:       ClassificationErrorType,
		Confidence: 0.0,
		Error:      err.Error(),
	}
}

func (c ClassificationResult) Failed() bool {
	return c.Type == ClassificationErrorType
}

type ExtractionResult struct {
	Entities map[string]string `json:"entities,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ClassifiableContentTypes are the attachment content types that get sent
// to the classification service. Everything else is stored unclassified.
var ClassifiableContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/tiff":      true,
}
