// Package gemini provides an HTTP client for the Google Generative
// Language API, covering Files API uploads and content generation.
package gemini

// FileState represents the processing state of an uploaded file.
type FileState string

// File states reported by the Files API.
const (
	FileStateProcessing FileState = "PROCESSING"
	FileStateActive     FileState = "ACTIVE"
	FileStateFailed     FileState = "FAILED"
)

// IsTerminal returns true if the state is a final state.
func (s FileState) IsTerminal() bool {
	switch s {
	case FileStateActive, FileStateFailed:
		return true
	default:
		return false
	}
}

// File holds the metadata of an uploaded file.
type File struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	URI         string    `json:"uri"`
	State       FileState `json:"state"`
}

// listFilesResponse represents the response from listing uploaded files.
type listFilesResponse struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// uploadMetadata is the metadata body that starts a resumable upload.
type uploadMetadata struct {
	File uploadFile `json:"file"`
}

// uploadFile carries the display name for an upload.
type uploadFile struct {
	DisplayName string `json:"display_name"`
}

// uploadResponse wraps the file info returned by a finalized upload.
type uploadResponse struct {
	File File `json:"file"`
}

// generateRequest represents the request body for generateContent.
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

// content groups the parts of a generateContent request or response.
type content struct {
	Parts []part `json:"parts"`
}

// part is either a file reference or a text fragment.
type part struct {
	FileData *fileData `json:"file_data,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// fileData references an uploaded file by URI.
type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

// generationConfig tunes a generateContent call.
type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// generateResponse represents the response from generateContent.
type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

// candidate is one generated answer.
type candidate struct {
	Content content `json:"content"`
}
