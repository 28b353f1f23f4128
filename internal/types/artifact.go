package types

// ArtifactSource classifies where an artifact payload came from.
type ArtifactSource string

const (
	SourceFile         ArtifactSource = "file"
	SourceURL          ArtifactSource = "url"
	SourceConversation ArtifactSource = "conversation"
	SourcePrompt       ArtifactSource = "prompt"
	SourceLog          ArtifactSource = "log"
	SourceReference    ArtifactSource = "reference"
)

func (s ArtifactSource) IsValid() bool {
	switch s {
	case SourceFile, SourceURL, SourceConversation, SourcePrompt, SourceLog, SourceReference:
		return true
	}
	return false
}

// Artifact is the sidecar metadata record for an attached payload. File
// payloads are copied under artifacts/payload/; URL-class sources keep only
// the reference string.
type Artifact struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id"`
	Source     ArtifactSource `json:"source"`
	PayloadRef string         `json:"payload_ref"`
	Title      string         `json:"title,omitempty"`
	Summary    string         `json:"summary,omitempty"`
	Sensitive  bool           `json:"sensitive,omitempty"`
	Role       string         `json:"role,omitempty"`
	CreatedAt  Timestamp      `json:"created_at"`
	Actor      string         `json:"actor"`
}
