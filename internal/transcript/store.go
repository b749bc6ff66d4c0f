package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medstra/streaming-avatar/internal/logging"
)

// Document is the persisted transcript sidecar for one session.
type Document struct {
	SessionID     string  `json:"session_id"`
	CorrelationID string  `json:"correlation_id"`
	Language      string  `json:"language,omitempty"`
	Assessment    string  `json:"assessment,omitempty"`
	StartedAt     string  `json:"started_at"`
	UpdatedAt     string  `json:"updated_at"`
	Entries       []Entry `json:"entries"`
	Report        string  `json:"report,omitempty"`
}

// Store manages transcript sidecar files in a configured directory. The
// zero value, or a blank dir, is a disabled store whose methods no-op so
// callers need no guards in the hot path.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: strings.TrimSpace(dir)}
}

// Enabled reports whether the store has somewhere to write.
func (s *Store) Enabled() bool {
	return s != nil && s.Dir != ""
}

// NewDocument creates the sidecar skeleton for a session with a fresh
// correlation id.
func (s *Store) NewDocument(sessionID, language, assessment string) *Document {
	now := time.Now().UTC().Format(time.RFC3339)
	return &Document{
		SessionID:     sessionID,
		CorrelationID: uuid.NewString(),
		Language:      language,
		Assessment:    assessment,
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.Dir, "transcript-"+sessionID+".json")
}

// Save writes the document atomically, one file per session id.
func (s *Store) Save(doc *Document) error {
	if !s.Enabled() {
		return nil
	}
	doc.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript for session %s: %w", doc.SessionID, err)
	}
	return saveFileAtomic(s.path(doc.SessionID), data, 0o644)
}

// FindBySession loads the transcript for a session id, or nil when none
// has been written yet.
func (s *Store) FindBySession(sessionID string) (*Document, error) {
	if !s.Enabled() || sessionID == "" {
		return nil, nil
	}
	b, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript for session %s: %w", sessionID, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid transcript JSON for session %s: %w", sessionID, err)
	}
	return &doc, nil
}

// Merge loads the session's sidecar, applies the update function, and
// writes it back atomically. Missing sidecars start from a skeleton so a
// late report still lands somewhere.
func (s *Store) Merge(sessionID string, update func(*Document)) error {
	if !s.Enabled() {
		return nil
	}
	doc, err := s.FindBySession(sessionID)
	if err != nil {
		return err
	}
	if doc == nil {
		logging.Debugw("merging into missing transcript, starting fresh", "session_id", sessionID)
		doc = s.NewDocument(sessionID, "", "")
	}
	update(doc)
	return s.Save(doc)
}
