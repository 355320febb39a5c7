// Package documents defines the Document domain model: the uploaded
// artifact that the ingestion pipeline carries from pending through
// processing to ready or failed, plus the MIME whitelist and classification
// inference the rest of the system depends on.
package documents

import (
	"time"

	"github.com/google/uuid"

	"campaignkb/internal/kberrors"
)

// MIME is one of the closed set of content types the service accepts.
// A non-whitelisted MIME never produces a Document.
type MIME string

const (
	MIMEPDF        MIME = "application/pdf"
	MIMEPlainText  MIME = "text/plain"
	MIMEMarkdown   MIME = "text/markdown"
	MIMERichText   MIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEPNG        MIME = "image/png"
	MIMEJPEG       MIME = "image/jpeg"
	MIMEWebP       MIME = "image/webp"
)

var allowedMIME = map[MIME]struct{}{
	MIMEPDF:       {},
	MIMEPlainText: {},
	MIMEMarkdown:  {},
	MIMERichText:  {},
	MIMEPNG:       {},
	MIMEJPEG:      {},
	MIMEWebP:      {},
}

// IsAllowed reports whether m is in the closed MIME whitelist.
func IsAllowed(m MIME) bool {
	_, ok := allowedMIME[m]
	return ok
}

// Classification is the document's knowledge-category tag, used to filter
// retrieval.
type Classification string

const (
	ClassRulebook Classification = "rulebook"
	ClassSetting  Classification = "setting"
	ClassNotes    Classification = "notes"
	ClassMap      Classification = "map"
	ClassImage    Classification = "image"
)

// State is the document's lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// Document is one uploaded artifact belonging to one campaign.
type Document struct {
	ID               string
	CampaignID       string
	DisplayName      string
	OriginalFilename string
	MIMEType         MIME
	ByteSize         int64
	StorageKey       string
	Classification   Classification
	Tags             []string
	State            State
	ProcessingError  string
	ChunkCount       *int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// New creates a Document in state pending. It is the only constructor:
// a Document can never be built with a MIME type outside the whitelist.
func New(campaignID, displayName, originalFilename string, mime MIME, byteSize int64, storageKey string, classification Classification, tags []string, now time.Time) (*Document, error) {
	if !IsAllowed(mime) {
		return nil, kberrors.New(kberrors.UnsupportedMIME, "documents.New", nil)
	}
	if classification == "" {
		classification = InferClassification(mime)
	}
	return &Document{
		ID:               uuid.NewString(),
		CampaignID:       campaignID,
		DisplayName:      displayName,
		OriginalFilename: originalFilename,
		MIMEType:         mime,
		ByteSize:         byteSize,
		StorageKey:       storageKey,
		Classification:   classification,
		Tags:             tags,
		State:            StatePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// StartProcessing transitions pending|failed -> processing. failed is a
// valid source state so a retried ingestion job can reclaim the document;
// only a worker claiming the document's ingestion job should call this.
func (d *Document) StartProcessing(now time.Time) error {
	if d.State != StatePending && d.State != StateFailed {
		return kberrors.New(kberrors.ValidationError, "documents.StartProcessing",
			errInvalidTransition(d.State, StateProcessing))
	}
	d.State = StateProcessing
	d.ProcessingError = ""
	d.UpdatedAt = now
	return nil
}

// MarkReady transitions processing -> ready, recording chunkCount atomically
// with the state change: ChunkCount is non-nil exactly when State is ready.
func (d *Document) MarkReady(chunkCount int, now time.Time) error {
	if d.State != StateProcessing {
		return kberrors.New(kberrors.ValidationError, "documents.MarkReady",
			errInvalidTransition(d.State, StateReady))
	}
	d.State = StateReady
	d.ChunkCount = &chunkCount
	d.ProcessingError = ""
	d.UpdatedAt = now
	return nil
}

// MarkFailed transitions the document to failed from any state, recording
// an error message: ProcessingError is non-empty exactly when State is
// failed.
func (d *Document) MarkFailed(reason string, now time.Time) {
	d.State = StateFailed
	d.ProcessingError = reason
	d.ChunkCount = nil
	d.UpdatedAt = now
}

func errInvalidTransition(from, to State) error {
	return &transitionError{from: from, to: to}
}

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return "invalid transition from " + string(e.from) + " to " + string(e.to)
}
