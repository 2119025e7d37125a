package convert

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Document is a registered output file available for download.
type Document struct {
	DocumentID   string     `json:"document_id"`
	JobID        string     `json:"job_id,omitempty"`
	Filename     string     `json:"filename"`
	FilePath     string     `json:"-"`
	Size         int64      `json:"size"`
	DownloadURL  string     `json:"download_url"`
	ContentType  string     `json:"content_type"`
	CreatedAt    time.Time  `json:"created_at"`
	Downloaded   bool       `json:"downloaded"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
}

// Registry tracks generated output files and expires them after a TTL
// so finished outputs do not accumulate on disk.
type Registry struct {
	mu        sync.RWMutex
	documents map[string]*Document

	// ttl is the hard expiry; downloadedTTL is the fast path after a
	// client has fetched the file.
	ttl           time.Duration
	downloadedTTL time.Duration
}

// NewRegistry creates a registry with the given expiry windows. Zero
// values select the defaults (1 hour, 5 minutes after download).
func NewRegistry(ttl, downloadedTTL time.Duration) *Registry {
	if ttl == 0 {
		ttl = time.Hour
	}
	if downloadedTTL == 0 {
		downloadedTTL = 5 * time.Minute
	}
	return &Registry{
		documents:     make(map[string]*Document),
		ttl:           ttl,
		downloadedTTL: downloadedTTL,
	}
}

// Register records an already-written output file and returns its
// download record.
func (r *Registry) Register(filePath, jobID string) (*Document, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}

	doc := &Document{
		DocumentID:  uuid.New().String(),
		JobID:       jobID,
		Filename:    filepath.Base(filePath),
		FilePath:    filePath,
		Size:        info.Size(),
		ContentType: contentTypeFor(filePath),
		CreatedAt:   time.Now(),
	}
	doc.DownloadURL = fmt.Sprintf("/api/download/%s", doc.DocumentID)

	r.mu.Lock()
	r.documents[doc.DocumentID] = doc
	r.mu.Unlock()

	return doc, nil
}

// Get retrieves a document by ID.
func (r *Registry) Get(documentID string) (*Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[documentID]
	return doc, ok
}

// ByJob returns all documents registered for a job.
func (r *Registry) ByJob(jobID string) []*Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var docs []*Document
	for _, doc := range r.documents {
		if doc.JobID == jobID {
			docs = append(docs, doc)
		}
	}
	return docs
}

// MarkDownloaded records that a client fetched the document, which
// shortens its remaining lifetime.
func (r *Registry) MarkDownloaded(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.documents[documentID]; ok {
		now := time.Now()
		doc.Downloaded = true
		doc.DownloadedAt = &now
	}
}

// Cleanup removes expired documents and their files, returning the
// number removed.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cleaned := 0

	for id, doc := range r.documents {
		expired := now.Sub(doc.CreatedAt) > r.ttl
		if doc.Downloaded && doc.DownloadedAt != nil && now.Sub(*doc.DownloadedAt) > r.downloadedTTL {
			expired = true
		}
		if !expired {
			continue
		}

		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("⚠️  Failed to delete output file %s: %v", doc.FilePath, err)
		}
		delete(r.documents, id)
		cleaned++
	}

	return cleaned
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tiff", ".tif":
		return "image/tiff"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
