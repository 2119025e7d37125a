package services

import (
	"log"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
)

// UploadedFile is an uploaded PDF or image held for processing.
type UploadedFile struct {
	FileID     string    `json:"file_id"`
	Filename   string    `json:"filename"`
	FilePath   string    `json:"-"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	PageCount  int       `json:"page_count"` // PDFs only
	WordCount  int       `json:"word_count"` // PDFs only
	HasText    bool      `json:"has_text"`   // PDFs only: true if a usable text layer exists
	UploadedAt time.Time `json:"uploaded_at"`
}

// FileCacheService tracks uploaded files, expiring stale uploads and
// removing their on-disk copies when evicted.
type FileCacheService struct {
	cache *cache.Cache
}

// NewFileCacheService creates a file cache with the given TTL for
// uploads that are never consumed by a job.
func NewFileCacheService(ttl time.Duration) *FileCacheService {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	c := cache.New(ttl, 10*time.Minute)

	c.OnEvicted(func(key string, value interface{}) {
		file, ok := value.(*UploadedFile)
		if !ok {
			return
		}
		if err := os.Remove(file.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("⚠️  [FILE-CACHE] Failed to delete expired upload %s: %v", file.FilePath, err)
		} else {
			log.Printf("🗑️  [FILE-CACHE] Evicted upload %s (%s)", file.FileID, file.Filename)
		}
	})

	return &FileCacheService{cache: c}
}

// Store records an uploaded file.
func (s *FileCacheService) Store(file *UploadedFile) {
	s.cache.Set(file.FileID, file, cache.DefaultExpiration)
	log.Printf("📦 [FILE-CACHE] Stored upload %s (%s) - %d bytes, %d pages",
		file.FileID, file.Filename, file.Size, file.PageCount)
}

// Get retrieves an uploaded file by ID.
func (s *FileCacheService) Get(fileID string) (*UploadedFile, bool) {
	value, found := s.cache.Get(fileID)
	if !found {
		return nil, false
	}
	file, ok := value.(*UploadedFile)
	return file, ok
}

// Touch extends an upload's lifetime, used when a job claims the file.
func (s *FileCacheService) Touch(fileID string) {
	if value, found := s.cache.Get(fileID); found {
		s.cache.Set(fileID, value, cache.DefaultExpiration)
	}
}

// Remove deletes an upload from the cache without touching the disk
// copy. Used when a job takes ownership of the file.
func (s *FileCacheService) Remove(fileID string) {
	// OnEvicted fires on Delete, so detach the handler path by
	// replacing the value with nil first.
	s.cache.Set(fileID, nil, cache.DefaultExpiration)
	s.cache.Delete(fileID)
}

// Count returns the number of cached uploads.
func (s *FileCacheService) Count() int {
	return s.cache.ItemCount()
}
