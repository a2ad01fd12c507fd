package reference

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pintatina/internal/domain"
)

// MaxSlots is the number of photos a session may hold at once.
const MaxSlots = 4

type Upload struct {
	Data     []byte
	MimeType string
}

type Slot struct {
	ID       string `json:"id"`
	Ordinal  int    `json:"ordinal"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

type entry struct {
	id   string
	data []byte
	mime string
}

// Set holds the reference photos of one session. Ordinals are not stored:
// they are the 1-based position in the current order, so removing a photo
// renumbers every photo after it.
type Set struct {
	mu      sync.Mutex
	entries []entry
}

func NewSet() *Set {
	return &Set{}
}

// Add stores uploads until the set is full and silently drops the rest.
// Empty uploads are skipped. It returns the slots that were accepted.
func (s *Set) Add(uploads ...Upload) []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []Slot
	for _, u := range uploads {
		if len(s.entries) >= MaxSlots {
			break
		}
		if len(u.Data) == 0 {
			continue
		}
		e := entry{
			id:   uuid.NewString(),
			data: u.Data,
			mime: NormalizeMIME(u.MimeType, u.Data),
		}
		s.entries = append(s.entries, e)
		added = append(added, slotOf(e, len(s.entries)))
	}
	return added
}

func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Set) Remaining() int {
	return MaxSlots - s.Len()
}

func (s *Set) List() []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Slot, 0, len(s.entries))
	for i, e := range s.entries {
		out = append(out, slotOf(e, i+1))
	}
	return out
}

// Images returns the photos in ordinal order, ready to attach to a request.
func (s *Set) Images() []domain.ReferenceImage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ReferenceImage, 0, len(s.entries))
	for i, e := range s.entries {
		out = append(out, domain.ReferenceImage{
			Ordinal: i + 1,
			Image:   domain.Image{Data: e.data, MimeType: e.mime},
		})
	}
	return out
}

func slotOf(e entry, ordinal int) Slot {
	return Slot{ID: e.id, Ordinal: ordinal, MimeType: e.mime, Size: len(e.data)}
}

// NormalizeMIME strips parameters from a declared content type and sniffs
// the bytes when the declaration is missing or generic.
func NormalizeMIME(declared string, data []byte) string {
	mimeType := stripParams(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = stripParams(http.DetectContentType(data))
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

func stripParams(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return strings.ToLower(value)
}
