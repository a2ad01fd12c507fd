package domain

// Image is raw image bytes together with their content type.
type Image struct {
	Data     []byte
	MimeType string
}

// ReferenceImage is an uploaded photo that a description cites as @img<Ordinal>.
type ReferenceImage struct {
	Ordinal int
	Image
}

// GenerationRequest is the input of a single provider attempt.
// It is built fresh for every attempt and never stored.
type GenerationRequest struct {
	Text        string
	Images      []ReferenceImage
	AspectRatio string
}
