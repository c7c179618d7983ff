package domain

import "context"

// MIMETypeJPEG is declared for every submitted image regardless of its actual format.
const MIMETypeJPEG = "image/jpeg"

// VisionProvider is the interface all multimodal inference backends implement.
type VisionProvider interface {
	Name() string
	Describe(ctx context.Context, req VisionRequest) (*VisionResponse, error)
	Healthy(ctx context.Context) error
}

type VisionRequest struct {
	Prompt   string
	Image    []byte
	MIMEType string
}

type VisionResponse struct {
	Text      string
	Model     string
	LatencyMs int64 // time taken for the inference call in milliseconds
}
