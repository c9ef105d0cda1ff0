// Package faceclient talks to the face detection and embedding server.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultFaceServiceURL = "http://localhost:8000"
	faceEndpoint          = "/embed/face"
)

// ErrNoFaceInCrop is returned by Embed when the server finds no face in the crop.
var ErrNoFaceInCrop = errors.New("no face found in crop")

// Client detects faces and computes face embeddings using the face server
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new face server client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultFaceServiceURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// faceResult represents a single face in the server response
type faceResult struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int          `json:"faces_count"`
	Faces      []faceResult `json:"faces"`
	Model      string       `json:"model"`
}

// Detection is one face found by the server. Box is in pixel coordinates of
// the submitted image and is not clipped.
type Detection struct {
	Box       image.Rectangle
	Score     float64
	Embedding []float32
}

// postImage posts the image as a multipart "file" part to endpoint.
func (c *Client) postImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func (c *Client) faces(ctx context.Context, imageData []byte) ([]faceResult, error) {
	body, err := c.postImage(ctx, faceEndpoint, imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return faceResp.Faces, nil
}

// Detect returns every face the server finds, in server order.
// An image without faces yields an empty slice and no error.
func (c *Client) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	faces, err := c.faces(ctx, imageData)
	if err != nil {
		return nil, err
	}

	detections := make([]Detection, 0, len(faces))
	for _, f := range faces {
		if len(f.BBox) != 4 {
			return nil, fmt.Errorf("malformed bbox with %d values", len(f.BBox))
		}
		detections = append(detections, Detection{
			Box: image.Rect(
				int(math.Floor(f.BBox[0])), int(math.Floor(f.BBox[1])),
				int(math.Ceil(f.BBox[2])), int(math.Ceil(f.BBox[3])),
			),
			Score:     f.DetScore,
			Embedding: f.Embedding,
		})
	}
	return detections, nil
}

// Embed returns the embedding of the primary (first) face in a face crop.
func (c *Client) Embed(ctx context.Context, cropData []byte) ([]float32, error) {
	faces, err := c.faces(ctx, cropData)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, ErrNoFaceInCrop
	}
	if len(faces[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return faces[0].Embedding, nil
}

// DetectMIMEType detects the MIME type from image data
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "image/webp"
	}
	return "application/octet-stream"
}
