package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// OCRClient talks to a tesseract OCR sidecar over HTTP. The sidecar owns
// the heavy image processing; this client only ships bytes and reads text.
type OCRClient struct {
	httpClient *http.Client
	baseURL    string
	language   string
}

// OCRResponse is the sidecar's extraction result.
type OCRResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Error   string `json:"error,omitempty"`
}

type ocrHealthResponse struct {
	Status string `json:"status"`
}

// NewOCRClient creates a client for the OCR service at baseURL.
func NewOCRClient(baseURL, language string) *OCRClient {
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}
	return &OCRClient{
		httpClient: &http.Client{
			Timeout: 2 * time.Minute, // OCR can take time
		},
		baseURL:  baseURL,
		language: language,
	}
}

// IsHealthy checks if the OCR service is up.
func (c *OCRClient) IsHealthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("OCR service unhealthy: status %d", resp.StatusCode)
	}

	var health ocrHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, fmt.Errorf("failed to decode health response: %w", err)
	}
	return health.Status == "healthy", nil
}

// ExtractText runs OCR over one image and returns the recognized text.
func (c *OCRClient) ExtractText(ctx context.Context, image []byte, fileName string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(image); err != nil {
		return "", fmt.Errorf("failed to write file data: %w", err)
	}
	writer.WriteField("language", c.language)
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/ocr/extract", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create OCR request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OCR request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp OCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return "", fmt.Errorf("failed to decode OCR response: %w", err)
	}
	if !ocrResp.Success {
		return "", fmt.Errorf("OCR processing failed: %s", ocrResp.Error)
	}
	return ocrResp.Text, nil
}
