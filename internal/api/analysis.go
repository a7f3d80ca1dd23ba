package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Metadata is the operator-entered form sent with an upload. The client
// does not validate it; the backend is the judge.
type Metadata struct {
	Category    string `json:"category"`
	RiskLevel   string `json:"riskLevel"`
	Location    string `json:"location"`
	Coordinates string `json:"coordinates"`
	Responsible string `json:"responsible"`
	Personnel   int    `json:"personnel"`
}

// AnalysisSummary is the list projection returned by the history endpoint.
type AnalysisSummary struct {
	ID          int    `json:"id"`
	Date        string `json:"date"`
	Zone        string `json:"zone"`
	Category    string `json:"category"`
	RiskLevel   string `json:"riskLevel"`
	CopperGrade string `json:"copperGrade"`
	Status      string `json:"status"`
}

// AnalysisDetail is a server-confirmed analysis record.
type AnalysisDetail struct {
	ID              int            `json:"id"`
	Date            string         `json:"date"`
	Zone            string         `json:"zone"`
	Category        string         `json:"category"`
	RiskLevel       string         `json:"riskLevel"`
	CopperGrade     string         `json:"copperGrade"`
	AISummary       string         `json:"aiSummary"`
	Recommendations []string       `json:"recommendations"`
	Metadata        map[string]any `json:"metadata"`
	ImageURL        string         `json:"imageUrl"`
	Status          string         `json:"status"`
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload sends one photograph plus its metadata for analysis. The metadata
// travels as a single JSON-encoded form field. There is no retry.
func (c *Client) Upload(ctx context.Context, filename, contentType string, content io.Reader, meta Metadata) (AnalysisDetail, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return AnalysisDetail{}, fmt.Errorf("encoding metadata: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return AnalysisDetail{}, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return AnalysisDetail{}, fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := mw.WriteField("metadata", string(metaJSON)); err != nil {
		return AnalysisDetail{}, fmt.Errorf("writing metadata field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return AnalysisDetail{}, fmt.Errorf("closing multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/analysis/upload", &body, mw.FormDataContentType())
	if err != nil {
		return AnalysisDetail{}, err
	}

	var out AnalysisDetail
	if err := decodeJSON(resp, &out); err != nil {
		return AnalysisDetail{}, err
	}
	return out, nil
}

// History lists every analysis visible to the session. No pagination.
func (c *Client) History(ctx context.Context) ([]AnalysisSummary, error) {
	resp, err := c.get(ctx, "/analysis/history")
	if err != nil {
		return nil, err
	}

	var out []AnalysisSummary
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []AnalysisSummary{}
	}
	return out, nil
}

// Analysis fetches a single analysis record by id.
func (c *Client) Analysis(ctx context.Context, id string) (AnalysisDetail, error) {
	if id == "" {
		return AnalysisDetail{}, fmt.Errorf("analysis id is required")
	}

	resp, err := c.get(ctx, "/analysis/"+url.PathEscape(id))
	if err != nil {
		return AnalysisDetail{}, err
	}

	var out AnalysisDetail
	if err := decodeJSON(resp, &out); err != nil {
		return AnalysisDetail{}, err
	}
	return out, nil
}
