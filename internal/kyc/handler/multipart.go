package handler

import (
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"kycflow/internal/kyc/models"
	dErrors "kycflow/pkg/domain-errors"
)

const (
	// MaxUploadBytes caps a whole multipart request.
	MaxUploadBytes = 20 << 20
	// MaxImageBytes caps a single image part.
	MaxImageBytes = 8 << 20
	// multipart parts beyond this stay on disk until read.
	maxMemory = 4 << 20
)

var allowedImageTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return dErrors.New(dErrors.CodeValidation, "upload is too large")
		}
		return dErrors.New(dErrors.CodeBadRequest, "expected a multipart/form-data body")
	}
	return nil
}

// readImage returns the named file part, or nil when the part is absent.
func readImage(r *http.Request, field string) (*models.Image, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+field+" image")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "failed to read "+field+" image")
	}
	if len(data) > MaxImageBytes {
		return nil, dErrors.New(dErrors.CodeValidation, field+" image is too large")
	}
	if len(data) == 0 {
		return nil, nil
	}

	contentType := imageContentType(header.Header.Get("Content-Type"), data)
	if !allowedImageTypes[contentType] {
		return nil, dErrors.New(dErrors.CodeValidation, field+" image must be JPEG, PNG, WebP or PDF")
	}
	return &models.Image{ContentType: contentType, Data: data}, nil
}

// imageContentType trusts a specific declared type and sniffs otherwise.
func imageContentType(declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
		return strings.ToLower(mediaType)
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}

func parseDocumentUpload(w http.ResponseWriter, r *http.Request) (models.DocumentUpload, error) {
	if err := parseMultipart(w, r); err != nil {
		return models.DocumentUpload{}, err
	}
	upload := models.DocumentUpload{
		Type:             models.DocumentType(strings.TrimSpace(r.FormValue("type"))),
		Number:           strings.TrimSpace(r.FormValue("number")),
		IssueDate:        strings.TrimSpace(r.FormValue("issue_date")),
		ExpiryDate:       strings.TrimSpace(r.FormValue("expiry_date")),
		IssuingAuthority: strings.TrimSpace(r.FormValue("issuing_authority")),
	}
	var err error
	if upload.Front, err = readImage(r, "front"); err != nil {
		return models.DocumentUpload{}, err
	}
	if upload.Back, err = readImage(r, "back"); err != nil {
		return models.DocumentUpload{}, err
	}
	return upload, nil
}

func parseFacialCapture(w http.ResponseWriter, r *http.Request) (models.FacialCapture, error) {
	if err := parseMultipart(w, r); err != nil {
		return models.FacialCapture{}, err
	}
	confidence, err := parseScore(r.FormValue("confidence"), "confidence")
	if err != nil {
		return models.FacialCapture{}, err
	}
	matchScore, err := parseScore(r.FormValue("match_score"), "match_score")
	if err != nil {
		return models.FacialCapture{}, err
	}
	liveness := false
	if raw := strings.TrimSpace(r.FormValue("liveness_check")); raw != "" {
		if liveness, err = strconv.ParseBool(raw); err != nil {
			return models.FacialCapture{}, dErrors.New(dErrors.CodeValidation, "liveness_check must be a boolean")
		}
	}
	image, err := readImage(r, "image")
	if err != nil {
		return models.FacialCapture{}, err
	}
	return models.FacialCapture{
		Confidence:    confidence,
		MatchScore:    matchScore,
		LivenessCheck: liveness,
		Image:         image,
	}, nil
}

func parseScore(raw, field string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return 0, dErrors.New(dErrors.CodeValidation, field+" must be a number")
	}
	return v, nil
}
