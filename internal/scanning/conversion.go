package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const pngMimeType = "image/png"

// pdfFirstPage renders the first page of a PDF bill as PNG.
// Itemized statements can run to several pages, but the summary page with the
// line items is almost always first.
func pdfFirstPage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %v", ErrUnsupportedImage, err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%w: PDF has no pages", ErrUnsupportedImage)
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering PDF page: %v", ErrUnsupportedImage, err)
	}
	return encodePNG(img)
}

// photoToPNG re-encodes a photographed bill as PNG
func photoToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)

	// iPhone camera rolls default to HEIC, which image.Decode does not know
	if isHEIC(imageData, mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %v", ErrUnsupportedImage, err)
		}
		return encodePNG(img)
	}

	img, _, err = image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("%w: unsupported image format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %v", ErrUnsupportedImage, err)
		}
		return nil, fmt.Errorf("%w: decoding image: %v", ErrUnsupportedImage, err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC checks the ftyp box brand and the declared MIME type
func isHEIC(data []byte, mimeType string) bool {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		switch string(data[8:12]) {
		case "heic", "heix", "heif", "mif1", "msf1":
			return true
		}
	}
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// normalizeMimeType lowercases the declared content type and drops parameters
func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		return "image/jpeg"
	}
	return mimeType
}

// prepareImage converts any supported upload into PNG bytes for the vision models
func prepareImage(imageData []byte, contentType string) ([]byte, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrExtractionFailed)
	}

	mimeType := normalizeMimeType(contentType)
	switch {
	case mimeType == "application/pdf":
		data, err := pdfFirstPage(imageData)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return data, nil
	case mimeType == pngMimeType && !isHEIC(imageData, mimeType):
		return imageData, nil
	default:
		data, err := photoToPNG(imageData, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		return data, nil
	}
}
