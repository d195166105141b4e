package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/bill-check/internal/analysis"
)

const extractedBillReply = `{"provider": {"name": "Austin Family Clinic", "city": "Austin", "state": "TX", "zip": "78701"}, "patient": {"name": "Jane Doe"}, "dateOfService": "03/05/2024", "procedures": [{"description": "Office visit", "cptCode": "99213", "chargeAmount": 180, "quantity": 1, "units": 1}], "totalCharges": 180}`

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func testPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

func testJPEG() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var _ = Describe("prepareImage", func() {
	It("passes PNG through unchanged", func() {
		data := testPNG()
		out, err := prepareImage(data, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(data))
	})

	It("converts JPEG to PNG", func() {
		out, err := prepareImage(testJPEG(), "image/jpeg; charset=binary")
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.HasPrefix(out, pngSignature)).To(BeTrue())
	})

	It("assumes a photo when no content type is given", func() {
		out, err := prepareImage(testJPEG(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.HasPrefix(out, pngSignature)).To(BeTrue())
	})

	It("rejects an empty upload", func() {
		_, err := prepareImage(nil, "image/png")
		Expect(errors.Is(err, ErrExtractionFailed)).To(BeTrue())
	})

	It("rejects unknown formats", func() {
		_, err := prepareImage([]byte("definitely not an image"), "image/jpeg")
		Expect(errors.Is(err, ErrUnsupportedImage)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
	})

	It("rejects a PDF that cannot be read", func() {
		_, err := prepareImage([]byte("definitely not a PDF"), "application/pdf")
		Expect(errors.Is(err, ErrUnsupportedImage)).To(BeTrue())
		Expect(errors.Is(err, ErrExtractionFailed)).To(BeFalse())
	})

	It("rejects a corrupt HEIC photo", func() {
		header := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
		_, err := prepareImage(header, "image/heic")
		Expect(errors.Is(err, ErrUnsupportedImage)).To(BeTrue())
	})

	It("recognises HEIC by its brand", func() {
		header := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
		Expect(isHEIC(header, "application/octet-stream")).To(BeTrue())
		Expect(isHEIC(testPNG(), "image/png")).To(BeFalse())
		Expect(isHEIC(nil, "image/heif")).To(BeTrue())
	})
})

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		extractor *Ollama
		bill      *analysis.BillRecord
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		extractor, err = NewOllama(server.URL(), "llava:1.6")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		bill, err = extractor.ExtractBill(context.Background(), testPNG(), "image/png")
	})

	When("the model answers with a bill", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					var req ollamaChatRequest
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal("llava:1.6"))
					Expect(req.Format).To(Equal("json"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[0].Role).To(Equal("system"))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: extractedBillReply},
					Done:    true,
				}),
			))
		})

		It("should return the parsed bill", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(bill.Provider.Name).To(Equal("Austin Family Clinic"))
			Expect(bill.DateOfService).To(Equal("2024-03-05"))
			Expect(bill.Procedures).To(HaveLen(1))
			Expect(bill.Procedures[0].CPTCode).To(Equal("99213"))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("should return an extraction error", func() {
			Expect(errors.Is(err, ErrExtractionFailed)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("model not loaded"))
		})
	})

	When("the model answers with prose", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "Sorry, the image is too blurry."},
				Done:    true,
			}))
		})

		It("should return a malformed response error", func() {
			Expect(errors.Is(err, ErrMalformedResponse)).To(BeTrue())
		})
	})
})

var _ = Describe("NewClaude", func() {
	It("requires an api key", func() {
		_, err := NewClaude("", "")
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})
})

var _ = Describe("Claude", func() {
	var (
		server    *ghttp.Server
		extractor *Claude
		bill      *analysis.BillRecord
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		extractor, err = NewClaude("test-key", "claude-test",
			anthropicopt.WithBaseURL(server.URL()+"/"),
			anthropicopt.WithMaxRetries(0),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		bill, err = extractor.ExtractBill(context.Background(), testPNG(), "image/png")
	})

	When("the model answers with a bill", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/messages"),
				ghttp.VerifyHeaderKV("X-Api-Key", "test-key"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(string(body)).To(ContainSubstring(`"media_type":"image/png"`))
					Expect(string(body)).To(ContainSubstring(`"model":"claude-test"`))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"id":          "msg_01",
					"type":        "message",
					"role":        "assistant",
					"model":       "claude-test",
					"stop_reason": "end_turn",
					"content": []map[string]any{
						{"type": "text", "text": "```json\n" + extractedBillReply + "\n```"},
					},
					"usage": map[string]any{"input_tokens": 1200, "output_tokens": 300},
				}),
			))
		})

		It("should return the parsed bill", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(bill.Provider.State).To(Equal("TX"))
			Expect(bill.TotalCharges).To(Equal(180.0))
		})
	})

	When("the API rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusBadRequest, map[string]any{
				"type":  "error",
				"error": map[string]any{"type": "invalid_request_error", "message": "image too large"},
			}))
		})

		It("should return an extraction error", func() {
			Expect(errors.Is(err, ErrExtractionFailed)).To(BeTrue())
		})
	})
})
