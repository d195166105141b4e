package report

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			savedPath string
			err       error
		)

		BeforeEach(func() {
			filename = "scan-1_bill.jpg"
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(filename, []byte("bill image"))
		})

		It("should write the file under the base directory", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(savedPath).To(Equal("scan-1_bill.jpg"))
			Expect(filepath.Join(tmpDir, "scan-1_bill.jpg")).To(BeAnExistingFile())
		})

		When("the name contains directories", func() {
			BeforeEach(func() {
				filename = "../outside.jpg"
			})

			It("should keep the file inside the base directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedPath).To(Equal("outside.jpg"))
				Expect(filepath.Join(tmpDir, "outside.jpg")).To(BeAnExistingFile())
				Expect(filepath.Join(filepath.Dir(tmpDir), "outside.jpg")).NotTo(BeAnExistingFile())
			})
		})

		When("the name is empty", func() {
			BeforeEach(func() {
				filename = ""
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid file name")))
			})
		})
	})

	Describe("Get", func() {
		It("should read a saved file", func() {
			_, err := storage.Save("bill.png", []byte("png"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("bill.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png")))
		})

		It("returns an error for missing files", func() {
			_, err := storage.Get("missing.png")
			Expect(err).To(MatchError(ContainSubstring("reading file")))
			Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("should remove the file from disk", func() {
			_, err := storage.Save("bill.png", []byte("png"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("bill.png")).To(Succeed())
			Expect(filepath.Join(tmpDir, "bill.png")).NotTo(BeAnExistingFile())
		})

		It("returns an error for missing files", func() {
			Expect(storage.Delete("missing.png")).To(MatchError(ContainSubstring("deleting file")))
		})
	})

	Describe("NewLocalStorage", func() {
		It("should create a missing directory", func() {
			path := filepath.Join(GinkgoT().TempDir(), "bills", "images")
			_, err := NewLocalStorage(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeADirectory())
		})

		It("should fail when the path is a file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "file")
			Expect(os.WriteFile(path, []byte("x"), 0644)).To(Succeed())
			_, err := NewLocalStorage(path)
			Expect(err).To(MatchError(ContainSubstring("creating storage directory")))
		})
	})
})
