package pdf

import (
	"errors"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	pdferrors "github.com/a3tai/paperless-pdf-meta/internal/pdf/errors"
)

// Extractor reads embedded metadata from PDF files
type Extractor struct {
	maxFileSize       int64
	validateStructure bool
}

// NewExtractor creates a new extractor with the specified constraints.
// When validateStructure is set, every file is parsed with pdfcpu before its
// Info dictionary is read.
func NewExtractor(maxFileSize int64, validateStructure bool) *Extractor {
	return &Extractor{
		maxFileSize:       maxFileSize,
		validateStructure: validateStructure,
	}
}

// Extract reads the Info dictionary of the PDF at path and normalizes it.
// A file that cannot be parsed is an error; a PDF without metadata yields an
// empty result.
func (e *Extractor) Extract(path string) (*NormalizedMetadata, error) {
	raw, err := e.ReadRawMetadata(path)
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}

// ReadRawMetadata returns every string-valued entry of the PDF Info dictionary
func (e *Extractor) ReadRawMetadata(path string) (RawMetadata, error) {
	if err := e.validatePath(path); err != nil {
		return nil, err
	}

	if e.validateStructure {
		if err := checkStructure(path); err != nil {
			return nil, err
		}
	}

	return readInfoDictionary(path)
}

// validatePath performs basic validation on a PDF path
func (e *Extractor) validatePath(path string) error {
	if path == "" {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeInvalidPath, "path cannot be empty")
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeResourceNotFound, "file does not exist").WithContext(path).WithFile(path)
	}
	if err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeInvalidPath, "cannot access file", err).WithFile(path)
	}

	if fileInfo.IsDir() {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeInvalidPath, "path is a directory, not a file").WithContext(path).WithFile(path)
	}

	if fileInfo.Size() == 0 {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeInvalidStructure, "file is empty").WithContext(path).WithFile(path)
	}

	if fileInfo.Size() > e.maxFileSize {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeFileTooLarge,
			fmt.Sprintf("file too large: %d bytes (max: %d bytes)", fileInfo.Size(), e.maxFileSize)).WithFile(path)
	}

	return nil
}

// checkStructure parses the cross reference table and page tree with pdfcpu
func checkStructure(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeInvalidPath, "failed to open file", err).WithFile(path)
	}
	defer file.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(file, conf)
	if err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeInvalidStructure, "failed to read PDF context", err).WithFile(path)
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeInvalidStructure, "failed to ensure page count", err).WithFile(path)
	}

	return nil
}

// readInfoDictionary opens the PDF with ledongthuc/pdf and copies the trailer's Info entries
func readInfoDictionary(path string) (raw RawMetadata, err error) {
	// the parser panics on some malformed objects
	defer func() {
		if r := recover(); r != nil {
			raw = nil
			err = pdferrors.NewPDFError(pdferrors.ErrorTypeInvalidMetadata, "failed to read info dictionary").
				WithContext(fmt.Sprint(r)).WithFile(path)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeSecurityRestriction, "encrypted PDF", err).WithFile(path)
		}
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeInvalidStructure, "failed to open PDF", err).WithFile(path)
	}
	defer f.Close()

	raw = RawMetadata{}

	trailer := reader.Trailer()
	if trailer.IsNull() {
		return raw, nil
	}

	info := trailer.Key("Info")
	if info.IsNull() || info.Kind() != pdf.Dict {
		return raw, nil
	}

	for _, key := range info.Keys() {
		value := info.Key(key)
		if value.Kind() != pdf.String {
			continue
		}
		raw["/"+key] = value.Text()
	}

	return raw, nil
}
