package api

import (
	"io"
	"mime/multipart"

	"statement-intel-service/internal/ingest"
	"statement-intel-service/internal/verify"
	"statement-intel-service/pkg/errors"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleIngestStatements accepts a multipart upload of statement PDFs under
// the "statements" field and runs the full parse pipeline.
func (s *Server) handleIngestStatements(c *fiber.Ctx) error {
	opportunityID := c.Params("opportunityID")

	form, err := c.MultipartForm()
	if err != nil {
		return errors.ValidationError(errors.CodeNoDocuments, "statements", nil).
			WithSuggestion("send a multipart form with one or more files under 'statements'")
	}

	files := form.File["statements"]
	docs := make([]ingest.Document, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			return errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidValue,
				"could not read uploaded file "+fh.Filename)
		}
		docs = append(docs, ingest.Document{Filename: fh.Filename, Data: data})
	}

	analysis, err := s.service.IngestStatements(c.UserContext(), opportunityID, docs)
	if err != nil {
		return err
	}
	return c.JSON(analysis)
}

func (s *Server) handleDetectPatterns(c *fiber.Ctx) error {
	patterns, err := s.service.DetectPatterns(c.UserContext(), c.Params("opportunityID"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"patterns": patterns})
}

func (s *Server) handleGetAnalysis(c *fiber.Ctx) error {
	analysis, err := s.service.GetAnalysis(c.UserContext(), c.Params("opportunityID"))
	if err != nil {
		return err
	}
	return c.JSON(analysis)
}

func (s *Server) handleListTransactions(c *fiber.Ctx) error {
	txs, err := s.service.ListTransactions(c.UserContext(), c.Params("opportunityID"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

func (s *Server) handleListPatterns(c *fiber.Ctx) error {
	patterns, err := s.service.ListPatterns(c.UserContext(), c.Params("opportunityID"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"patterns": patterns})
}

func (s *Server) handleUpdatePattern(c *fiber.Ctx) error {
	var update verify.Update
	if err := c.BodyParser(&update); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidValue,
			"malformed pattern update body")
	}

	pattern, err := s.service.UpdatePattern(c.UserContext(), c.Params("patternID"), update)
	if err != nil {
		return err
	}
	return c.JSON(pattern)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
