package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/procuradev/procura-api/internal/models"
	"github.com/procuradev/procura-api/internal/repository"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
	"github.com/procuradev/procura-api/pkg/export"
	"github.com/procuradev/procura-api/pkg/jobs"
	"github.com/procuradev/procura-api/pkg/storage"
)

type exportRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
}

// exportPageSize bounds how many requisitions one worker fetch pulls.
const exportPageSize = 100

// CreateExportRequest describes payload for requesting a requisition export.
type CreateExportRequest struct {
	Format     models.ExportFormat      `json:"format" validate:"required,oneof=csv pdf"`
	Status     models.RequisitionStatus `json:"status,omitempty"`
	Department string                   `json:"department,omitempty"`
}

// ExportService renders requisition exports in the background. Jobs are
// persisted so status survives the request that created them; results are
// written to the blob store and handed out as signed links.
type ExportService struct {
	exports      exportRepository
	requisitions requisitionRepository
	audit        auditLogger
	blobs        *storage.LocalBlobStore
	signer       *storage.SignedURLSigner
	csv          *export.CSVExporter
	pdf          *export.PDFExporter
	validator    *validator.Validate
	logger       *zap.Logger

	queue *jobs.Queue
}

// NewExportService creates a new export service instance. Start must be
// called before exports can be requested.
func NewExportService(exports exportRepository, requisitions requisitionRepository, audit auditLogger, blobs *storage.LocalBlobStore, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger, workers, retries int) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		exports:      exports,
		requisitions: requisitions,
		audit:        audit,
		blobs:        blobs,
		signer:       signer,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		validator:    validate,
		logger:       logger,
	}
	s.queue = jobs.NewQueue("requisition-exports", s.process, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
	return s
}

// Start launches the background workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Request persists a QUEUED job row and enqueues it for rendering.
func (s *ExportService) Request(ctx context.Context, req CreateExportRequest, actor *models.JWTClaims) (*models.ExportJob, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}

	job := &models.ExportJob{
		Params: models.ExportJobParams{
			Format:     req.Format,
			Status:     req.Status,
			Department: req.Department,
		},
		Status:    models.ExportStatusQueued,
		CreatedBy: actor.UserID,
	}
	if err := s.exports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "requisition-export", Payload: job.ID}); err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	s.emitAudit(ctx, actor, job)

	return job, nil
}

// Get returns the current state of an export job.
func (s *ExportService) Get(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.exports.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

// process is the queue handler: it loads the job row, pages through the
// matching requisitions, renders the dataset and stores the result.
func (s *ExportService) process(ctx context.Context, qj jobs.Job) error {
	id, ok := qj.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected export payload %T", qj.Payload)
	}

	job, err := s.exports.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", id, err)
	}
	if job.Status == models.ExportStatusFinished {
		return nil
	}

	processing := models.ExportStatusProcessing
	if err := s.exports.Update(ctx, id, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark export job %s processing: %w", id, err)
	}

	dataset, err := s.collect(ctx, job.Params)
	if err != nil {
		s.failJob(ctx, id, err)
		return err
	}

	var rendered []byte
	switch job.Params.Format {
	case models.ExportFormatPDF:
		rendered, err = s.pdf.Render(dataset, "Purchase Requisitions")
	default:
		rendered, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.failJob(ctx, id, err)
		return err
	}

	// Slash-free so the key fits the single-segment /files/:key route.
	key := fmt.Sprintf("export-%s.%s", id, job.Params.Format)
	if _, err := s.blobs.Save(key, rendered); err != nil {
		s.failJob(ctx, id, err)
		return err
	}

	token, _, err := s.signer.Generate(key)
	if err != nil {
		s.failJob(ctx, id, err)
		return err
	}
	resultURL := fmt.Sprintf("/files/%s?token=%s", url.PathEscape(key), url.QueryEscape(token))

	finished := models.ExportStatusFinished
	now := time.Now().UTC()
	if err := s.exports.Update(ctx, id, repository.UpdateExportJobParams{
		Status:     &finished,
		ResultURL:  &resultURL,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finish export job %s: %w", id, err)
	}

	s.logger.Info("export job finished",
		zap.String("job_id", id),
		zap.String("format", string(job.Params.Format)),
		zap.Int("rows", len(dataset.Rows)))

	return nil
}

// collect pages through matching requisitions and flattens them into a
// tabular dataset.
func (s *ExportService) collect(ctx context.Context, params models.ExportJobParams) (export.Dataset, error) {
	dataset := export.Dataset{
		Headers: []string{"PR Number", "Title", "Status", "Department", "Company", "Urgency", "Total Amount", "Currency", "Created At"},
	}

	offset := 0
	for {
		page, total, err := s.requisitions.List(ctx, models.RequisitionFilter{
			Status:     params.Status,
			Department: params.Department,
			Limit:      exportPageSize,
			Offset:     offset,
		})
		if err != nil {
			return export.Dataset{}, fmt.Errorf("list requisitions for export: %w", err)
		}
		for _, r := range page {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"PR Number":    r.PRNumber,
				"Title":        r.Title,
				"Status":       string(r.Status),
				"Department":   r.Department,
				"Company":      r.Company,
				"Urgency":      string(r.Urgency),
				"Total Amount": fmt.Sprintf("%.2f", r.TotalAmount),
				"Currency":     r.Currency,
				"Created At":   r.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		offset += len(page)
		if len(page) == 0 || offset >= total {
			break
		}
	}

	return dataset, nil
}

func (s *ExportService) failJob(ctx context.Context, id string, cause error) {
	failed := models.ExportStatusFailed
	msg := cause.Error()
	now := time.Now().UTC()
	if err := s.exports.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &failed,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Error("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *ExportService) emitAudit(ctx context.Context, actor *models.JWTClaims, job *models.ExportJob) {
	if s.audit == nil {
		return
	}
	resourceID := job.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionExportRequest,
		Resource:   "export_job",
		ResourceID: &resourceID,
		NewValues:  []byte(fmt.Sprintf(`{"format":%q}`, job.Params.Format)),
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", models.AuditActionExportRequest), zap.Error(err))
	}
}
