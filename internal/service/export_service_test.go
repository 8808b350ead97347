package service

import (
	"context"
	"database/sql"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/procuradev/procura-api/internal/models"
	"github.com/procuradev/procura-api/internal/repository"
	"github.com/procuradev/procura-api/pkg/jobs"
	"github.com/procuradev/procura-api/pkg/storage"
)

type exportRepoStub struct {
	jobsByID map[string]*models.ExportJob
}

func newExportRepoStub() *exportRepoStub {
	return &exportRepoStub{jobsByID: make(map[string]*models.ExportJob)}
}

func (r *exportRepoStub) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now().UTC()
	copyJob := *job
	r.jobsByID[job.ID] = &copyJob
	return nil
}

func (r *exportRepoStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := r.jobsByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copyJob := *job
	return &copyJob, nil
}

func (r *exportRepoStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := r.jobsByID[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func newExportServiceForTest(t *testing.T, requisitions *requisitionRepoStub) (*ExportService, *exportRepoStub, *storage.LocalBlobStore) {
	t.Helper()
	blobs, err := storage.NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	exports := newExportRepoStub()
	svc := NewExportService(exports, requisitions, &auditStub{}, blobs, signer, nil, nil, 1, 1)
	return svc, exports, blobs
}

func seedRequisitions(t *testing.T, repo *requisitionRepoStub, n int) {
	t.Helper()
	svc := newRequisitionServiceForTest(repo, newApprovalRepoStub(), &auditStub{})
	for i := 0; i < n; i++ {
		_, err := svc.Create(context.Background(), validCreateRequest(), userClaims())
		require.NoError(t, err)
	}
}

func TestExportProcessRendersCSV(t *testing.T) {
	requisitions := newRequisitionRepoStub()
	seedRequisitions(t, requisitions, 3)
	svc, exports, blobs := newExportServiceForTest(t, requisitions)

	job := &models.ExportJob{
		Params:    models.ExportJobParams{Format: models.ExportFormatCSV},
		Status:    models.ExportStatusQueued,
		CreatedBy: 1,
	}
	require.NoError(t, exports.Create(context.Background(), job))

	err := svc.process(context.Background(), jobs.Job{ID: job.ID, Payload: job.ID})
	require.NoError(t, err)

	stored := exports.jobsByID[job.ID]
	require.Equal(t, models.ExportStatusFinished, stored.Status)
	require.NotNil(t, stored.ResultURL)
	require.NotNil(t, stored.FinishedAt)

	file, err := blobs.Open("export-" + job.ID + ".csv")
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	buf := make([]byte, 4096)
	n, _ := file.Read(buf)
	content := string(buf[:n])
	require.True(t, strings.HasPrefix(content, "PR Number,"))
	require.Equal(t, 4, strings.Count(strings.TrimSpace(content), "\n")+1)
}

func TestExportResultURLServesRenderedFile(t *testing.T) {
	requisitions := newRequisitionRepoStub()
	seedRequisitions(t, requisitions, 2)
	svc, exports, blobs := newExportServiceForTest(t, requisitions)

	job := &models.ExportJob{
		Params:    models.ExportJobParams{Format: models.ExportFormatCSV},
		Status:    models.ExportStatusQueued,
		CreatedBy: 1,
	}
	require.NoError(t, exports.Create(context.Background(), job))
	require.NoError(t, svc.process(context.Background(), jobs.Job{ID: job.ID, Payload: job.ID}))

	stored := exports.jobsByID[job.ID]
	require.NotNil(t, stored.ResultURL)

	parsed, err := url.Parse(*stored.ResultURL)
	require.NoError(t, err)
	key := strings.TrimPrefix(parsed.Path, "/files/")
	require.NotContains(t, key, "/")
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	downloads := NewAttachmentService(newAttachmentRepoStub(), blobs,
		storage.NewSignedURLSigner("test-secret", time.Hour), &auditStub{}, nil, nil,
		1024, []string{"text/csv"})
	download, err := downloads.Download(context.Background(), key, token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck

	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "PR Number,"))
	require.Equal(t, "text/csv", download.MimeType)
	require.Equal(t, key, download.FileName)
}

func TestExportProcessRendersPDF(t *testing.T) {
	requisitions := newRequisitionRepoStub()
	seedRequisitions(t, requisitions, 1)
	svc, exports, blobs := newExportServiceForTest(t, requisitions)

	job := &models.ExportJob{
		Params:    models.ExportJobParams{Format: models.ExportFormatPDF},
		Status:    models.ExportStatusQueued,
		CreatedBy: 1,
	}
	require.NoError(t, exports.Create(context.Background(), job))

	require.NoError(t, svc.process(context.Background(), jobs.Job{ID: job.ID, Payload: job.ID}))

	info, err := blobs.Stat("export-" + job.ID + ".pdf")
	require.NoError(t, err)
	require.Greater(t, info.SizeBytes, int64(0))
}

func TestExportRequestQueuesAndFinishes(t *testing.T) {
	requisitions := newRequisitionRepoStub()
	seedRequisitions(t, requisitions, 2)
	svc, _, _ := newExportServiceForTest(t, requisitions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.Request(context.Background(), CreateExportRequest{Format: models.ExportFormatCSV}, userClaims())
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusQueued, job.Status)

	require.Eventually(t, func() bool {
		polled, err := svc.Get(context.Background(), job.ID)
		return err == nil && polled.Status == models.ExportStatusFinished
	}, 5*time.Second, 20*time.Millisecond)
}

func TestExportRequestValidatesFormat(t *testing.T) {
	svc, _, _ := newExportServiceForTest(t, newRequisitionRepoStub())

	_, err := svc.Request(context.Background(), CreateExportRequest{Format: "xlsx"}, userClaims())
	require.Error(t, err)
}
