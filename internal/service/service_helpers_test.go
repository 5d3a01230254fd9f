package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/sciencefair-api/internal/dto"
	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/repository"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.FormSubmission{}, &models.FormParticipant{}, &models.Project{}, &models.ActivityLog{}))
	return db
}

// setupFileServiceDB opens a file-backed database that several connections can write
// concurrently. Write transactions take the database lock up front and wait for each other.
func setupFileServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "forms.db") + "?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.FormSubmission{}, &models.FormParticipant{}, &models.Project{}, &models.ActivityLog{}))
	return db
}

func newFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

// memoryStorage is a blob store that remembers every key it was asked to write.
type memoryStorage struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *memoryStorage) Upload(ctx context.Context, key string, reader io.Reader) (string, error) {
	if _, err := io.ReadAll(reader); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.keys = append(m.keys, key)
	return "https://blobs.example.com/" + key, nil
}

func (m *memoryStorage) uploaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// conflictingFormRepository loses the first conflicts writes to a phantom concurrent writer.
type conflictingFormRepository struct {
	repository.FormRepository
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (r *conflictingFormRepository) Mutate(ctx context.Context, id string, mutate repository.FormMutation) (models.FormSubmission, error) {
	r.mu.Lock()
	r.attempts++
	lose := r.conflicts > 0
	if lose {
		r.conflicts--
	}
	r.mu.Unlock()

	if lose {
		return models.FormSubmission{}, repository.ErrRevisionConflict
	}
	return r.FormRepository.Mutate(ctx, id, mutate)
}

// failingCreateRepository rejects every new document.
type failingCreateRepository struct {
	repository.FormRepository
}

func (failingCreateRepository) Create(ctx context.Context, form *models.FormSubmission) error {
	return errors.New("database unavailable")
}

// changeRecorder collects listener notifications.
type changeRecorder struct {
	mu    sync.Mutex
	forms []models.FormSubmission
}

func (r *changeRecorder) FormChanged(ctx context.Context, form models.FormSubmission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms = append(r.forms, form)
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

type workflowOptions struct {
	db          *gorm.DB
	wrapForms   func(repository.FormRepository) repository.FormRepository
	redis       *redis.Client
	enforceGate bool
	retries     int
}

type workflow struct {
	db        *gorm.DB
	forms     repository.FormRepository
	projects  repository.ProjectRepository
	storage   *memoryStorage
	changes   *changeRecorder
	activity  ActivityService
	versions  FormVersionService
	reviewers ReviewerService
	reviews   ReviewService
	queries   FormQueryService
	gate      ProjectGateService
}

func newWorkflow(t *testing.T, opts workflowOptions) *workflow {
	t.Helper()

	db := opts.db
	if db == nil {
		db = setupServiceDB(t)
	}
	forms := repository.NewFormRepository(db)
	if opts.wrapForms != nil {
		forms = opts.wrapForms(forms)
	}
	projects := repository.NewProjectRepository(db)
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := testLogger()

	activity := NewActivityService(repository.NewActivityLogRepository(db), logger)
	gate := NewProjectGateService(forms, projects, opts.redis, validate, activity, ProjectGateConfig{
		SummaryTTL:  time.Minute,
		EnforceGate: opts.enforceGate,
	}, logger)

	storage := &memoryStorage{}
	changes := &changeRecorder{}
	cfg := FormWorkflowConfig{MaxUploadMB: 1, ConflictRetries: opts.retries}
	listeners := []FormChangeListener{changes, gate}

	return &workflow{
		db:        db,
		forms:     forms,
		projects:  projects,
		storage:   storage,
		changes:   changes,
		activity:  activity,
		versions:  NewFormVersionService(forms, storage, validate, activity, cfg, logger, listeners...),
		reviewers: NewReviewerService(forms, validate, activity, cfg, logger, listeners...),
		reviews:   NewReviewService(forms, validate, activity, cfg, logger, listeners...),
		queries:   NewFormQueryService(forms, validate, logger),
		gate:      gate,
	}
}

func studentIdentity(id, projectID string) models.Identity {
	return models.Identity{
		UserID:      id,
		DisplayName: "Student " + id,
		Role:        models.RoleStudent,
		Affiliation: models.StudentAffiliation{ProjectID: projectID},
	}
}

func adminIdentity() models.Identity {
	return models.Identity{UserID: "admin-1", DisplayName: "Fair Admin", Role: models.RoleAdmin}
}

func (w *workflow) submitForm(t *testing.T, projectID, studentID, formType string, required bool) dto.FormSubmissionResponse {
	t.Helper()
	form, err := w.versions.SubmitInitialForm(context.Background(), dto.FormCreateRequest{
		ProjectID:   projectID,
		ProjectName: "Project " + projectID,
		Title:       "Form " + formType,
		FormType:    formType,
		IsRequired:  required,
		StudentID:   studentID,
		StudentName: "Student " + studentID,
	}, newFileHeader(t, "Form "+formType+".pdf", samplePDF), studentIdentity(studentID, projectID))
	require.NoError(t, err)
	return form
}

func (w *workflow) review(t *testing.T, formID, reviewerID, status string) dto.FormSubmissionResponse {
	t.Helper()
	form, err := w.reviews.SubmitReview(context.Background(), formID, dto.ReviewSubmitRequest{
		ReviewerID:   reviewerID,
		ReviewerName: "Reviewer " + reviewerID,
		Status:       status,
		Comments:     "reviewed by " + reviewerID,
	}, models.Identity{UserID: reviewerID, Role: models.RoleTeacher})
	require.NoError(t, err)
	return form
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
