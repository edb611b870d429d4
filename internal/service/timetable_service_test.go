package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classforge/timetable-api/internal/dto"
	"github.com/classforge/timetable-api/internal/engine"
	"github.com/classforge/timetable-api/internal/models"
	appErrors "github.com/classforge/timetable-api/pkg/errors"
)

func TestTimetableServiceGenerateSuccess(t *testing.T) {
	txProvider, mock := newTimetableTxMock(t)
	store := newTimetableStoreStub()
	service := newTimetableServiceFixture(t, timetableFixtureConfig{tx: txProvider, store: store})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := service.Generate(context.Background(), dto.GenerateTimetableRequest{BatchID: "batch-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TimetableID)
	assert.Equal(t, models.TimetableStatusDraft, resp.Status)
	require.Len(t, resp.Options, 1)
	assert.Equal(t, 3, len(resp.Options[0].WeekSlots))
	assert.Empty(t, resp.Warnings)
	assert.NoError(t, mock.ExpectationsWereMet())

	saved, err := store.FindByID(context.Background(), resp.TimetableID)
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusDraft, saved.Status)
	assert.Len(t, saved.WeekSlots, 3)
}

func TestTimetableServiceGenerateValidatesPayload(t *testing.T) {
	service := newTimetableServiceFixture(t, timetableFixtureConfig{})

	_, err := service.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGenerateBatchNotFound(t *testing.T) {
	service := newTimetableServiceFixture(t, timetableFixtureConfig{})

	_, err := service.Generate(context.Background(), dto.GenerateTimetableRequest{BatchID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceCommitPromotesDraft(t *testing.T) {
	txProvider, mock := newTimetableTxMock(t)
	store := newTimetableStoreStub()
	store.add(models.Timetable{
		ID:      "tt-1",
		BatchID: "batch-1",
		Status:  models.TimetableStatusDraft,
		WeekSlots: []models.Placement{
			{Day: "Monday", StartTime: "09:00", EndTime: "10:00", SubjectID: "sub-th", FacultyID: "fac-1", ClassroomID: "room-1", Type: models.SubjectTypeTheory},
		},
	})
	service := newTimetableServiceFixture(t, timetableFixtureConfig{tx: txProvider, store: store})

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := service.Commit(context.Background(), "tt-1", dto.CommitTimetableRequest{Status: models.TimetableStatusActive})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	updated, err := store.FindByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusActive, updated.Status)
}

func TestTimetableServiceCommitRejectsNonDraft(t *testing.T) {
	store := newTimetableStoreStub()
	store.add(models.Timetable{ID: "tt-1", BatchID: "batch-1", Status: models.TimetableStatusActive})
	service := newTimetableServiceFixture(t, timetableFixtureConfig{store: store})

	err := service.Commit(context.Background(), "tt-1", dto.CommitTimetableRequest{Status: models.TimetableStatusPublished})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceCommitRejectsStaleDraft(t *testing.T) {
	store := newTimetableStoreStub()
	store.add(models.Timetable{
		ID:      "tt-draft",
		BatchID: "batch-1",
		Status:  models.TimetableStatusDraft,
		WeekSlots: []models.Placement{
			{Day: "Monday", StartTime: "09:00", EndTime: "10:00", SubjectID: "sub-th", FacultyID: "fac-1", ClassroomID: "room-1", Type: models.SubjectTypeTheory},
		},
	})
	// Committed after the draft was generated, holding the same faculty slot.
	store.add(models.Timetable{
		ID:      "tt-active",
		BatchID: "batch-2",
		Status:  models.TimetableStatusActive,
		WeekSlots: []models.Placement{
			{Day: "Monday", StartTime: "09:00", EndTime: "10:00", SubjectID: "sub-other", FacultyID: "fac-1", ClassroomID: "room-2", Type: models.SubjectTypeTheory},
		},
	})
	service := newTimetableServiceFixture(t, timetableFixtureConfig{store: store})

	err := service.Commit(context.Background(), "tt-draft", dto.CommitTimetableRequest{Status: models.TimetableStatusActive})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	unchanged, findErr := store.FindByID(context.Background(), "tt-draft")
	require.NoError(t, findErr)
	assert.Equal(t, models.TimetableStatusDraft, unchanged.Status)
}

func TestTimetableServiceCommitValidatesStatus(t *testing.T) {
	service := newTimetableServiceFixture(t, timetableFixtureConfig{})

	err := service.Commit(context.Background(), "tt-1", dto.CommitTimetableRequest{Status: "archived"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGetUsesCache(t *testing.T) {
	store := newTimetableStoreStub()
	store.add(models.Timetable{ID: "tt-1", BatchID: "batch-1", Status: models.TimetableStatusDraft})
	cache := &cacheStub{values: map[string]string{}}
	service := newTimetableServiceFixture(t, timetableFixtureConfig{store: store, cache: cache})

	first, err := service.Get(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, "tt-1", first.ID)
	assert.Contains(t, cache.values, "timetable:tt-1")

	// Store lookups stop once the cache is warm.
	store.remove("tt-1")
	second, err := service.Get(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, "tt-1", second.ID)
}

func TestTimetableServiceGetNotFound(t *testing.T) {
	service := newTimetableServiceFixture(t, timetableFixtureConfig{})

	_, err := service.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceListRequiresBatch(t *testing.T) {
	service := newTimetableServiceFixture(t, timetableFixtureConfig{})

	_, err := service.List(context.Background(), dto.TimetableQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceDeleteDraftOnly(t *testing.T) {
	store := newTimetableStoreStub()
	store.add(models.Timetable{ID: "tt-draft", BatchID: "batch-1", Status: models.TimetableStatusDraft})
	store.add(models.Timetable{ID: "tt-live", BatchID: "batch-1", Status: models.TimetableStatusPublished})
	service := newTimetableServiceFixture(t, timetableFixtureConfig{store: store})

	require.NoError(t, service.Delete(context.Background(), "tt-draft"))

	err := service.Delete(context.Background(), "tt-live")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceExportCSV(t *testing.T) {
	store := newTimetableStoreStub()
	store.add(models.Timetable{
		ID:      "tt-1",
		BatchID: "batch-1",
		Status:  models.TimetableStatusPublished,
		WeekSlots: []models.Placement{
			{Day: "Monday", StartTime: "09:00", EndTime: "10:00", SubjectID: "sub-th", FacultyID: "fac-1", ClassroomID: "room-1", Type: models.SubjectTypeTheory},
		},
	})
	service := newTimetableServiceFixture(t, timetableFixtureConfig{store: store})

	payload, contentType, err := service.Export(context.Background(), "tt-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(payload), "Day,Start,End,Subject,Faculty,Classroom,Type")
	assert.Contains(t, string(payload), "Monday,09:00,10:00,TH101,Dr. Rao,LH-1,theory")
}

func TestTimetableServiceExportPDF(t *testing.T) {
	store := newTimetableStoreStub()
	store.add(models.Timetable{ID: "tt-1", BatchID: "batch-1", Status: models.TimetableStatusPublished})
	service := newTimetableServiceFixture(t, timetableFixtureConfig{store: store})

	payload, contentType, err := service.Export(context.Background(), "tt-1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, payload)
}

func TestTimetableServiceExportRejectsUnknownFormat(t *testing.T) {
	store := newTimetableStoreStub()
	store.add(models.Timetable{ID: "tt-1", BatchID: "batch-1", Status: models.TimetableStatusDraft})
	service := newTimetableServiceFixture(t, timetableFixtureConfig{store: store})

	_, _, err := service.Export(context.Background(), "tt-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type timetableFixtureConfig struct {
	tx    txProvider
	store *timetableStoreStub
	cache Cache
}

func newTimetableServiceFixture(t *testing.T, cfg timetableFixtureConfig) *TimetableService {
	t.Helper()
	batches := batchReaderStub{batches: map[string]*models.Batch{
		"batch-1": fixtureBatch(),
	}}
	classrooms := classroomListerStub{rooms: []models.Classroom{
		{ID: "room-1", Name: "LH-1", Capacity: 60, Type: models.RoomTypeLecture, Active: true},
		{ID: "room-lab", Name: "Lab-1", Capacity: 40, Type: models.RoomTypeLab, Active: true},
	}}
	store := cfg.store
	if store == nil {
		store = newTimetableStoreStub()
	}
	tx := cfg.tx
	if tx == nil {
		tx = failingTxProvider{}
	}

	subjects := subjectResolverStub{subjects: map[string]models.Subject{
		"sub-th": {ID: "sub-th", Code: "TH101", Name: "Theory", Type: models.SubjectTypeTheory, HoursPerWeek: 3},
	}}
	faculties := facultyListerStub{faculties: []models.Faculty{
		{ID: "fac-1", FullName: "Dr. Rao", Active: true},
	}}

	return NewTimetableService(
		batches,
		classrooms,
		subjects,
		faculties,
		store,
		tx,
		engine.DefaultGrid(),
		TimetableServiceConfig{AllowCapacityFallback: true},
		validator.New(),
		zap.NewNop(),
		cfg.cache,
		nil,
	)
}

func fixtureBatch() *models.Batch {
	subject := &models.Subject{ID: "sub-th", Code: "TH101", Name: "Theory", Type: models.SubjectTypeTheory, HoursPerWeek: 3}
	faculty := &models.Faculty{ID: "fac-1", FullName: "Dr. Rao", Active: true}
	return &models.Batch{
		ID:       "batch-1",
		Code:     "CS-2026",
		Strength: 55,
		Bindings: []models.BatchSubject{
			{ID: "bind-1", BatchID: "batch-1", SubjectID: subject.ID, FacultyID: faculty.ID, Subject: subject, Faculty: faculty},
		},
	}
}

type batchReaderStub struct {
	batches map[string]*models.Batch
}

func (s batchReaderStub) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if batch, ok := s.batches[id]; ok {
		return batch, nil
	}
	return nil, sql.ErrNoRows
}

type classroomListerStub struct {
	rooms []models.Classroom
}

func (s classroomListerStub) ListActive(ctx context.Context) ([]models.Classroom, error) {
	return s.rooms, nil
}

type subjectResolverStub struct {
	subjects map[string]models.Subject
}

func (s subjectResolverStub) ListByIDs(ctx context.Context, ids []string) (map[string]models.Subject, error) {
	out := make(map[string]models.Subject, len(ids))
	for _, id := range ids {
		if subject, ok := s.subjects[id]; ok {
			out[id] = subject
		}
	}
	return out, nil
}

type facultyListerStub struct {
	faculties []models.Faculty
}

func (s facultyListerStub) ListActive(ctx context.Context) ([]models.Faculty, error) {
	return s.faculties, nil
}

type timetableStoreStub struct {
	items map[string]models.Timetable
	seq   int
}

func newTimetableStoreStub() *timetableStoreStub {
	return &timetableStoreStub{items: map[string]models.Timetable{}}
}

func (s *timetableStoreStub) add(timetable models.Timetable) {
	s.items[timetable.ID] = timetable
}

func (s *timetableStoreStub) remove(id string) {
	delete(s.items, id)
}

func (s *timetableStoreStub) CreateWithTx(ctx context.Context, tx *sqlx.Tx, timetable *models.Timetable) error {
	s.seq++
	if timetable.ID == "" {
		timetable.ID = fmt.Sprintf("tt-%d", s.seq)
	}
	s.items[timetable.ID] = *timetable
	return nil
}

func (s *timetableStoreStub) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	if item, ok := s.items[id]; ok {
		return &item, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timetableStoreStub) ListByBatch(ctx context.Context, batchID string) ([]models.Timetable, error) {
	var out []models.Timetable
	for _, item := range s.items {
		if item.BatchID == batchID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *timetableStoreStub) ListCommitted(ctx context.Context) ([]models.Timetable, error) {
	var out []models.Timetable
	for _, item := range s.items {
		if item.Status.Committed() {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *timetableStoreStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error {
	item, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Status = status
	s.items[id] = item
	return nil
}

func (s *timetableStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

type failingTxProvider struct{}

func (failingTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type cacheStub struct {
	values map[string]string
}

func (c *cacheStub) Get(ctx context.Context, key string) (string, bool) {
	value, ok := c.values[key]
	return value, ok
}

func (c *cacheStub) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.values[key] = value
}

func (c *cacheStub) Del(ctx context.Context, keys ...string) {
	for _, key := range keys {
		delete(c.values, key)
	}
}

func newTimetableTxMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &timetableTxMock{db: sqlxdb}, mock
}

type timetableTxMock struct {
	db *sqlx.DB
}

func (m *timetableTxMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, opts)
}
