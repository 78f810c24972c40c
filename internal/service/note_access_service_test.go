package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/internal/reconcile"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
	"github.com/arnoma/tutor-admin-api/pkg/storage"
)

func newNoteServiceForTest(t *testing.T, f *ledgerFixture) (*NoteAccessService, *MetricsService) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save("n1.pdf", []byte("free handout"))
	require.NoError(t, err)

	notes := &noteRepoStub{notes: []models.Note{
		{ID: "n1", Title: "Welcome", GroupName: strPtr("A"), FilePath: strPtr("n1.pdf"), RequiresPayment: false, CreatedAt: day("2025-11-20")},
		{ID: "n2", Title: "Lesson 1", GroupName: strPtr("A"), FilePath: strPtr("n2.pdf"), ClassDate: dayPtr("2025-11-24"), RequiresPayment: true, CreatedAt: day("2025-11-24")},
		{ID: "n3", Title: "Lesson 4", GroupName: strPtr("A"), FilePath: strPtr("n3.pdf"), RequiresPayment: true, CreatedAt: time.Date(2025, 12, 9, 10, 0, 0, 0, time.UTC)},
		{ID: "n4", Title: "Other group", GroupName: strPtr("B"), RequiresPayment: false, CreatedAt: day("2025-12-01")},
	}}
	ledgers, _ := f.reconciliation(ReconciliationConfig{})
	metrics := NewMetricsService()
	signer := storage.NewSignedURLSigner("note-secret", time.Hour)
	return NewNoteAccessService(notes, ledgers, store, signer, metrics, "/api/v1/", nil), metrics
}

func TestNoteAccessListForStudent(t *testing.T) {
	svc, _ := newNoteServiceForTest(t, newLedgerFixture())

	items, err := svc.ListForStudent(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, items, 3)

	free, paid, unpaid := items[0], items[1], items[2]
	assert.True(t, free.Unlocked)
	assert.Equal(t, reconcile.ReasonFree, free.Reason)
	require.NotNil(t, free.DownloadURL)
	assert.True(t, strings.HasPrefix(*free.DownloadURL, "/api/v1/notes/download?token="))

	assert.True(t, paid.Unlocked)
	assert.Equal(t, reconcile.ReasonPaid, paid.Reason)
	require.NotNil(t, paid.MatchedClassDate)
	assert.Equal(t, "2025-11-24", paid.MatchedClassDate.String())
	assert.NotNil(t, paid.DownloadURL)

	assert.False(t, unpaid.Unlocked)
	assert.Equal(t, reconcile.ReasonUnpaid, unpaid.Reason)
	require.NotNil(t, unpaid.MatchedClassDate)
	assert.Equal(t, "2025-12-08", unpaid.MatchedClassDate.String())
	assert.Nil(t, unpaid.DownloadURL)
}

func TestNoteAccessStudentWithoutGroup(t *testing.T) {
	f := newLedgerFixture()
	s := f.students.students["s1"]
	s.GroupLetter = nil
	f.students.students["s1"] = s
	svc, _ := newNoteServiceForTest(t, f)

	items, err := svc.ListForStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNoteAccessResolveDownload(t *testing.T) {
	svc, _ := newNoteServiceForTest(t, newLedgerFixture())
	items, err := svc.ListForStudent(context.Background(), "s1")
	require.NoError(t, err)
	token := mustToken(t, *items[0].DownloadURL)

	download, err := svc.ResolveDownload(token)
	require.NoError(t, err)
	defer download.File.Close()
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Equal(t, "free handout", string(body))
	assert.Equal(t, "n1.pdf", download.Filename)

	_, err = svc.ResolveDownload("garbage")
	require.Error(t, err)
	assert.Equal(t, 403, appErrors.FromError(err).Status)

	missing := mustToken(t, *items[1].DownloadURL)
	_, err = svc.ResolveDownload(missing)
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}
