package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relocato/assistant/internal/snapshot"
)

func newExecutorHarness() (*Executor, *memoryCRM, *recordingBackend) {
	service := &memoryCRM{}
	backend := &recordingBackend{}
	cache := snapshot.NewCache(service, time.Minute)
	return NewExecutor(service, backend, cache), service, backend
}

func TestExecuteCreateCustomer(t *testing.T) {
	executor, service, _ := newExecutorHarness()

	record := executor.Execute(context.Background(), &Action{
		Kind:    KindCreateCustomer,
		Payload: CreateCustomerPayload{Name: "Test GmbH"},
	})

	assert.Equal(t, StatusCompleted, record.Status)
	entity, ok := record.Result.(CreatedEntity)
	require.True(t, ok)
	assert.Equal(t, "c1", entity.ID)
	assert.Len(t, service.customers, 1)
}

func TestExecuteTraversalPathRejectedBeforeBackend(t *testing.T) {
	executor, _, backend := newExecutorHarness()

	record := executor.Execute(context.Background(), &Action{
		Kind:    KindWriteFile,
		Payload: WriteFilePayload{Path: "../../etc/passwd", Content: "x"},
	})

	assert.Equal(t, StatusFailed, record.Status)
	assert.Contains(t, record.Error, "validation failed")
	assert.Zero(t, backend.writes)
}

func TestExecuteEditReportsReplacements(t *testing.T) {
	executor, _, _ := newExecutorHarness()

	record := executor.Execute(context.Background(), &Action{
		Kind:    KindEditFile,
		Payload: EditFilePayload{Path: "src/App.tsx", OldString: "alt", NewString: "neu"},
	})

	assert.Equal(t, StatusCompleted, record.Status)
	result, ok := record.Result.(EditResult)
	require.True(t, ok)
	assert.Equal(t, 2, result.ReplacementCount)
	assert.Contains(t, record.Detail, "2 Ersetzungen")
}

func TestExecuteSearchCustomersUsesSnapshot(t *testing.T) {
	executor, service, _ := newExecutorHarness()
	service.customers = append(service.customers, crmCustomer("c1", "Test GmbH"))

	record := executor.Execute(context.Background(), &Action{
		Kind:    KindSearchCustomers,
		Payload: SearchCustomersPayload{Query: "test"},
	})

	assert.Equal(t, StatusCompleted, record.Status)
	assert.Contains(t, record.Detail, "1 Treffer")
}

func TestExecuteCollaboratorFailureIsTyped(t *testing.T) {
	executor, service, _ := newExecutorHarness()
	service.failNext = assert.AnError

	record := executor.Execute(context.Background(), &Action{
		Kind:    KindCreateCustomer,
		Payload: CreateCustomerPayload{Name: "Test GmbH"},
	})

	assert.Equal(t, StatusFailed, record.Status)
	assert.Contains(t, record.Error, "collaborator failed")
}

func TestRecordTransitionsOnce(t *testing.T) {
	record := &Record{Kind: KindReadFile, Status: StatusPending}
	record.complete("first", "detail")
	record.fail(assert.AnError)

	assert.Equal(t, StatusCompleted, record.Status)
	assert.Empty(t, record.Error)
}
