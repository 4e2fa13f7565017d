package worker

import (
	"context"
	"testing"

	"github.com/eonpro/eonpro-sub008/internal/queue"

	"github.com/hibiken/asynq"
)

func TestHandleOpsAlertInvalidPayload(t *testing.T) {
	consumer := &Consumer{}
	task := asynq.NewTask(queue.TaskOpsAlert, []byte("{not-json"))
	if err := consumer.handleOpsAlert(context.Background(), task); err == nil {
		t.Fatal("expected unmarshal error for invalid payload")
	}
}

func TestHandleOpsAlertNilTask(t *testing.T) {
	consumer := &Consumer{}
	if err := consumer.handleOpsAlert(context.Background(), nil); err != nil {
		t.Fatalf("nil task should be ignored, got %v", err)
	}
}

func TestHandleDeadLetterRetrySkipsZeroID(t *testing.T) {
	consumer := &Consumer{}
	task := asynq.NewTask(queue.TaskDeadLetterRetry, []byte(`{"dead_letter_id":0}`))
	if err := consumer.handleDeadLetterRetry(context.Background(), task); err != nil {
		t.Fatalf("zero id should be skipped without error, got %v", err)
	}
}

func TestHandleReconciliationRunInvalidPayload(t *testing.T) {
	consumer := &Consumer{}
	task := asynq.NewTask(queue.TaskReconciliationRun, []byte("broken"))
	if err := consumer.handleReconciliationRun(context.Background(), task); err == nil {
		t.Fatal("expected unmarshal error for invalid payload")
	}
}
