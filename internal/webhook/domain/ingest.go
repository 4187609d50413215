package domain

import "context"

// IngestRequest is one inbound webhook delivery as received off the wire.
type IngestRequest struct {
	Body      []byte
	Signature string
	SourceIP  string
	// BodyTooLarge marks a body truncated at the configured limit.
	BodyTooLarge bool
}

type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeProcessingFailed Outcome = "processing_failed"
	OutcomeRetryable        Outcome = "retryable"
	OutcomeInvalidPayload   Outcome = "invalid_payload"
	OutcomeInvalidSignature Outcome = "invalid_signature"
)

type IngestResult struct {
	Outcome   Outcome
	EventType EventType
	Processed bool
	// Logged is nil when the audit row could not be written.
	Logged *WebhookEvent
	Err    error
}

// Service runs the ingestion pipeline for one delivery.
type Service interface {
	Ingest(ctx context.Context, req IngestRequest) IngestResult
}
