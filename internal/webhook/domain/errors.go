package domain

import "errors"

var (
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrPayloadTooLarge   = errors.New("payload_too_large")
	ErrInvalidEventShape = errors.New("invalid_event_shape")
	ErrEventNotFound     = errors.New("webhook_event_not_found")
)
