package outbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for the relay.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

// NonRetryableError signals the relay should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// ResolvedEvent is a decoded outbox row.
type ResolvedEvent struct {
	Envelope PayloadEnvelope
	Payload  any
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// NewDefaultRegistry knows every event type this service emits.
func NewDefaultRegistry() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventLoyaltyPointsDebit, 1, decodeInto[LoyaltyPointsDebitEvent])
	reg.Register(enums.EventReceiptRender, 1, decodeInto[ReceiptRenderEvent])
	return reg
}

func decodeInto[T any](payload json.RawMessage) (any, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}

// Resolve unpacks the envelope of a stored row and decodes its data. Failures
// are non-retryable since the row will never decode differently.
func (r *DecoderRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal([]byte(row.Payload), &envelope); err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("decode envelope %s: %w", row.ID, err)}
	}
	payload, err := r.Decode(row.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, NonRetryableError{Err: err}
	}
	return &ResolvedEvent{Envelope: envelope, Payload: payload}, nil
}
