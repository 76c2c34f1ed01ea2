// Package worker provides a NATS worker that serves synthesis jobs from a
// message subject, for pipelines that feed the service without going
// through HTTP.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/synth"
)

// SynthesisRequestedEvent asks the worker to speak staged text. The text
// itself lives in the object store under TextKey; the event carries only
// coordinates and voice selection.
type SynthesisRequestedEvent struct {
	Header   events.EventHeader `json:"header"`
	TextKey  string             `json:"text_key"`
	Voice    string             `json:"voice"`
	Language string             `json:"language"`
}

// SynthesisCompletedEvent is the reply once generated audio has been
// archived.
type SynthesisCompletedEvent struct {
	Header            events.EventHeader `json:"header"`
	AudioKey          string             `json:"audio_key"`
	Voice             string             `json:"voice"`
	GenerationSeconds float64            `json:"generation_seconds"`
}

// Synthesizer runs one synthesis job to completion.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (*synth.Result, error)
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes
// them through the same orchestrator the HTTP surface uses. Jobs run
// without a deadline; inference is unbounded by policy.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	synthesizer    Synthesizer
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	synthesizer Synthesizer,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		synthesizer:    synthesizer,
		log:            log,
	}
}

// Run starts the worker and blocks until the context is canceled, then
// drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, subErr := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if subErr != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, subErr)
	}

	w.log.Info("Synthesis worker listening on subject '%s'", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx := context.Background()

	var event SynthesisRequestedEvent

	unmarshalErr := json.Unmarshal(msg.Data, &event)
	if unmarshalErr != nil {
		w.log.Error("Failed to unmarshal synthesis event: %v", unmarshalErr)

		return
	}

	reply, processErr := w.processJob(ctx, &event)
	if processErr != nil {
		w.log.Error("Failed to process synthesis job for workflow %s: %v",
			event.Header.WorkflowID, processErr)

		return
	}

	publishErr := w.publishReply(msg, reply)
	if publishErr != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v",
			event.Header.WorkflowID, publishErr)
	}
}

// processJob downloads the staged text, synthesizes it, and archives the
// resulting audio under a fresh key.
func (w *NatsWorker) processJob(ctx context.Context, event *SynthesisRequestedEvent) (*SynthesisCompletedEvent, error) {
	textData, downloadErr := w.store.Download(ctx, event.TextKey)
	if downloadErr != nil {
		return nil, fmt.Errorf("failed to download text for key '%s': %w", event.TextKey, downloadErr)
	}

	result, synthErr := w.synthesizer.Synthesize(ctx, synth.Request{
		Text:     string(textData),
		Voice:    event.Voice,
		Language: event.Language,
	})
	if synthErr != nil {
		return nil, fmt.Errorf("failed to synthesize staged text: %w", synthErr)
	}

	audioData, readErr := os.ReadFile(result.OutputPath)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", readErr)
	}

	audioKey := uuid.NewString() + ".wav"

	uploadErr := w.store.Upload(ctx, audioKey, audioData)
	if uploadErr != nil {
		return nil, fmt.Errorf("failed to upload audio for key '%s': %w", audioKey, uploadErr)
	}

	return &SynthesisCompletedEvent{
		Header:            event.Header,
		AudioKey:          audioKey,
		Voice:             event.Voice,
		GenerationSeconds: result.Elapsed.Seconds(),
	}, nil
}

func (w *NatsWorker) publishReply(msg *nats.Msg, reply *SynthesisCompletedEvent) error {
	replyData, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal reply event: %w", marshalErr)
	}

	respondErr := msg.Respond(replyData)
	if respondErr != nil {
		return fmt.Errorf("failed to publish reply event: %w", respondErr)
	}

	return nil
}
