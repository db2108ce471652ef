// Package google provides a recognition channel backed by Google Cloud
// Speech-to-Text streaming recognition, for audio sources that do not come
// from a browser-held recognizer.
package google

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"conversation-transcription-service/internal/service/recognition"
)

// Config holds audio parameters for the streaming session.
type Config struct {
	SampleRateHz int32
}

// DefaultConfig returns the parameters used when none are given.
func DefaultConfig() Config {
	return Config{SampleRateHz: 16000}
}

// Channel implements recognition.Channel using Google Cloud Speech.
// Audio frames are drained from the source channel for the lifetime of a
// session; closing the source ends the session gracefully.
type Channel struct {
	lang   string
	cfg    Config
	client *speech.Client
	source <-chan []byte

	mu     sync.Mutex
	cancel context.CancelFunc
	active bool
}

// New creates a Google STT channel.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func New(ctx context.Context, lang string, cfg Config, source <-chan []byte) (*Channel, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.SampleRateHz == 0 {
		cfg = DefaultConfig()
	}
	return &Channel{lang: lang, cfg: cfg, client: c, source: source}, nil
}

// Lang returns the language tag of the channel.
func (c *Channel) Lang() string { return c.lang }

// Start opens a streaming recognition session, sends the initial config and
// spawns the audio pump and the response listener.
func (c *Channel) Start(ctx context.Context, cb recognition.Callback) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return recognition.ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.active = true
	c.mu.Unlock()

	stream, err := c.client.StreamingRecognize(runCtx)
	if err != nil {
		c.finish()
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: c.cfg.SampleRateHz,
					LanguageCode:    c.lang,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		c.finish()
		return err
	}

	cb.OnStart()
	go c.pump(runCtx, stream)
	go c.listen(stream, cb)
	return nil
}

// pump drains the audio source into the stream until the source closes or
// the session is cancelled.
func (c *Channel) pump(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient) {
	defer func() { _ = stream.CloseSend() }()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.source:
			if !ok {
				return
			}
			req := &speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: frame,
				},
			}
			if err := stream.Send(req); err != nil {
				return
			}
		}
	}
}

// listen receives responses and republishes them as cumulative result
// events: finalized results accumulate, the trailing interim result is
// rewritten in place.
func (c *Channel) listen(stream speechpb.Speech_StreamingRecognizeClient, cb recognition.Callback) {
	defer func() {
		c.finish()
		cb.OnEnd()
	}()

	var finals []recognition.Result
	for {
		resp, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				cb.OnError(recognition.ErrNetwork, err.Error())
			}
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			item := recognition.Result{
				IsFinal: r.IsFinal,
				Alternatives: []recognition.Alternative{{
					Transcript: alt.Transcript,
					Confidence: float64(alt.Confidence),
				}},
			}
			if r.IsFinal {
				finals = append(finals, item)
				cb.OnResult(recognition.ResultEvent{
					ResultIndex: len(finals) - 1,
					Results:     append([]recognition.Result{}, finals...),
				})
			} else {
				cb.OnResult(recognition.ResultEvent{
					ResultIndex: len(finals),
					Results:     append(append([]recognition.Result{}, finals...), item),
				})
			}
		}
	}
}

func (c *Channel) finish() {
	c.mu.Lock()
	c.active = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

// Stop ends the session; buffered responses may still arrive before OnEnd.
func (c *Channel) Stop() { c.finish() }

// Abort tears the session down immediately.
func (c *Channel) Abort() { c.finish() }

// Close releases the underlying client.
func (c *Channel) Close() error {
	c.finish()
	return c.client.Close()
}
