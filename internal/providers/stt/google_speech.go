package stt

import (
	"context"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// language example: "en-US", "id-ID"
func (g *GoogleSpeech) StreamTranscribe(ctx context.Context, audio <-chan []byte, language string) (<-chan Segment, <-chan error) {
	if language == "" {
		language = "en-US"
	}

	out := make(chan Segment, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		stream, err := g.c.StreamingRecognize(ctx)
		if err != nil {
			errs <- err
			return
		}

		if err := stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
				StreamingConfig: &speechpb.StreamingRecognitionConfig{
					Config: &speechpb.RecognitionConfig{
						Encoding:                   g.Encoding,
						SampleRateHertz:            g.SampleRateHz,
						LanguageCode:               language,
						EnableAutomaticPunctuation: true,
					},
					InterimResults: true,
				},
			},
		}); err != nil {
			errs <- err
			return
		}

		go func() {
			for {
				select {
				case <-ctx.Done():
					_ = stream.CloseSend()
					return
				case chunk, ok := <-audio:
					if !ok {
						_ = stream.CloseSend()
						return
					}
					if err := stream.Send(&speechpb.StreamingRecognizeRequest{
						StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
							AudioContent: chunk,
						},
					}); err != nil {
						// Recv below surfaces the stream error.
						return
					}
				}
			}
		}()

		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errs <- err
				return
			}
			for _, res := range resp.Results {
				if len(res.Alternatives) == 0 {
					continue
				}
				alt := res.Alternatives[0]
				if alt.Transcript == "" {
					continue
				}
				seg := Segment{
					Text:       alt.Transcript,
					Confidence: float64(alt.Confidence),
					IsFinal:    res.IsFinal,
				}
				select {
				case out <- seg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errs
}
