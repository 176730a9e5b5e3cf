package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

type googleRecognizer struct {
	endpoint string
	apiKey   string
	language string
	client   *http.Client
}

// NewGoogleRecognizer returns a Recognizer backed by the Google Cloud Speech
// REST endpoint (speech:recognize). The language is fixed at construction.
func NewGoogleRecognizer(endpoint, apiKey, language string) Recognizer {
	return &googleRecognizer{
		endpoint: endpoint,
		apiKey:   apiKey,
		language: language,
		client:   http.DefaultClient,
	}
}

type googleRequest struct {
	Config googleRecognitionConfig `json:"config"`
	Audio  googleAudio             `json:"audio"`
}

type googleRecognitionConfig struct {
	Encoding          string `json:"encoding"`
	SampleRateHertz   int    `json:"sampleRateHertz"`
	AudioChannelCount int    `json:"audioChannelCount,omitempty"`
	LanguageCode      string `json:"languageCode"`
}

type googleAudio struct {
	Content string `json:"content"`
}

type googleResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

func (g *googleRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int) (TranscriptResult, error) {
	payload := googleRequest{
		Config: googleRecognitionConfig{
			Encoding:          "LINEAR16",
			SampleRateHertz:   sampleRate,
			AudioChannelCount: channels,
			LanguageCode:      g.language,
		},
		Audio: googleAudio{Content: base64.StdEncoding.EncodeToString(pcm)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return TranscriptResult{}, err
	}

	url := g.endpoint + "/speech:recognize"
	if g.apiKey != "" {
		url += "?key=" + g.apiKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return TranscriptResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return TranscriptResult{}, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
	}

	var decoded googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return TranscriptResult{}, fmt.Errorf("decode speech response: %w", err)
	}
	if len(decoded.Results) == 0 || len(decoded.Results[0].Alternatives) == 0 {
		return TranscriptResult{}, ErrUnintelligible
	}
	best := decoded.Results[0].Alternatives[0]
	if best.Transcript == "" {
		return TranscriptResult{}, ErrUnintelligible
	}
	return TranscriptResult{Text: best.Transcript, Confidence: best.Confidence}, nil
}
