package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/Student-osmania/SDN-offloading/pkg/constants"
)

// ModelConfig points at a model server exposing a TF-Serving style
// :predict endpoint.
type ModelConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// modelClasses maps the model's output index to a label.
var modelClasses = []constants.Quality{constants.Bad, constants.Intermediate, constants.Good}

type modelRequest struct {
	Instances [][][2]float64 `json:"instances"`
}

type modelResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

// ModelScorer calls a remote sequence classifier.
type ModelScorer struct {
	url        string
	httpClient *http.Client
}

func NewModelScorer(cfg ModelConfig) *ModelScorer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ModelScorer{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (m *ModelScorer) Name() string { return "model" }

func (m *ModelScorer) Score(ctx context.Context, seq []Point) (constants.Quality, float64, error) {
	instance := make([][2]float64, len(seq))
	for i, p := range seq {
		instance[i] = [2]float64{p.RSSI, p.PDR}
	}
	data, err := json.Marshal(modelRequest{Instances: [][][2]float64{instance}})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal model request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewBuffer(data))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to call model endpoint %s: %w", m.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("model server returned non-200 status: %d, body: %s", resp.StatusCode, string(body))
	}

	var out modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("failed to decode model response: %w", err)
	}
	if len(out.Predictions) == 0 || len(out.Predictions[0]) != len(modelClasses) {
		return "", 0, fmt.Errorf("model returned %d predictions, want one vector of %d classes",
			len(out.Predictions), len(modelClasses))
	}

	probs := out.Predictions[0]
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	klog.V(5).Infof("Model scored %v -> %s", probs, modelClasses[best])
	return modelClasses[best], probs[best], nil
}
