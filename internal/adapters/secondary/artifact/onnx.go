package artifact

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"transit-classifier-service/internal/core/domain"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// InitONNXRuntime loads the onnxruntime shared library. It is safe to call
// more than once; only the first call has an effect.
func InitONNXRuntime(libPath string) error {
	ortOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if ort.IsInitialized() {
			return
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ShutdownONNXRuntime releases the runtime environment.
func ShutdownONNXRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// ONNXModel runs an exported classifier through onnxruntime. The model takes
// a float32 [1, n] input in canonical feature order and produces class
// probabilities.
type ONNXModel struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	input   string
	output  string
	width   int
}

// OpenONNX creates a session for the model file at path.
func OpenONNX(path string) (*ONNXModel, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect onnx model: %v", domain.ErrInference, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%w: onnx model has no inputs or outputs", domain.ErrInference)
	}

	width := domain.NumFeatures
	if dims := inputs[0].Dimensions; len(dims) == 2 && dims[1] > 0 {
		width = int(dims[1])
	}
	if width != domain.NumFeatures {
		return nil, fmt.Errorf("%w: onnx model expects %d features, have %d", domain.ErrInference, width, domain.NumFeatures)
	}

	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}
	output := probabilityOutput(names)
	if output == "" {
		return nil, fmt.Errorf("%w: onnx model has no probability output (outputs: %v)", domain.ErrInference, names)
	}

	session, err := ort.NewDynamicAdvancedSession(path, []string{inputs[0].Name}, []string{output}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create onnx session: %v", domain.ErrInference, err)
	}
	return &ONNXModel{session: session, input: inputs[0].Name, output: output, width: width}, nil
}

// Predict implements ports.Artifact.
func (m *ONNXModel) Predict(ctx context.Context, rec domain.FeatureRecord) (int, [2]float64, error) {
	data := make([]float32, m.width)
	for i, v := range rec {
		data[i] = float32(v)
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(m.width)), data)
	if err != nil {
		return 0, [2]float64{}, fmt.Errorf("%w: input tensor: %v", domain.ErrInference, err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 2))
	if err != nil {
		return 0, [2]float64{}, fmt.Errorf("%w: output tensor: %v", domain.ErrInference, err)
	}
	defer out.Destroy()

	m.mu.Lock()
	err = m.session.Run([]ort.Value{in}, []ort.Value{out})
	m.mu.Unlock()
	if err != nil {
		return 0, [2]float64{}, fmt.Errorf("%w: onnx run: %v", domain.ErrInference, err)
	}

	return classFromProbabilities(out.GetData())
}

// Close releases the session.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Destroy()
}

// probabilityOutput picks the output carrying class probabilities. Exporters
// name it "probabilities" or "output_probability".
func probabilityOutput(names []string) string {
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), "prob") {
			return n
		}
	}
	if len(names) == 1 {
		return names[0]
	}
	return ""
}

// classFromProbabilities accepts either [P0, P1] or a single P1.
func classFromProbabilities(data []float32) (int, [2]float64, error) {
	var probs [2]float64
	switch len(data) {
	case 1:
		probs = [2]float64{1 - float64(data[0]), float64(data[0])}
	case 2:
		probs = [2]float64{float64(data[0]), float64(data[1])}
	default:
		return 0, probs, fmt.Errorf("%w: expected 1 or 2 probabilities, got %d", domain.ErrInference, len(data))
	}
	for _, p := range probs {
		if p != p || p < 0 || p > 1 {
			return 0, probs, fmt.Errorf("%w: probability %v out of range", domain.ErrInference, p)
		}
	}
	class := 0
	if probs[1] > 0.5 {
		class = 1
	}
	return class, probs, nil
}
