package signal

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"quantflow/models"
)

var ortInitOnce sync.Once
var ortInitErr error

// InitORT loads the onnxruntime shared library. libPath may be empty, in
// which case a platform default is used.
func InitORT(libPath string) error {
	ortInitOnce.Do(func() {
		if libPath == "" {
			switch runtime.GOOS {
			case "windows":
				libPath = "onnxruntime.dll"
			case "darwin":
				libPath = "libonnxruntime.dylib"
			default:
				libPath = "/usr/lib/libonnxruntime.so"
			}
		}
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ONNX is a Source backed by an onnxruntime session for externally trained
// classifiers. Standardization still uses the bundle's fitted scaler so the
// training-time schema contract is identical to the logistic backend.
//
// The session owns fixed tensors, so Probability is serialized with a mutex.
type ONNX struct {
	mu      sync.Mutex
	bundle  *Bundle
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNX creates a session for a model taking a (1, n_features) float32
// input named "input" and producing a (1, 1) probability named "output".
func NewONNX(modelPath, libPath string, bundle *Bundle) (*ONNX, error) {
	if err := InitORT(libPath); err != nil {
		return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}

	n := len(bundle.FeatureSchema)
	inputShape := ort.NewShape(1, int64(n))
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, n))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	return &ONNX{
		bundle:  bundle,
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// Probability runs one inference over the standardized row.
func (o *ONNX) Probability(row models.FeatureRow) (float64, error) {
	vec, err := standardize(row, o.bundle)
	if err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	data := o.input.GetData()
	for i, v := range vec {
		data[i] = float32(v)
	}
	if err := o.session.Run(); err != nil {
		return 0, fmt.Errorf("onnx inference failed: %w", err)
	}
	return float64(o.output.GetData()[0]), nil
}

// Close releases the session and its tensors.
func (o *ONNX) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		o.session.Destroy()
	}
	if o.input != nil {
		o.input.Destroy()
	}
	if o.output != nil {
		o.output.Destroy()
	}
}
