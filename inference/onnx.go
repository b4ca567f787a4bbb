package inference

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// ONNXConfig configures the ONNX Runtime backend.
type ONNXConfig struct {
	// LibraryPath is the path of the onnxruntime shared library.
	LibraryPath string `json:"libraryPath" yaml:"libraryPath"`
	// InputName and OutputName are the graph tensor names.
	InputName  string `json:"inputName" yaml:"inputName"`
	OutputName string `json:"outputName" yaml:"outputName"`
	// InputSize is the square model input edge length.
	InputSize int `json:"inputSize" yaml:"inputSize"`
	// Anchors is the number of output rows.
	Anchors int `json:"anchors" yaml:"anchors"`
	// NumClasses is the number of class scores per output row.
	NumClasses int `json:"numClasses" yaml:"numClasses"`
	// Session holds the session options.
	Session SessionConfig `json:"session" yaml:"session"`
}

// DefaultONNXConfig returns the layout of a 640x640 YOLOv5 export using the
// bundled runtime library.
func DefaultONNXConfig(numClasses int) ONNXConfig {
	lib, _ := DefaultLibraryPath()
	return ONNXConfig{
		LibraryPath: lib,
		InputName:   "images",
		OutputName:  "output0",
		InputSize:   640,
		Anchors:     YOLOv5Anchors(640),
		NumClasses:  numClasses,
		Session:     DefaultSessionConfig(),
	}
}

// YOLOv5Anchors returns the output row count of a YOLOv5 export with a
// square input of the given edge: three anchors per cell on the stride 8, 16
// and 32 grids. 640 gives 25200 and 416 gives 10647.
func YOLOv5Anchors(inputSize int) int {
	total := 0
	for _, stride := range []int{8, 16, 32} {
		cells := inputSize / stride
		total += 3 * cells * cells
	}
	return total
}

// Validate checks that tensors can be allocated from the configuration.
func (c ONNXConfig) Validate() error {
	if c.LibraryPath == "" {
		return errors.New("onnxruntime library path is required")
	}
	if c.InputName == "" || c.OutputName == "" {
		return errors.New("input and output tensor names are required")
	}
	if c.InputSize <= 0 || c.Anchors <= 0 || c.NumClasses <= 0 {
		return errors.Errorf("invalid tensor layout: input %d, anchors %d, classes %d",
			c.InputSize, c.Anchors, c.NumClasses)
	}
	return c.Session.Validate()
}

var (
	environmentMu   sync.Mutex
	environmentPath string
)

// initEnvironment initializes the process-wide ONNX Runtime environment once.
// Failures are not remembered.
func initEnvironment(libPath string) error {
	environmentMu.Lock()
	defer environmentMu.Unlock()

	if ort.IsInitialized() {
		if environmentPath != "" && environmentPath != libPath {
			return errors.Errorf("onnxruntime already initialized from %s", environmentPath)
		}
		return nil
	}

	// Check if the shared library exists before trying to use it.
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	environmentPath = libPath

	return nil
}

// ONNXBackend loads ONNX models into ONNX Runtime sessions.
type ONNXBackend struct {
	config ONNXConfig
	logger *zap.Logger
}

// NewONNXBackend creates a backend. The runtime is initialized on the first
// LoadModel call.
func NewONNXBackend(config ONNXConfig, logger *zap.Logger) (*ONNXBackend, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid onnx config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ONNXBackend{config: config, logger: logger}, nil
}

// LoadModel creates a session for the model file at location with fixed
// [1,3,S,S] input and [1,anchors,5+K] output tensors.
//
// Arguments:
//   - ctx: Checked before any work is done.
//   - location: The ONNX model file path.
//
// Returns:
//   - ModelHandle: A *Session.
//   - error: An error if the runtime, tensors or session cannot be created.
func (b *ONNXBackend) LoadModel(ctx context.Context, location string) (ModelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(location); err != nil {
		return nil, errors.Wrapf(err, "model not found at %s", location)
	}
	if err := initEnvironment(b.config.LibraryPath); err != nil {
		return nil, err
	}

	size := int64(b.config.InputSize)
	inputShape := ort.NewShape(1, 3, size, size)
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	outputShape := ort.NewShape(1, int64(b.config.Anchors), int64(5+b.config.NumClasses))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := newSessionOptions(b.config.Session)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		location,
		[]string{b.config.InputName},
		[]string{b.config.OutputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	b.logger.Debug("onnx session created",
		zap.String("model", location),
		zap.String("provider", string(b.config.Session.Provider)),
		zap.Int64s("input", inputShape),
		zap.Int64s("output", outputShape),
	)

	return &Session{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

// Session represents a model session from the onnxruntime. Its tensors are
// bound to the session, so Infer calls are serialized.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]

	mu sync.Mutex
}

// Infer copies input into the bound input tensor, runs the session and
// returns a copy of the output.
func (s *Session) Infer(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if input == nil {
		return nil, errors.New("input tensor is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Session == nil {
		return nil, errors.New("session is closed")
	}

	want := s.Input.GetShape()
	got := input.Shape()
	if len(want) != len(got) {
		return nil, errors.Errorf("input shape %v does not match session input %v", got, want)
	}
	for i := range want {
		if int(want[i]) != got[i] {
			return nil, errors.Errorf("input shape %v does not match session input %v", got, want)
		}
	}

	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("input tensor must be float32, got %v", input.Dtype())
	}
	copy(s.Input.GetData(), data)

	if err := s.Session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	raw := s.Output.GetData()
	out := make([]float32, len(raw))
	copy(out, raw)

	outShape := s.Output.GetShape()
	dims := make([]int, len(outShape))
	for i, d := range outShape {
		dims[i] = int(d)
	}

	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(out)), nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.Input != nil {
		err = multierr.Append(err, s.Input.Destroy())
		s.Input = nil
	}
	if s.Output != nil {
		err = multierr.Append(err, s.Output.Destroy())
		s.Output = nil
	}
	if s.Session != nil {
		err = multierr.Append(err, s.Session.Destroy())
		s.Session = nil
	}
	return err
}
