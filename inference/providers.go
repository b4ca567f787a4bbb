package inference

import (
	"runtime"
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider is an ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCPU is the default CPU execution provider.
	ProviderCPU Provider = "cpu"
	// ProviderCoreML uses Apple CoreML for macOS/iOS acceleration.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO uses Intel OpenVINO for inference optimization.
	ProviderOpenVINO Provider = "openvino"
)

// Precision represents the precision of a model on the OpenVINO provider.
type Precision string

// Precision constants are the supported precisions for inference.
const (
	// PrecisionAccuracy executes the model with its default input precision.
	PrecisionAccuracy Precision = "ACCURACY"
	PrecisionFP16     Precision = "FP16"
	PrecisionFP32     Precision = "FP32"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	DeviceID string `json:"deviceID" yaml:"deviceID"`
	// Overrides the accelerator hardware type at runtime (CPU, GPU, NPU).
	DeviceType string `json:"deviceType" yaml:"deviceType"`
	// Supported precisions for HW {CPU:FP32, GPU:[FP32, FP16, ACCURACY], NPU:FP16}.
	Precision Precision `json:"precision" yaml:"precision"`
	// Overrides the accelerator default number of threads.
	NumOfThreads int `json:"numOfThreads" yaml:"numOfThreads"`
}

// providerOptions renders the options in the form ONNX Runtime expects.
func (o OpenVINOOptions) providerOptions() map[string]string {
	opts := map[string]string{
		"device_id":   o.DeviceID,
		"device_type": o.DeviceType,
		"precision":   string(o.Precision),
	}
	if o.DeviceID == "" {
		opts["device_id"] = "0"
	}
	if o.DeviceType == "" {
		opts["device_type"] = "CPU"
	}
	if o.Precision == "" {
		opts["precision"] = string(PrecisionFP32)
	}
	if o.NumOfThreads > 0 {
		opts["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	return opts
}

// SessionConfig holds the ONNX Runtime session settings.
type SessionConfig struct {
	// Provider selects the execution provider.
	Provider Provider `json:"provider" yaml:"provider"`
	// IntraOpThreads parallelizes execution within graph nodes, 0 for the default.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intraOpThreads"`
	// InterOpThreads parallelizes execution across graph nodes, 0 for the default.
	InterOpThreads int `json:"interOpThreads" yaml:"interOpThreads"`
	// OpenVINO holds the OpenVINO provider options.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultSessionConfig returns a CPU configuration using half of the cores
// for intra-op parallelism.
func DefaultSessionConfig() SessionConfig {
	intra := runtime.NumCPU() / 2
	if intra < 1 {
		intra = 1
	}
	return SessionConfig{
		Provider:       ProviderCPU,
		IntraOpThreads: intra,
		InterOpThreads: 1,
	}
}

// Validate checks the provider name and thread counts.
func (c SessionConfig) Validate() error {
	switch c.Provider {
	case ProviderCPU, ProviderCoreML, ProviderOpenVINO, "":
	default:
		return errors.Errorf("unsupported execution provider %q", c.Provider)
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return errors.New("thread counts must not be negative")
	}
	return nil
}

// newSessionOptions builds ONNX Runtime session options. The caller owns the
// returned options and must destroy them.
func newSessionOptions(cfg SessionConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	fail := func(err error, msg string) (*ort.SessionOptions, error) {
		options.Destroy()
		return nil, errors.Wrap(err, msg)
	}

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return fail(err, "error setting intra-op threads")
		}
	}
	if cfg.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			return fail(err, "error setting inter-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fail(err, "error setting graph optimization level")
	}

	switch cfg.Provider {
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return fail(err, "error enabling CoreML")
		}
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(cfg.OpenVINO.providerOptions()); err != nil {
			return fail(err, "error enabling OpenVINO")
		}
	}

	return options, nil
}
