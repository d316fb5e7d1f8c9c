package embedding

// ONNXConfig configures the ONNX sentence-transformers embedder.
type ONNXConfig struct {
	// ModelPath is the exported transformer graph (onnx/model.onnx).
	ModelPath string
	// LibraryPath optionally points at the onnxruntime shared library.
	LibraryPath string
	// Name is recorded on collections built with this embedder.
	Name      string
	Tokenizer Tokenizer
	// Dimensions is used when the graph does not declare its hidden size.
	Dimensions int
	MaxTokens  int
}
