package classifier

import (
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// DNNModel runs an exported sequence network (ONNX, TensorFlow .pb and the
// other formats OpenCV's DNN module reads) as a SequenceModel. The network
// takes a (1, rows, cols) float32 blob and outputs one probability per class.
type DNNModel struct {
	net  gocv.Net
	rows int
	cols int
	mu   sync.Mutex
}

// LoadDNNModel reads a network from modelPath. configPath may be empty for
// self-contained formats such as ONNX. rows and cols give the input shape,
// which OpenCV cannot report for every format.
func LoadDNNModel(modelPath, configPath string, rows, cols int) (*DNNModel, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("invalid input shape (%d, %d)", rows, cols)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target: %w", err)
	}

	return &DNNModel{net: net, rows: rows, cols: cols}, nil
}

// InputShape returns the configured (rows, cols).
func (m *DNNModel) InputShape() (int, int) {
	return m.rows, m.cols
}

// Predict runs one forward pass.
func (m *DNNModel) Predict(window *mat.Dense) ([]float64, error) {
	r, c := window.Dims()
	if r != m.rows || c != m.cols {
		return nil, fmt.Errorf("input (%d, %d), want (%d, %d): %w", r, c, m.rows, m.cols, ErrShapeMismatch)
	}

	blob := gocv.NewMatWithSizes([]int{1, r, c}, gocv.MatTypeCV32F)
	defer blob.Close()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			blob.SetFloatAt3(0, i, j, float32(window.At(i, j)))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("network produced no output")
	}

	flat := output.Reshape(1, 1)
	defer flat.Close()

	probs := make([]float64, flat.Cols())
	for i := range probs {
		probs[i] = float64(flat.GetFloatAt(0, i))
	}
	return probs, nil
}

// Close releases the network.
func (m *DNNModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}
