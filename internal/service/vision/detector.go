package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"edgecounter/internal/logger"
	"edgecounter/internal/model"
)

// Detector runs an SSD MobileNet COCO network over JPEG samples.
type Detector struct {
	net        gocv.Net
	loaded     bool
	threshold  float32
	modelPath  string
	configPath string
	mu         sync.Mutex
	logger     *logger.Logger
}

// NewDetector loads the network. A missing model is logged and every Detect
// call then fails, which the scheduler treats as an empty detection set.
func NewDetector(modelPath, configPath string, threshold float64, log *logger.Logger) *Detector {
	if log == nil {
		log = logger.Discard()
	}
	d := &Detector{
		threshold:  float32(threshold),
		modelPath:  modelPath,
		configPath: configPath,
		logger:     log,
	}

	if err := d.initializeNet(); err != nil {
		d.logger.Warning("Could not initialize detection network: %v", err)
	}
	return d
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (d *Detector) initializeNet() error {
	if _, err := os.Stat(d.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", d.modelPath)
	}
	if _, err := os.Stat(d.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", d.configPath)
	}

	net := gocv.ReadNet(d.modelPath, d.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	d.net = net
	d.loaded = true
	d.logger.Info("Detection network initialized successfully")
	return nil
}

// Detect returns every detection above the confidence threshold.
func (d *Detector) Detect(ctx context.Context, sample model.Sample) ([]model.Detection, error) {
	if !d.loaded {
		return nil, fmt.Errorf("detection network not initialized")
	}

	mat, err := gocv.IMDecode(sample.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Rows are [batch_id, class_id, confidence, x1, y1, x2, y2], coordinates normalized.
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	cols, height := float32(mat.Cols()), float32(mat.Rows())
	var results []model.Detection
	for i := 0; i < rows.Rows(); i++ {
		confidence := rows.GetFloatAt(i, 2)
		if confidence <= d.threshold {
			continue
		}
		classID := int(rows.GetFloatAt(i, 1))
		box := image.Rect(
			int(rows.GetFloatAt(i, 3)*cols),
			int(rows.GetFloatAt(i, 4)*height),
			int(rows.GetFloatAt(i, 5)*cols),
			int(rows.GetFloatAt(i, 6)*height),
		)
		results = append(results, model.Detection{
			Label:      ClassLabel(classID),
			Confidence: float64(confidence),
			Box:        box.Intersect(image.Rect(0, 0, mat.Cols(), mat.Rows())),
		})
	}

	return results, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.loaded = false
		return d.net.Close()
	}
	return nil
}
