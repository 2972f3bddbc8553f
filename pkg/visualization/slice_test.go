package visualization

import (
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"zarrfusion/internal/models"
)

// createTestVolume fills a volume with f(z, y, x) = 100z + 10y + x
func createTestVolume(depth, height, width int) *models.Volume {
	v := models.NewVolume(depth, height, width, models.Spacing{Z: 2, Y: 1, X: 0.5})
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v.Set(z, y, x, float32(100*z+10*y+x))
			}
		}
	}
	return v
}

// TestExtractSlice verifies that slices are correctly extracted along each axis
func TestExtractSlice(t *testing.T) {
	vol := createTestVolume(3, 4, 5)

	tests := []struct {
		axis       Axis
		position   int
		rows, cols int
		r, c       int
		expected   float32
	}{
		{AxisZ, 2, 4, 5, 3, 1, 231},
		{AxisY, 1, 3, 5, 2, 4, 214},
		{AxisX, 4, 3, 4, 1, 3, 134},
	}

	for _, tt := range tests {
		t.Run(tt.axis.String(), func(t *testing.T) {
			data, err := ExtractSlice(vol, tt.axis, tt.position)
			if err != nil {
				t.Fatalf("Failed to extract slice: %v", err)
			}
			p := PlaneOf(vol, tt.axis)
			if p.Rows != tt.rows || p.Cols != tt.cols {
				t.Errorf("Expected %dx%d plane, got %dx%d", tt.rows, tt.cols, p.Rows, p.Cols)
			}
			if len(data) != p.Rows*p.Cols {
				t.Fatalf("Expected %d values, got %d", p.Rows*p.Cols, len(data))
			}
			if got := data[tt.r*p.Cols+tt.c]; got != tt.expected {
				t.Errorf("Expected value %f at (%d,%d), got %f", tt.expected, tt.r, tt.c, got)
			}
		})
	}

	// Test invalid positions
	if _, err := ExtractSlice(vol, AxisZ, -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
	if _, err := ExtractSlice(vol, AxisX, 5); err == nil {
		t.Error("Expected error for position beyond width, got nil")
	}
}

// TestPlaneSpacing verifies the physical spacing of each plane
func TestPlaneSpacing(t *testing.T) {
	vol := createTestVolume(3, 4, 5)

	if p := PlaneOf(vol, AxisZ); p.RowSpacing != 1 || p.ColSpacing != 0.5 {
		t.Errorf("Unexpected Z plane spacing %+v", p)
	}
	if p := PlaneOf(vol, AxisX); p.RowSpacing != 2 || p.ColSpacing != 1 {
		t.Errorf("Unexpected X plane spacing %+v", p)
	}
}

// TestParseAxis verifies axis names and cycling
func TestParseAxis(t *testing.T) {
	for _, s := range []string{"z", "Y", "x"} {
		if _, err := ParseAxis(s); err != nil {
			t.Errorf("Unexpected error for %q: %v", s, err)
		}
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if AxisZ.Next() != AxisY || AxisY.Next() != AxisX || AxisX.Next() != AxisZ {
		t.Error("Expected axes to cycle Z, Y, X")
	}
}

// TestComposite verifies additive blending of visible layers
func TestComposite(t *testing.T) {
	vol := models.NewVolume(1, 1, 2, models.Spacing{Z: 1, Y: 1, X: 1})
	vol.Data = []float32{0, 10}

	gray := NewLayer("gray", vol, Gray)
	magenta := NewLayer("magenta", vol, Magenta)
	green := NewLayer("green", vol, Green)
	green.Visible = false

	img, err := Composite([]*Layer{gray, magenta, green}, AxisZ, 0)
	if err != nil {
		t.Fatalf("Failed to composite: %v", err)
	}
	if px := img.RGBAAt(0, 0); px.R != 0 || px.G != 0 || px.B != 0 {
		t.Errorf("Expected black at minimum, got %v", px)
	}
	// Gray plus magenta saturates red and blue and keeps full green.
	if px := img.RGBAAt(1, 0); px.R != 255 || px.G != 255 || px.B != 255 {
		t.Errorf("Expected white at maximum, got %v", px)
	}

	gray.Visible = false
	img, err = Composite([]*Layer{gray, magenta, green}, AxisZ, 0)
	if err != nil {
		t.Fatalf("Failed to composite: %v", err)
	}
	if px := img.RGBAAt(1, 0); px.R != 255 || px.G != 0 || px.B != 255 {
		t.Errorf("Expected magenta, got %v", px)
	}

	if _, err := Composite(nil, AxisZ, 0); err == nil {
		t.Error("Expected error for empty layer list, got nil")
	}
}

// TestSaveSnapshot verifies that a composited slice can be saved as JPEG
func TestSaveSnapshot(t *testing.T) {
	vol := createTestVolume(3, 4, 5)
	img, err := Composite([]*Layer{NewLayer("v", vol, Gray)}, AxisZ, 1)
	if err != nil {
		t.Fatalf("Failed to composite: %v", err)
	}

	filename := filepath.Join(t.TempDir(), "snapshots", "slice.jpg")
	if err := SaveSnapshot(img, filename); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	file, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Failed to open snapshot: %v", err)
	}
	defer file.Close()

	decoded, err := jpeg.Decode(file)
	if err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 5 || b.Dy() != 4 {
		t.Errorf("Expected 5x4 image, got %dx%d", b.Dx(), b.Dy())
	}
}
