package source

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"beamprofiler/internal/models"
)

// imageExtensions are the file types LatestFileSource considers.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// FileSource re-reads a single image file on every request, so a camera
// that overwrites the file is observed live.
type FileSource struct {
	Path string
}

// NewFileSource creates a source for the image at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// GetImage loads and converts the file.
func (s *FileSource) GetImage() (*models.ImageFrame, error) {
	frame, err := LoadFrame(s.Path)
	if err != nil {
		return nil, unavailable(err)
	}
	return frame, nil
}

// LatestFileSource serves the most recently modified image in a directory.
type LatestFileSource struct {
	Dir string
}

// NewLatestFileSource creates a source watching dir.
func NewLatestFileSource(dir string) *LatestFileSource {
	return &LatestFileSource{Dir: dir}
}

// GetImage loads the newest image file in the directory.
func (s *LatestFileSource) GetImage() (*models.ImageFrame, error) {
	path, err := latestImage(s.Dir)
	if err != nil {
		return nil, unavailable(err)
	}
	frame, err := LoadFrame(path)
	if err != nil {
		return nil, unavailable(err)
	}
	return frame, nil
}

func latestImage(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read frame directory: %w", err)
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{filepath.Join(dir, e.Name()), info.ModTime().UnixNano()})
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no image files found in %s", dir)
	}

	// Newest first, name breaks ties so the choice is stable
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime != files[j].modTime {
			return files[i].modTime > files[j].modTime
		}
		return files[i].path > files[j].path
	})
	return files[0].path, nil
}

// LoadFrame decodes an image file (PNG, JPEG, TIFF or BMP) into a frame of
// grayscale intensities in [0, 1].
func LoadFrame(path string) (*models.ImageFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return FrameFromImage(img), nil
}

// FrameFromImage converts an image to a frame of grayscale intensities
// in [0, 1]. 16-bit images keep their full precision.
func FrameFromImage(img image.Image) *models.ImageFrame {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	data := make([]float64, width*height)

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				data[y*width+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y) / 65535.0
			}
		}
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				data[y*width+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y) / 255.0
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				data[y*width+x] = float64(g.Y) / 65535.0
			}
		}
	}

	return &models.ImageFrame{Rows: height, Cols: width, Data: data}
}
