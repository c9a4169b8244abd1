package dsp

import (
	"image"
	"image/color"
	"image/png"
	"os"
)

// WriteImage renders s as a grayscale PNG: frequency along the
// horizontal axis, time down the vertical axis, brightness for
// magnitude. Since Frames is already normalized to a 0 dB ceiling
// (Compute's globalMax subtraction), 0 dB maps to white and floorDB
// maps to black, with anything quieter than floorDB clipped to black.
//
// Grounded on the teacher's core/image.go SpectrogramToImage, adapted
// from raw complex128 STFT output to the dB-normalized Frames this
// package already produces.
func (s *Spectrogram) WriteImage(path string, floorDB float64) error {
	if len(s.Frames) == 0 || s.Bins == 0 {
		return os.WriteFile(path, nil, 0o644)
	}

	img := image.NewGray(image.Rect(0, 0, s.Bins, len(s.Frames)))

	for t, row := range s.Frames {
		for f, db := range row {
			v := db
			if v < floorDB {
				v = floorDB
			}
			intensity := uint8(255 * (v - floorDB) / -floorDB)
			img.SetGray(f, t, color.Gray{Y: intensity})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}
