// Package bgremoval реализует удаление фона: AI сегментацию, удаление по цвету и сглаживание краёв.
package bgremoval

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// cornerSampleSize - сторона квадрата, усредняемого в каждом углу.
	cornerSampleSize = 10

	// flatVarianceThreshold - порог расхождения углов для однотонного фона.
	flatVarianceThreshold = 30

	// maxRGBDistance - максимальное евклидово расстояние в 8-битном RGB (sqrt(3*255^2)).
	maxRGBDistance = 441.67

	// DefaultFeather - ширина растушёвки по умолчанию.
	DefaultFeather = 2
)

// White - цвет фона, используемый, когда однотонный фон не найден.
var White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// DetectBackgroundColor усредняет цвет четырёх угловых квадратов 10x10.
// Возвращает цвет и true, если углы согласованы (однотонный фон).
func DetectBackgroundColor(img *image.NRGBA) (color.NRGBA, bool) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return color.NRGBA{}, false
	}

	corners := []image.Point{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X - cornerSampleSize, Y: b.Min.Y},
		{X: b.Min.X, Y: b.Max.Y - cornerSampleSize},
		{X: b.Max.X - cornerSampleSize, Y: b.Max.Y - cornerSampleSize},
	}

	var avgs [4][3]float64
	for i, c := range corners {
		avgs[i] = cornerAverage(img, image.Rect(c.X, c.Y, c.X+cornerSampleSize, c.Y+cornerSampleSize))
	}

	var mean [3]float64
	for _, a := range avgs {
		for ch := 0; ch < 3; ch++ {
			mean[ch] += a[ch] / 4
		}
	}

	var variance float64
	for _, a := range avgs {
		variance += math.Abs(a[0]-mean[0]) + math.Abs(a[1]-mean[1]) + math.Abs(a[2]-mean[2])
	}
	variance /= 4

	if variance >= flatVarianceThreshold {
		return color.NRGBA{}, false
	}

	return color.NRGBA{
		R: uint8(math.Round(mean[0])),
		G: uint8(math.Round(mean[1])),
		B: uint8(math.Round(mean[2])),
		A: 255,
	}, true
}

// cornerAverage возвращает округлённый средний RGB пикселей окна, попавших в изображение.
func cornerAverage(img *image.NRGBA, window image.Rectangle) [3]float64 {
	window = window.Intersect(img.Bounds())

	var sum [3]float64
	n := 0
	for y := window.Min.Y; y < window.Max.Y; y++ {
		for x := window.Min.X; x < window.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			sum[0] += float64(c.R)
			sum[1] += float64(c.G)
			sum[2] += float64(c.B)
			n++
		}
	}
	if n == 0 {
		return sum
	}
	return [3]float64{
		math.Round(sum[0] / float64(n)),
		math.Round(sum[1] / float64(n)),
		math.Round(sum[2] / float64(n)),
	}
}

// RemoveColorBackground делает прозрачными пиксели, близкие к target.
// tolerancePercent задаёт порог в процентах от максимального расстояния RGB.
// При feather > 0 во второй половине порога альфа растёт линейно от 0 до 255.
// Пиксели за порогом не меняются. Исходное изображение не модифицируется,
// результат начинается в точке (0, 0).
func RemoveColorBackground(img *image.NRGBA, target color.NRGBA, tolerancePercent int, feather int) *image.NRGBA {
	out := imaging.Clone(img)

	tolerance := float64(tolerancePercent) / 100 * maxRGBDistance
	half := tolerance * 0.5

	for i := 0; i+3 < len(out.Pix); i += 4 {
		dr := float64(out.Pix[i]) - float64(target.R)
		dg := float64(out.Pix[i+1]) - float64(target.G)
		db := float64(out.Pix[i+2]) - float64(target.B)
		distance := math.Sqrt(dr*dr + dg*dg + db*db)

		if distance > tolerance {
			continue
		}
		if feather > 0 && distance > half {
			out.Pix[i+3] = uint8(math.Round(255 * (distance - half) / half))
		} else {
			out.Pix[i+3] = 0
		}
	}

	return out
}
