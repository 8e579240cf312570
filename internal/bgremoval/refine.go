package bgremoval

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Границы полосы краевых пикселей и пороги коррекции альфа-канала.
const (
	edgeAlphaLow     = 10
	edgeAlphaHigh    = 245
	edgeBlendWeight  = 0.6
	haloCutoff       = 20
	confidentHigh    = 200
	confidentLow     = 50
	confidenceAdjust = 20
)

// errEmptyImage возвращается при попытке обработать пустое изображение.
var errEmptyImage = errors.New("пустое изображение")

// RefineEdges сглаживает альфа-канал: box blur радиусом ceil(blur), смешивание
// 40/60 для краевых пикселей, удаление ореола и усиление уверенных значений.
// Решения для каждого пикселя принимаются по исходной альфе и размытой копии,
// уже обработанные соседи не учитываются. При blur <= 0 возвращается копия без изменений.
func RefineEdges(img *image.NRGBA, blur float64) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errEmptyImage
	}

	out := imaging.Clone(img)
	if blur <= 0 {
		return out, nil
	}

	w, h := b.Dx(), b.Dy()
	alpha := make([]float64, w*h)
	for i := range alpha {
		alpha[i] = float64(out.Pix[i*4+3])
	}

	blurred := boxBlurAlpha(alpha, w, h, int(math.Ceil(blur)))

	for i := range alpha {
		a := refineAlpha(alpha[i], blurred[i])
		out.Pix[i*4+3] = uint8(a)
	}

	return out, nil
}

// refineAlpha вычисляет новое значение альфы одного пикселя.
func refineAlpha(orig, blurred float64) int {
	a := int(orig)

	if orig > edgeAlphaLow && orig < edgeAlphaHigh {
		a = int(math.Round(orig*(1-edgeBlendWeight) + blurred*edgeBlendWeight))
	}

	if a < haloCutoff {
		a = 0
	}

	if a > 0 && a < 255 {
		if a > confidentHigh {
			a = min(255, a+confidenceAdjust)
		} else if a < confidentLow {
			a = max(0, a-confidenceAdjust)
		}
	}

	return a
}

// boxBlurAlpha выполняет раздельный box blur: горизонтальный, затем вертикальный проход.
// На границах усредняются только пиксели внутри изображения.
func boxBlurAlpha(alpha []float64, width, height, radius int) []float64 {
	temp := make([]float64, len(alpha))
	out := make([]float64, len(alpha))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			count := 0
			for dx := -radius; dx <= radius; dx++ {
				nx := x + dx
				if nx >= 0 && nx < width {
					sum += alpha[y*width+nx]
					count++
				}
			}
			temp[y*width+x] = sum / float64(count)
		}
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			count := 0
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny >= 0 && ny < height {
					sum += temp[ny*width+x]
					count++
				}
			}
			out[y*width+x] = sum / float64(count)
		}
	}

	return out
}
