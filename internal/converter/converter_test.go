package converter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/artemshloyda/photobatch/internal/bgremoval"
	"github.com/artemshloyda/photobatch/internal/config"
)

func TestComputeRanges(t *testing.T) {
	tests := []struct {
		name   string
		isHeic bool
		hasBg  bool
		want   StageRanges
	}{
		{"plain", false, false, StageRanges{0, 0, 0, 0, 30, 50, 70}},
		{"heic", true, false, StageRanges{10, 10, 10, 10, 40, 60, 80}},
		{"background", false, true, StageRanges{0, 0, 70, 70, 80, 85, 90}},
		{"heic and background", true, true, StageRanges{10, 10, 70, 70, 80, 85, 90}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeRanges(tt.isHeic, tt.hasBg); got != tt.want {
				t.Errorf("ComputeRanges() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStageRanges_ScaleBackground(t *testing.T) {
	r := ComputeRanges(true, true)

	tests := []struct {
		in   int
		want int
	}{
		{0, 10},
		{50, 40},
		{100, 70},
	}
	for _, tt := range tests {
		if got := r.ScaleBackground(tt.in); got != tt.want {
			t.Errorf("ScaleBackground(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsHEIC(t *testing.T) {
	tests := []struct {
		mime string
		name string
		want bool
	}{
		{"image/heic", "photo.bin", true},
		{"image/heif", "", true},
		{"", "IMG_0001.HEIC", true},
		{"application/octet-stream", "a.heif", true},
		{"image/jpeg", "a.jpg", false},
	}
	for _, tt := range tests {
		if got := IsHEIC(tt.mime, tt.name); got != tt.want {
			t.Errorf("IsHEIC(%q, %q) = %v, want %v", tt.mime, tt.name, got, tt.want)
		}
	}
}

func TestTracker_Monotonic(t *testing.T) {
	var got []int
	tr := NewTracker(func(u ProgressUpdate) { got = append(got, u.Percent) })

	for _, p := range []int{10, 5, 10, 20, 150, 90} {
		tr.Report(StageDecode, p)
	}

	want := []int{10, 20, 100}
	if len(got) != len(want) {
		t.Fatalf("accepted = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("accepted[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if tr.Current() != 100 {
		t.Errorf("Current() = %d, want 100", tr.Current())
	}
}

func TestTracker_ZeroAccepted(t *testing.T) {
	tr := NewTracker(nil)
	if tr.Current() != 0 {
		t.Errorf("Current() = %d, want 0", tr.Current())
	}
	if !tr.Report(StageStart, 0) {
		t.Error("first report of 0 should be accepted")
	}
}

func TestOutputSuffix(t *testing.T) {
	tests := []struct {
		format config.OutputFormat
		opts   EncodeOptions
		want   string
	}{
		{config.FormatWebP, EncodeOptions{Quality: 80, StripMetadata: true}, "[Q=80,strip]"},
		{config.FormatAVIF, EncodeOptions{Quality: 50}, "[Q=50]"},
		{config.FormatPNG, EncodeOptions{Quality: 80, StripMetadata: true}, "[strip]"},
		{config.FormatPNG, EncodeOptions{}, ""},
	}
	for _, tt := range tests {
		if got := OutputSuffix(tt.format, tt.opts); got != tt.want {
			t.Errorf("OutputSuffix(%s, %+v) = %q, want %q", tt.format, tt.opts, got, tt.want)
		}
	}
}

func TestCodec_Supports(t *testing.T) {
	c := NewCodec(nil)
	for _, f := range []config.OutputFormat{config.FormatPNG, config.FormatJPEG} {
		if !c.Supports(f) {
			t.Errorf("Supports(%s) = false, want true", f)
		}
	}
	for _, f := range []config.OutputFormat{config.FormatWebP, config.FormatAVIF} {
		if c.Supports(f) {
			t.Errorf("Supports(%s) without vips = true, want false", f)
		}
	}

	c = NewCodec(&fakeEncoder{formats: map[config.OutputFormat]bool{config.FormatWebP: true}})
	if !c.Supports(config.FormatWebP) {
		t.Error("Supports(webp) with external encoder = false, want true")
	}
}

func TestNativeEncoder_JPEGFlattensTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))

	data, err := NativeEncoder{}.Encode(context.Background(), img, config.FormatJPEG, EncodeOptions{Quality: 90})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	r, g, b, _ := decoded.At(4, 4).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("pixel = (%d,%d,%d), want near white", r>>8, g>>8, b>>8)
	}
}

func TestThumbnail(t *testing.T) {
	data := encodePNG(t, solid(400, 200, color.NRGBA{R: 200, A: 255}))

	thumb, err := ThumbnailFromBytes(data)
	if err != nil {
		t.Fatalf("ThumbnailFromBytes() error = %v", err)
	}

	img, err := Decode(thumb)
	if err != nil {
		t.Fatalf("Decode(thumb) error = %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("thumbnail = %dx%d, want 100x50", img.Bounds().Dx(), img.Bounds().Dy())
	}

	if _, err := ThumbnailFromBytes([]byte("not an image")); !errors.Is(err, ErrDecode) {
		t.Errorf("ThumbnailFromBytes(garbage) error = %v, want ErrDecode", err)
	}
}

func TestMemoryLimiter(t *testing.T) {
	disabled := NewMemoryLimiter(0)
	if disabled.IsEnabled() {
		t.Error("limiter with 0 MB should be disabled")
	}
	release, err := disabled.Acquire(context.Background(), 1<<40)
	if err != nil {
		t.Fatalf("disabled Acquire() error = %v", err)
	}
	release()

	ml := NewMemoryLimiter(1)
	release, err = ml.Acquire(context.Background(), 1<<30)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if ml.Reserved() != 1<<30 {
		t.Errorf("Reserved() = %d, want %d", ml.Reserved(), 1<<30)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ml.Acquire(ctx, 1<<20); !errors.Is(err, context.Canceled) {
		t.Errorf("second Acquire() error = %v, want context.Canceled", err)
	}

	release()
	release()
	if ml.Reserved() != 0 {
		t.Errorf("Reserved() after release = %d, want 0", ml.Reserved())
	}
}

func TestPipeline_Convert(t *testing.T) {
	src := encodePNG(t, solid(40, 20, color.NRGBA{R: 10, G: 120, B: 200, A: 255}))

	s := config.DefaultSettings()
	s.OutputFormat = config.FormatPNG
	s.EnableResize = true
	s.MaxWidth = 20
	s.MaxHeight = 20

	p := NewPipeline(NewCodec(nil), zaptest.NewLogger(t))

	var progress []int
	res, err := p.Convert(context.Background(), Input{Data: src, MimeType: "image/png", Name: "a.png"}, s, func(u ProgressUpdate) {
		progress = append(progress, u.Percent)
	})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if res.Width != 20 || res.Height != 10 {
		t.Errorf("size = %dx%d, want 20x10", res.Width, res.Height)
	}
	if res.OriginalWidth != 40 || res.OriginalHeight != 20 {
		t.Errorf("original = %dx%d, want 40x20", res.OriginalWidth, res.OriginalHeight)
	}
	if res.Format != config.FormatPNG {
		t.Errorf("Format = %s, want png", res.Format)
	}
	if res.Size() == 0 {
		t.Error("Size() = 0")
	}

	want := []int{2, 30, 50, 70, 100}
	assertProgress(t, progress, want)
}

func TestPipeline_FormatFallback(t *testing.T) {
	src := encodePNG(t, solid(4, 4, color.NRGBA{A: 255}))
	s := config.DefaultSettings()
	s.OutputFormat = config.FormatAVIF

	tests := []struct {
		name    string
		encoder Encoder
		want    config.OutputFormat
	}{
		{"no vips", NewCodec(nil), config.FormatPNG},
		{"webp only", NewCodec(&fakeEncoder{formats: map[config.OutputFormat]bool{config.FormatWebP: true}}), config.FormatWebP},
		{"avif available", NewCodec(&fakeEncoder{formats: map[config.OutputFormat]bool{config.FormatAVIF: true}}), config.FormatAVIF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.encoder, zap.NewNop())
			res, err := p.Convert(context.Background(), Input{Data: src, Name: "a.png"}, s, nil)
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			if res.Format != tt.want {
				t.Errorf("Format = %s, want %s", res.Format, tt.want)
			}
		})
	}
}

func TestPipeline_Errors(t *testing.T) {
	png := encodePNG(t, solid(4, 4, color.NRGBA{A: 255}))
	s := config.DefaultSettings()
	s.OutputFormat = config.FormatWebP

	tests := []struct {
		name    string
		in      Input
		encoder Encoder
		wantErr error
	}{
		{"empty source", Input{Name: "a.png"}, NewCodec(nil), ErrDecode},
		{"corrupt source", Input{Data: []byte("garbage"), Name: "a.png"}, NewCodec(nil), ErrDecode},
		{"heic without transcoder", Input{Data: png, Name: "a.heic"}, NewCodec(nil), ErrDecode},
		{"empty output", Input{Data: png, Name: "a.png"}, NewCodec(&fakeEncoder{formats: map[config.OutputFormat]bool{config.FormatWebP: true}, empty: true}), ErrEncode},
		{"encoder error", Input{Data: png, Name: "a.png"}, NewCodec(&fakeEncoder{formats: map[config.OutputFormat]bool{config.FormatWebP: true}, err: errors.New("boom")}), ErrEncode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.encoder, zap.NewNop())

			last := 0
			res, err := p.Convert(context.Background(), tt.in, s, func(u ProgressUpdate) { last = u.Percent })
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Convert() error = %v, want %v", err, tt.wantErr)
			}
			if res != nil {
				t.Error("Convert() result should be nil on error")
			}
			if last == 100 {
				t.Error("progress reached 100 on failure")
			}
		})
	}
}

func TestPipeline_RecoversPanic(t *testing.T) {
	png := encodePNG(t, solid(4, 4, color.NRGBA{A: 255}))
	s := config.DefaultSettings()

	p := NewPipeline(NewCodec(&fakeEncoder{formats: map[config.OutputFormat]bool{config.FormatWebP: true}, panics: true}), zap.NewNop())
	_, err := p.Convert(context.Background(), Input{Data: png, Name: "a.png"}, s, nil)
	if err == nil {
		t.Fatal("Convert() should return error after panic")
	}
}

func TestPipeline_HEIC(t *testing.T) {
	png := encodePNG(t, solid(10, 10, color.NRGBA{G: 255, A: 255}))
	s := config.DefaultSettings()
	s.OutputFormat = config.FormatJPEG

	tc := &fakeTranscoder{out: png}
	p := NewPipeline(NewCodec(nil), zap.NewNop())
	p.SetTranscoder(tc)

	var progress []int
	res, err := p.Convert(context.Background(), Input{Data: []byte("heic bytes"), MimeType: "image/heic", Name: "IMG.HEIC"}, s, func(u ProgressUpdate) {
		progress = append(progress, u.Percent)
	})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if tc.calls != 1 {
		t.Errorf("transcoder calls = %d, want 1", tc.calls)
	}
	if res.Format != config.FormatJPEG {
		t.Errorf("Format = %s, want jpeg", res.Format)
	}
	assertProgress(t, progress, []int{2, 5, 10, 40, 60, 80, 100})
}

func TestPipeline_TranscoderFallbackForUnknownFormat(t *testing.T) {
	png := encodePNG(t, solid(6, 6, color.NRGBA{B: 255, A: 255}))
	s := config.DefaultSettings()
	s.OutputFormat = config.FormatPNG

	tc := &fakeTranscoder{out: png}
	p := NewPipeline(NewCodec(nil), zap.NewNop())
	p.SetTranscoder(tc)

	res, err := p.Convert(context.Background(), Input{Data: []byte("<svg/>"), MimeType: "image/svg+xml", Name: "icon.svg"}, s, nil)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if tc.calls != 1 || res.Width != 6 {
		t.Errorf("calls = %d, width = %d, want 1 and 6", tc.calls, res.Width)
	}
}

func TestPipeline_ColorBackground(t *testing.T) {
	img := solid(20, 20, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 8; y < 12; y++ {
		for x := 8; x < 12; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, A: 255})
		}
	}

	s := config.DefaultSettings()
	s.OutputFormat = config.FormatPNG
	s.RemoveBackground = true
	s.BgRemovalMode = config.BgModeColor
	s.RefineEdges = false

	p := NewPipeline(NewCodec(nil), zap.NewNop())
	p.SetRemover(bgremoval.NewRemover(nil, zap.NewNop()))

	var progress []int
	res, err := p.Convert(context.Background(), Input{Data: encodePNG(t, img), Name: "a.png"}, s, func(u ProgressUpdate) {
		progress = append(progress, u.Percent)
	})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	assertProgress(t, progress, []int{2, 5, 70, 80, 85, 90, 100})

	out, err := Decode(res.Data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, _, _, a := out.At(0, 0).RGBA(); a != 0 {
		t.Errorf("corner alpha = %d, want 0", a)
	}
	if _, _, _, a := out.At(10, 10).RGBA(); a>>8 != 255 {
		t.Errorf("center alpha = %d, want 255", a>>8)
	}
}

func TestPipeline_AIFailureContinues(t *testing.T) {
	s := config.DefaultSettings()
	s.OutputFormat = config.FormatPNG
	s.RemoveBackground = true
	s.BgRemovalMode = config.BgModeAI

	seg := &failingSegmenter{}
	p := NewPipeline(NewCodec(nil), zaptest.NewLogger(t))
	p.SetRemover(bgremoval.NewRemover(seg, zap.NewNop()))

	res, err := p.Convert(context.Background(), Input{Data: encodePNG(t, solid(8, 8, color.NRGBA{R: 9, A: 255})), Name: "a.png"}, s, nil)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !seg.called {
		t.Error("segmenter was not called")
	}

	out, err := Decode(res.Data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, _, _, a := out.At(0, 0).RGBA(); a>>8 != 255 {
		t.Errorf("alpha = %d, want original 255", a>>8)
	}
	if !res.Degraded {
		t.Error("Degraded = false, want true after segmentation failure")
	}
}

func TestPipeline_Variant(t *testing.T) {
	s := config.DefaultSettings()

	p := NewPipeline(NewCodec(nil), zap.NewNop())
	noVips := p.Variant(s)

	p = NewPipeline(NewCodec(&fakeEncoder{formats: map[config.OutputFormat]bool{config.FormatWebP: true}}), zap.NewNop())
	withVips := p.Variant(s)
	if noVips == withVips {
		t.Errorf("Variant() = %q for both encoders, want different", noVips)
	}

	s.RemoveBackground = true
	s.BgRemovalMode = config.BgModeAI
	p.SetRemover(bgremoval.NewRemover(nil, zap.NewNop()))
	skipped := p.Variant(s)
	p.SetRemover(bgremoval.NewRemover(&failingSegmenter{}, zap.NewNop()))
	if ai := p.Variant(s); ai == skipped {
		t.Errorf("Variant() = %q with and without segmenter, want different", ai)
	}
	if skipped != withVips {
		t.Errorf("Variant() with unavailable remover = %q, want %q", skipped, withVips)
	}
}

func TestPipeline_BackgroundUnavailableSkipsStage(t *testing.T) {
	s := config.DefaultSettings()
	s.OutputFormat = config.FormatPNG
	s.RemoveBackground = true
	s.BgRemovalMode = config.BgModeAI

	p := NewPipeline(NewCodec(nil), zap.NewNop())
	p.SetRemover(bgremoval.NewRemover(nil, zap.NewNop()))

	var progress []int
	_, err := p.Convert(context.Background(), Input{Data: encodePNG(t, solid(4, 4, color.NRGBA{A: 255})), Name: "a.png"}, s, func(u ProgressUpdate) {
		progress = append(progress, u.Percent)
	})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	assertProgress(t, progress, []int{2, 30, 50, 70, 100})
}

// --- helpers ---

type fakeEncoder struct {
	formats map[config.OutputFormat]bool
	err     error
	empty   bool
	panics  bool
}

func (f *fakeEncoder) Supports(format config.OutputFormat) bool {
	return f.formats[format]
}

func (f *fakeEncoder) Encode(_ context.Context, _ image.Image, format config.OutputFormat, _ EncodeOptions) ([]byte, error) {
	if f.panics {
		panic("encoder exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	return []byte("encoded-" + string(format)), nil
}

type fakeTranscoder struct {
	out   []byte
	calls int
}

func (f *fakeTranscoder) Transcode(context.Context, []byte, string) ([]byte, error) {
	f.calls++
	return f.out, nil
}

type failingSegmenter struct {
	called bool
}

func (f *failingSegmenter) Segment(_ context.Context, _ image.Image, _ config.QualityTier, onProgress bgremoval.ProgressFunc) (image.Image, error) {
	f.called = true
	onProgress(40)
	return nil, errors.New("model crashed")
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func assertProgress(t *testing.T, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress = %v, want %v", got, want)
			return
		}
	}
}
