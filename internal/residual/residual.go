// Package residual measures how far a reconstructed channel is from its original: SNR plus the averaged
// magnitude spectrum of the difference.
package residual

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// MaxSNRDb is reported when the residual is exactly zero.
const MaxSNRDb = 200.0

const floorDb = -120.0

type Options struct {
	FFTSize    int // default 4096
	WindowsMax int // max windows to analyze; 0 = all (default 100)
}

func DefaultOptions() Options {
	return Options{
		FFTSize:    4096,
		WindowsMax: 100,
	}
}

// Analyzer accumulates one channel's residual across calls.
type Analyzer struct {
	sampleRate int
	opts       Options

	window  []float64
	fft     *fourier.FFT
	fftIn   []float64
	coeffs  []complex128
	ring    []float64
	diff    []float64
	pos     int
	filled  int
	total   uint64
	windows int
	magSum  []float64

	signal float64
	noise  float64
}

func New(sampleRate int, opts Options) *Analyzer {
	if opts.FFTSize == 0 {
		opts.FFTSize = DefaultOptions().FFTSize
	}

	return &Analyzer{
		sampleRate: sampleRate,
		opts:       opts,
		window:     makeHannWindow(opts.FFTSize),
		fft:        fourier.NewFFT(opts.FFTSize),
		fftIn:      make([]float64, opts.FFTSize),
		ring:       make([]float64, opts.FFTSize),
		magSum:     make([]float64, opts.FFTSize/2+1),
	}
}

// Process adds one block. orig and recon must have the same length.
func (a *Analyzer) Process(orig, recon []float64) {
	if cap(a.diff) < len(orig) {
		a.diff = make([]float64, len(orig))
	}

	diff := a.diff[:len(orig)]
	floats.SubTo(diff, orig, recon)

	a.signal += floats.Dot(orig, orig)
	a.noise += floats.Dot(diff, diff)

	size := len(a.ring)
	hop := uint64(size / 2) //nolint:gosec // fft sizes are positive

	for _, d := range diff {
		a.ring[a.pos] = d
		a.pos = (a.pos + 1) % size
		a.filled = min(a.filled+1, size)
		a.total++

		if a.filled == size && a.total%hop == 0 {
			if a.opts.WindowsMax > 0 && a.windows >= a.opts.WindowsMax {
				continue
			}

			a.processWindow()
		}
	}
}

func (a *Analyzer) processWindow() {
	n := len(a.fftIn)
	for i := range n {
		a.fftIn[i] = a.ring[(a.pos+i)%n] * a.window[i]
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.fftIn)
	for i, c := range a.coeffs {
		a.magSum[i] += math.Hypot(real(c), imag(c))
	}

	a.windows++
}

// SNR is the signal to residual energy ratio over everything processed, in dB.
func (a *Analyzer) SNR() float64 {
	if a.noise == 0 {
		return MaxSNRDb
	}

	if a.signal == 0 {
		return -MaxSNRDb
	}

	return min(10*math.Log10(a.signal/a.noise), MaxSNRDb)
}

// Spectrum returns the averaged residual magnitude per bin, in dB. It is nil until one full window was seen.
func (a *Analyzer) Spectrum() []float64 {
	if a.windows == 0 {
		return nil
	}

	db := make([]float64, len(a.magSum))
	for i, m := range a.magSum {
		if avg := m / float64(a.windows); avg > 0 {
			db[i] = 20 * math.Log10(avg)
		} else {
			db[i] = floorDb
		}
	}

	return db
}

func (a *Analyzer) binHz() float64 {
	return float64(a.sampleRate) / float64(len(a.ring))
}

// PeakHz is the frequency of the strongest residual component, 0 when no window was analyzed or the residual is silent.
func (a *Analyzer) PeakHz() float64 {
	if a.windows == 0 || a.noise == 0 {
		return 0
	}

	// DC is skipped.
	return float64(floats.MaxIdx(a.magSum[1:])+1) * a.binHz()
}

// BandDb is the average residual level between startHz and endHz.
func (a *Analyzer) BandDb(startHz, endHz float64) float64 {
	spectrum := a.Spectrum()
	if spectrum == nil {
		return floorDb
	}

	binHz := a.binHz()
	startBin := max(int(startHz/binHz), 0)
	endBin := min(int(endHz/binHz), len(spectrum)-1)

	if startBin > endBin {
		return floorDb
	}

	return floats.Sum(spectrum[startBin:endBin+1]) / float64(endBin-startBin+1)
}

func makeHannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}

	return window
}
