package dtw_test

import (
	"testing"

	"github.com/teslashibe/go-handscore/internal/dtw"
)

func benchmarkDistance(b *testing.B, n, dim int, opts dtw.Options) {
	x := make([][]float64, n)
	y := make([][]float64, n)
	for i := range x {
		x[i] = make([]float64, dim)
		y[i] = make([]float64, dim)
		for k := 0; k < dim; k++ {
			x[i][k] = float64(i + k)
			y[i][k] = float64(i*2 - k)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := dtw.Distance(x, y, &opts); err != nil {
			b.Fatalf("Distance failed: %v", err)
		}
	}
}

func BenchmarkDistance_TwoRows90(b *testing.B) {
	benchmarkDistance(b, 90, 5, dtw.Options{MemoryMode: dtw.TwoRows})
}

func BenchmarkDistance_FullMatrix90(b *testing.B) {
	benchmarkDistance(b, 90, 5, dtw.Options{MemoryMode: dtw.FullMatrix})
}

func BenchmarkDistance_Band10(b *testing.B) {
	benchmarkDistance(b, 90, 5, dtw.Options{Window: 10})
}
