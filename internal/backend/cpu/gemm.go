package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/bifpn/internal/tensor"
)

// gemm computes c = op(a) @ op(b), overwriting c.
//
// op(a) is m×k and op(b) is k×n. When transA is set, a is stored k×m; when
// transB is set, b is stored n×k. All matrices are dense row-major.
func gemm[T tensor.DType](transA, transB bool, m, n, k int, a, b, c []T) {
	ta, tb := blas.NoTrans, blas.NoTrans
	aRows, aCols := m, k
	if transA {
		ta = blas.Trans
		aRows, aCols = k, m
	}
	bRows, bCols := k, n
	if transB {
		tb = blas.Trans
		bRows, bCols = n, k
	}

	switch a := any(a).(type) {
	case []float32:
		blas32.Gemm(ta, tb, 1,
			blas32.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: a},
			blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: any(b).([]float32)},
			0,
			blas32.General{Rows: m, Cols: n, Stride: n, Data: any(c).([]float32)})
	case []float64:
		blas64.Gemm(ta, tb, 1,
			blas64.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: a},
			blas64.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: any(b).([]float64)},
			0,
			blas64.General{Rows: m, Cols: n, Stride: n, Data: any(c).([]float64)})
	}
}
