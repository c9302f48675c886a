package dimer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestParseBetaKind(t *testing.T) {
	for in, want := range map[string]BetaKind{"pr": BetaPolakRibiere, "FR": BetaFletcherReeves, " hs ": BetaHestenesStiefel, "dy": BetaDaiYuan} {
		got, err := ParseBetaKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseBetaKind("bfgs")
	assert.Error(t, err)
}

func TestParseRestartMethod(t *testing.T) {
	got, err := ParseRestartMethod("Powell")
	require.NoError(t, err)
	assert.Equal(t, RestartPowell, got)
	got, err = ParseRestartMethod("negative")
	require.NoError(t, err)
	assert.Equal(t, RestartNegative, got)
	_, err = ParseRestartMethod("never")
	assert.Error(t, err)
}

func TestPropagateFirstCallIsSteepestDescent(t *testing.T) {
	cg := NewConjugateGradient(BetaPolakRibiere, RestartPowell, 0.8)
	axis := []float64{0, 0, 1}
	d := cg.Propagate([]float64{3, 4, 5}, axis)
	assert.InDeltaSlice(t, []float64{0.6, 0.8, 0}, d, 1e-12)
	require.NotNil(t, cg.prev)
	assert.Equal(t, []float64{3, 4, 0}, cg.prev.forces)
}

func TestPropagatePowellRestart(t *testing.T) {
	cg := NewConjugateGradient(BetaPolakRibiere, RestartPowell, 0.8)
	axis := []float64{0, 0, 1}
	cg.Propagate([]float64{1, 0, 0}, axis)

	// |f|^2 / f.f_prev = 2 >= 0.2
	d := cg.Propagate([]float64{1, 1, 0}, axis)
	assert.InDeltaSlice(t, normalize([]float64{1, 1, 0}), d, 1e-12)
}

func TestPropagateBetaFormulas(t *testing.T) {
	fPrev := []float64{10, 0, 0}
	f := []float64{1, 0.1, 0}
	// f.f_prev = 10, |f|^2 = 1.01, |f_prev|^2 = 100, y = f - f_prev,
	// d_prev . y = -90
	cases := []struct {
		beta    BetaKind
		restart RestartMethod
		want    float64
	}{
		{BetaPolakRibiere, RestartPowell, -8.99 / 100},
		{BetaFletcherReeves, RestartPowell, 1.01 / 100},
		{BetaHestenesStiefel, RestartPowell, 8.99 / -90},
		{BetaDaiYuan, RestartPowell, 1.01 / -90},
		{BetaPolakRibiere, RestartNegative, 0},
		{BetaFletcherReeves, RestartNegative, 1.01 / 100},
	}
	for _, tc := range cases {
		t.Run(string(tc.beta)+"/"+string(tc.restart), func(t *testing.T) {
			cg := NewConjugateGradient(tc.beta, tc.restart, 0.8)
			axis := []float64{0, 0, 1}
			cg.Propagate(fPrev, axis)
			d := cg.Propagate(f, axis)

			raw := addScaled(f, 0.8*tc.want, fPrev)
			assert.InDeltaSlice(t, normalize(raw), d, 1e-12)
			assert.InDelta(t, 1, floats.Norm(d, 2), 1e-12)
			assert.InDeltaSlice(t, raw, cg.prev.direction, 1e-12)
		})
	}
}

func TestPropagateZeroDenominator(t *testing.T) {
	cg := NewConjugateGradient(BetaFletcherReeves, RestartNegative, 0.8)
	axis := []float64{0, 1}
	cg.Propagate([]float64{0, 0}, axis)
	d := cg.Propagate([]float64{2, 0}, axis)
	assert.Equal(t, []float64{1, 0}, d)
}

func TestPropagateStaysPerpendicular(t *testing.T) {
	cg := NewConjugateGradient(BetaHestenesStiefel, RestartPowell, 1)
	axis := normalize([]float64{1, 1, 1})
	forces := [][]float64{{1, -2, 0.5}, {0.3, 0.1, -0.9}, {2, 2, -1}}
	for _, f := range forces {
		d := cg.Propagate(f, axis)
		assert.InDelta(t, 0, floats.Dot(d, axis), 1e-12)
	}
}

func TestReset(t *testing.T) {
	cg := NewConjugateGradient(BetaPolakRibiere, RestartPowell, 0.8)
	cg.Propagate([]float64{1, 0}, []float64{0, 1})
	cg.Reset()
	assert.Nil(t, cg.prev)
}

func TestPropagateIgnoresForceScale(t *testing.T) {
	axis := []float64{0, 0, 1}
	forces := [][]float64{{1, 0.2, 0.3}, {0.4, 0.5, -0.1}, {-0.3, 0.6, 0.2}}
	for _, beta := range []BetaKind{BetaPolakRibiere, BetaFletcherReeves, BetaHestenesStiefel, BetaDaiYuan} {
		t.Run(string(beta), func(t *testing.T) {
			unit := NewConjugateGradient(beta, RestartNegative, 0.8)
			scaled := NewConjugateGradient(beta, RestartNegative, 0.8)
			for _, f := range forces {
				big := clone(f)
				floats.Scale(100, big)
				assert.InDeltaSlice(t, unit.Propagate(f, axis), scaled.Propagate(big, axis), 1e-12)
			}
		})
	}
}

func TestPropagateNamesAreCaseInsensitive(t *testing.T) {
	axis := []float64{0, 0, 1}
	forces := [][]float64{{1, 0.2, 0}, {0.4, 0.5, 0}, {-0.3, 0.6, 0}}

	mixed := NewConjugateGradient("FR", "Negative", 0.8)
	lower := NewConjugateGradient(BetaFletcherReeves, RestartNegative, 0.8)
	assert.Equal(t, BetaFletcherReeves, mixed.Beta)
	assert.Equal(t, RestartNegative, mixed.Restart)
	for _, f := range forces {
		assert.Equal(t, lower.Propagate(f, axis), mixed.Propagate(f, axis))
	}
}

func TestBetaKindUnmarshalText(t *testing.T) {
	var k BetaKind
	require.NoError(t, k.UnmarshalText([]byte("DY")))
	assert.Equal(t, BetaDaiYuan, k)
	assert.Error(t, k.UnmarshalText([]byte("bfgs")))

	var m RestartMethod
	require.NoError(t, m.UnmarshalText([]byte("Negative")))
	assert.Equal(t, RestartNegative, m)
	assert.Error(t, m.UnmarshalText([]byte("never")))
}
