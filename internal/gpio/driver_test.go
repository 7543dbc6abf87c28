package gpio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_SimInitializesLow(t *testing.T) {
	d, err := Open(Config{Backend: "sim"}, []int{4, 21, 27})
	require.NoError(t, err)
	defer d.Close()
	for _, p := range []int{4, 21, 27} {
		v, err := d.Get(p)
		require.NoError(t, err)
		require.False(t, v, "pin %d high after open", p)
	}
}

func TestOpen_RejectsDuplicatePins(t *testing.T) {
	_, err := Open(Config{Backend: BackendSim}, []int{4, 4})
	require.ErrorIs(t, err, ErrLineUnavailable)
}

func TestOpen_RejectsNegativePin(t *testing.T) {
	_, err := Open(Config{Backend: BackendSim}, []int{-1})
	require.ErrorIs(t, err, ErrLineUnavailable)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "rpio"}, []int{1})
	require.Error(t, err)
}

func TestOpen_DefaultBackendIsCDev(t *testing.T) {
	var gotConsumer string
	old := openCDevFn
	openCDevFn = func(cfg Config, pins []int) (Driver, error) {
		gotConsumer = cfg.Consumer
		return NewSim(pins), nil
	}
	t.Cleanup(func() { openCDevFn = old })

	d, err := Open(Config{}, []int{5})
	require.NoError(t, err)
	defer d.Close()
	require.Equal(t, "piclyde", gotConsumer)
}

func TestOpen_CDevFailureIsLineUnavailable(t *testing.T) {
	old := openCDevFn
	openCDevFn = func(cfg Config, pins []int) (Driver, error) {
		return nil, ErrLineUnavailable
	}
	t.Cleanup(func() { openCDevFn = old })

	_, err := Open(Config{Backend: BackendGPIOCDev}, []int{5})
	require.ErrorIs(t, err, ErrLineUnavailable)
}
