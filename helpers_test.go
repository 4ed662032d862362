package ncfs

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/fuse-netcdf/ncfs/netcdf"
	"github.com/fuse-netcdf/ncfs/netcdf/netcdftest"
)

// sampleFixture has the two-dimensional temp variable of the README
// example plus a 3-d cube and a scalar.
func sampleFixture() netcdftest.Fixture {
	cube := make([]int32, 4*2*3)
	for i := range cube {
		cube[i] = int32(i*1000 - 7)
	}
	return netcdftest.Fixture{
		Dims:    []string{"time", "lat", "lev"},
		Lengths: []int{4, 2, 3},
		Attrs: []netcdftest.Attr{
			{Name: "title", Value: "sample"},
			{Name: "version", Value: []int32{3}},
		},
		Vars: []netcdftest.Var{
			{
				Name: "temp",
				Dims: []string{"time", "lat"},
				Data: []float32{0, 1, 10, 11, 20, 21, 30, 31},
				Attrs: []netcdftest.Attr{
					{Name: "units", Value: "K"},
					{Name: "valid_range", Value: []float32{0, 400}},
				},
			},
			{
				Name: "lat",
				Dims: []string{"lat"},
				Data: []float64{-45.5, 45.5},
			},
			{
				Name: "cube",
				Dims: []string{"time", "lat", "lev"},
				Data: cube,
			},
			{
				Name: "flags",
				Dims: []string{"time"},
				Data: []int16{1, -2, 300, -32768},
			},
		},
	}
}

// openSample opens sampleFixture as a real netCDF file.
func openSample(t *testing.T) *netcdf.File {
	t.Helper()
	f, err := netcdf.Open(netcdftest.Write(t, sampleFixture()))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// testOptions returns default options with a silent logger.
func testOptions(t *testing.T) *MountOptions {
	opts := DefaultMountOptions(t.TempDir())
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	opts.Logger = log
	return opts
}

// fakeSource is an in-memory DataFile. Its data map holds each
// variable's elements in row-major order.
type fakeSource struct {
	dims  []netcdf.Dimension
	vars  []*netcdf.Variable
	attrs []netcdf.Attribute
	data  map[string]interface{}
	err   error

	closed atomic.Bool
}

func (s *fakeSource) Path() string                   { return "fake.nc" }
func (s *fakeSource) Size() int64                    { return 0 }
func (s *fakeSource) Dimensions() []netcdf.Dimension { return s.dims }
func (s *fakeSource) Variables() []*netcdf.Variable  { return s.vars }
func (s *fakeSource) Attributes() []netcdf.Attribute { return s.attrs }
func (s *fakeSource) Close() error                   { s.closed.Store(true); return nil }

func (s *fakeSource) ReadSlab(ctx context.Context, v *netcdf.Variable, begin, end []int) (interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	flat := reflect.ValueOf(s.data[v.Name])
	out := reflect.MakeSlice(flat.Type(), 0, 0)
	if len(begin) == 0 {
		return reflect.Append(out, flat.Index(0)).Interface(), nil
	}

	idx := append([]int(nil), begin...)
	for {
		off := 0
		for d := range idx {
			off = off*v.Shape[d] + idx[d]
		}
		out = reflect.Append(out, flat.Index(off))

		// Odometer increment, innermost first
		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < end[d] {
				break
			}
			idx[d] = begin[d]
		}
		if d < 0 {
			return out.Interface(), nil
		}
	}
}

// blockingSource holds every data read until release is closed.
type blockingSource struct {
	DataFile
	started  chan struct{}
	release  chan struct{}
	inFlight atomic.Int32
	// closedDuringRead is set if Close ran while a read was in flight
	closedDuringRead atomic.Bool
	closeOnce        sync.Once
}

func newBlockingSource(src DataFile) *blockingSource {
	return &blockingSource{
		DataFile: src,
		started:  make(chan struct{}, 64),
		release:  make(chan struct{}),
	}
}

func (s *blockingSource) ReadSlab(ctx context.Context, v *netcdf.Variable, begin, end []int) (interface{}, error) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	s.started <- struct{}{}
	<-s.release
	return s.DataFile.ReadSlab(ctx, v, begin, end)
}

func (s *blockingSource) Close() error {
	if s.inFlight.Load() != 0 {
		s.closedDuringRead.Store(true)
	}
	var err error
	s.closeOnce.Do(func() { err = s.DataFile.Close() })
	return err
}

// readAll reads the whole content of n through the mapper.
func readAll(t *testing.T, m *Mapper, n *Node) []byte {
	t.Helper()
	buf := make([]byte, n.Size+16)
	count, err := m.ReadAt(context.Background(), n, buf, 0)
	require.NoError(t, err)
	return buf[:count]
}
