package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scopebridge/firmware/errs"
	"github.com/scopebridge/firmware/storage"
)

// fakeBackend is a minimal in-memory storage.Backend double.
type fakeBackend struct {
	kind   storage.Kind
	ready  bool
	files  map[string][]byte
	format int
}

func newFakeBackend(kind storage.Kind, ready bool) *fakeBackend {
	return &fakeBackend{kind: kind, ready: ready, files: map[string][]byte{}}
}

func (f *fakeBackend) Kind() storage.Kind { return f.kind }
func (f *fakeBackend) Update()            {}
func (f *fakeBackend) IsReady() bool      { return f.ready }

func (f *fakeBackend) Write(name string, data []byte) (int, error) {
	if !f.ready {
		return 0, errs.New(errs.NotReady, "not ready")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.files[name] = cp
	return len(data), nil
}

func (f *fakeBackend) Read(name string, dst []byte) (int, error) {
	data, ok := f.files[name]
	if !ok {
		return 0, errs.New(errs.NotFound, name)
	}
	return copy(dst, data), nil
}

func (f *fakeBackend) Exists(name string) bool {
	_, ok := f.files[name]
	return ok
}

func (f *fakeBackend) Size(name string) (int, bool) {
	d, ok := f.files[name]
	return len(d), ok
}

func (f *fakeBackend) List(buf []string) int {
	n := 0
	for name := range f.files {
		if n >= len(buf) {
			break
		}
		buf[n] = name
		n++
	}
	return n
}

func (f *fakeBackend) Delete(name string) error {
	if _, ok := f.files[name]; !ok {
		return errs.New(errs.NotFound, name)
	}
	delete(f.files, name)
	return nil
}

func (f *fakeBackend) Format() error {
	f.format++
	f.files = map[string][]byte{}
	return nil
}

func (f *fakeBackend) Space() (uint64, uint64) { return 1 << 20, 1 << 21 }

func TestAutoPrefersSdThenNorThenHex(t *testing.T) {
	sd := newFakeBackend(storage.Sd, false)
	nor := newFakeBackend(storage.Nor, true)
	hex := newFakeBackend(storage.Hex, true)
	r := storage.NewRouter(sd, nor, hex)

	r.Update()
	require.Equal(t, storage.Auto, r.Selected())

	_, err := r.Write("a.bin", []byte{1, 2, 3})
	require.NoError(t, err)
	require.True(t, nor.Exists("a.bin"))
}

func TestFailoverWhenSelectedBackendGoesNotReady(t *testing.T) {
	sd := newFakeBackend(storage.Sd, true)
	nor := newFakeBackend(storage.Nor, true)
	r := storage.NewRouter(sd, nor, nil)
	r.Update()

	_, err := r.Write("a.bin", []byte{1})
	require.NoError(t, err)
	require.True(t, sd.Exists("a.bin"))

	sd.ready = false
	r.Update()

	_, err = r.Write("b.bin", []byte{2})
	require.NoError(t, err)
	require.True(t, nor.Exists("b.bin"))
}

func TestManualSelectionOverridesAutoUntilNotReady(t *testing.T) {
	sd := newFakeBackend(storage.Sd, true)
	nor := newFakeBackend(storage.Nor, true)
	r := storage.NewRouter(sd, nor, nil)
	r.Update()

	require.True(t, r.Select(storage.Nor))
	require.Equal(t, storage.Nor, r.Selected())

	_, err := r.Write("x", []byte{1})
	require.NoError(t, err)
	require.True(t, nor.Exists("x"))

	nor.ready = false
	r.Update()
	require.Equal(t, storage.Auto, r.Selected())
}

func TestSelectIdempotent(t *testing.T) {
	sd := newFakeBackend(storage.Sd, true)
	r := storage.NewRouter(sd, nil, nil)

	require.True(t, r.Select(storage.Sd))
	state1 := r.Selected()
	require.True(t, r.Select(storage.Sd))
	require.Equal(t, state1, r.Selected())
}

func TestWriteAutoGeneratesIncreasingNames(t *testing.T) {
	sd := newFakeBackend(storage.Sd, true)
	r := storage.NewRouter(sd, nil, nil)
	r.Update()

	name1, _, err := r.WriteAuto("cap", ".bin", []byte{1})
	require.NoError(t, err)
	name2, _, err := r.WriteAuto("cap", ".bin", []byte{2})
	require.NoError(t, err)

	require.Equal(t, "cap_0001.bin", name1)
	require.Equal(t, "cap_0002.bin", name2)
}

func TestNameValidationRejectsReservedCharacters(t *testing.T) {
	sd := newFakeBackend(storage.Sd, true)
	r := storage.NewRouter(sd, nil, nil)
	r.Update()

	_, err := r.Write("bad:name", []byte{1})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidName))
}

func TestCopyBetweenBackends(t *testing.T) {
	sd := newFakeBackend(storage.Sd, true)
	nor := newFakeBackend(storage.Nor, true)
	r := storage.NewRouter(sd, nor, nil)
	r.Update()

	_, err := sd.Write("src.bin", []byte{1, 2, 3, 4})
	require.NoError(t, err)

	require.NoError(t, r.Copy("src.bin", storage.Sd, storage.Nor))
	require.True(t, nor.Exists("src.bin"))
}

func TestCopyRejectsOversizeSource(t *testing.T) {
	sd := newFakeBackend(storage.Sd, true)
	nor := newFakeBackend(storage.Nor, true)
	r := storage.NewRouter(sd, nor, nil)
	r.Update()

	big := make([]byte, storage.TransferBufferSize+1)
	sd.files["huge.bin"] = big

	err := r.Copy("huge.bin", storage.Sd, storage.Nor)
	require.Error(t, err)
}

func TestTestWriteRoundTrips(t *testing.T) {
	sd := newFakeBackend(storage.Sd, true)
	r := storage.NewRouter(sd, nil, nil)
	r.Update()

	require.True(t, r.TestWrite())
	require.False(t, sd.Exists("test.dat"))
}
