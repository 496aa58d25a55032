package sdcard

import (
	"io"
	"os"

	"tinygo.org/x/tinyfs"

	"github.com/scopebridge/firmware/errs"
)

// TinyFSVolume adapts a tinygo.org/x/tinyfs filesystem (mounted by the
// caller over tinyfs/fat and a block-device-shaped SD/SPI driver) to the
// narrower, root-directory-only Volume this backend needs.
type TinyFSVolume struct {
	FS tinyfs.Filesystem
}

func (v *TinyFSVolume) Mount() error   { return v.FS.Mount() }
func (v *TinyFSVolume) Unmount() error { return v.FS.Unmount() }

func (v *TinyFSVolume) WriteFile(name string, data []byte) (int, error) {
	f, err := v.FS.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return 0, errs.New(errs.IoError, "sd: open for write: "+err.Error())
	}
	defer f.Close()

	n, err := f.Write(data)
	if err != nil {
		return n, errs.New(errs.IoError, "sd: write: "+err.Error())
	}
	return n, nil
}

func (v *TinyFSVolume) ReadFile(name string, dst []byte) (int, error) {
	f, err := v.FS.OpenFile(name, os.O_RDONLY)
	if err != nil {
		return 0, errs.New(errs.NotFound, "sd: "+name)
	}
	defer f.Close()

	n, err := f.Read(dst)
	if err != nil && err != io.EOF {
		return n, errs.New(errs.IoError, "sd: read: "+err.Error())
	}
	return n, nil
}

func (v *TinyFSVolume) Remove(name string) error {
	if err := v.FS.Remove(name); err != nil {
		return errs.New(errs.NotFound, "sd: "+name)
	}
	return nil
}

func (v *TinyFSVolume) Stat(name string) (int, bool) {
	info, err := v.FS.Stat(name)
	if err != nil {
		return 0, false
	}
	return int(info.Size()), true
}

func (v *TinyFSVolume) List() []string {
	entries, err := v.FS.ReadDir("/")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names
}

// FreeSpace is not exposed by tinyfs's Filesystem interface; the caller
// must track card capacity out of band (e.g. from the CSD register read
// during card initialization), which this adapter has no access to.
func (v *TinyFSVolume) FreeSpace() (available, total uint64) { return 0, 0 }
