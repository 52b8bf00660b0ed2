// Package region implements MmapRegion: a named, fixed-size byte region
// shared by every process that opens the same name, backed by a tmpfs
// file and mapped with golang.org/x/sys/unix.
package region

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm/"

// Region is a memory-mapped, process-shared byte region.
type Region struct {
	file  *os.File
	data  []byte
	owner bool
}

func path(name string) string {
	return shmDir + name
}

// OpenOrCreate races no other process for the name: it first attempts an
// exclusive create, and falls back to opening the existing region if one
// already won the race. The size argument is only used when this call
// creates the region; an opened region adopts whatever size it already has.
func OpenOrCreate(name string, size int) (*Region, error) {
	p := path(name)

	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err == nil {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			os.Remove(p)
			return nil, fmt.Errorf("region: truncate %s: %w", p, err)
		}
		data, err := mmap(f, size)
		if err != nil {
			f.Close()
			os.Remove(p)
			return nil, err
		}
		return &Region{file: f, data: data, owner: true}, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("region: create %s: %w", p, err)
	}

	return Open(name)
}

// Open maps an existing named region, adopting its on-disk size.
func Open(name string) (*Region, error) {
	p := path(name)
	f, err := os.OpenFile(p, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("region: open %s: %w", p, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("region: stat %s: %w", p, err)
	}
	data, err := mmap(f, int(fi.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Region{file: f, data: data, owner: false}, nil
}

func mmap(f *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("region: mmap: %w", err)
	}
	return data, nil
}

// Data returns the mapped bytes. Valid until Close.
func (r *Region) Data() []byte { return r.data }

// Owner reports whether this process created the region.
func (r *Region) Owner() bool { return r.owner }

// Name returns the path this region is backed by.
func (r *Region) Name() string { return r.file.Name() }

// Flush asks the kernel to write dirty pages back; best-effort, since
// tmpfs-backed regions have no durable backing store.
func (r *Region) Flush() error {
	return unix.Msync(r.data, unix.MS_ASYNC)
}

// Close unmaps the region and closes the backing file descriptor. If this
// process is the owner, it also unlinks the shared-object name; any other
// process that still has it mapped keeps its existing mapping, matching
// host-managed shared-memory teardown semantics.
func (r *Region) Close() error {
	name := r.file.Name()
	err := unix.Munmap(r.data)
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	if r.owner {
		os.Remove(name)
	}
	return err
}
