package sim

import "fmt"

// File is an open file on a disk. The kernel only counts bytes: reads and
// writes cost time on the disk, contents are not simulated.
type File struct {
	id     int
	disk   string
	path   string
	size   float64
	closed bool
}

func (f *File) Disk() string  { return f.disk }
func (f *File) Path() string  { return f.path }
func (f *File) Size() float64 { return f.size }

func (f *File) String() string {
	return fmt.Sprintf("File: (ID: %d, Disk: %s, Path: %s, Size: %g)", f.id, f.disk, f.path, f.size)
}

func (k *Kernel) ioOpen(req *Request, args IOOpenArgs) error {
	if k.storage == nil || !k.storage.HasDisk(args.Disk) {
		return k.usage(req, "unknown disk %q", args.Disk)
	}
	k.nextFile++
	k.answer(req, OutcomeSuccess, &File{id: k.nextFile, disk: args.Disk, path: args.Path})
	return nil
}

func (k *Kernel) ioTransfer(req *Request, args IOArgs) error {
	f := args.File
	if f == nil || f.closed {
		return k.usage(req, "file is not open")
	}
	var (
		a   *Action
		err error
	)
	if args.Write {
		a, err = k.storage.Write(k.now, f.disk, args.Size)
	} else {
		a, err = k.storage.Read(k.now, f.disk, args.Size)
	}
	if err != nil {
		return k.usage(req, "%v", err)
	}
	k.track(req, a)
	return nil
}

func (k *Kernel) ioClose(req *Request, args IOCloseArgs) error {
	f := args.File
	if f == nil || f.closed {
		return k.usage(req, "file is not open")
	}
	f.closed = true
	k.answer(req, OutcomeSuccess, nil)
	return nil
}
