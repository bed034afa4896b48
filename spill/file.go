package spill

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
	"github.com/riverdb/riverdb"
)

// File provides a means to write a sequence of documents to temporary
// storage then read them back.  This is used for processing result sets that
// do not fit in memory but can be processed in multiple passes.  Documents
// are framed as newline-delimited JSON inside an lz4 stream.
type File struct {
	file *os.File
	bw   *bufio.Writer
	zw   *lz4.Writer
	enc  *json.Encoder
	dec  *json.Decoder
}

// NewFile returns a File.  Documents should be written via Write, followed
// by a call to the Rewind method, followed by reading documents via Read.
func NewFile(f *os.File) *File {
	bw := bufio.NewWriter(f)
	zw := lz4.NewWriter(bw)
	return &File{
		file: f,
		bw:   bw,
		zw:   zw,
		enc:  json.NewEncoder(zw),
	}
}

func NewTempFile() (*File, error) {
	f, err := os.CreateTemp("", "riverdb-spill-*")
	if err != nil {
		return nil, err
	}
	return NewFile(f), nil
}

func NewFileWithPath(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	return NewFile(f), nil
}

func (f *File) Write(doc riverdb.Value) error {
	if f.enc == nil {
		return errors.New("spill file already rewound")
	}
	return f.enc.Encode(doc)
}

// Rewind flushes pending output and repositions the file for reading.
func (f *File) Rewind() error {
	if err := f.zw.Close(); err != nil {
		return err
	}
	if err := f.bw.Flush(); err != nil {
		return err
	}
	f.zw = nil
	f.enc = nil
	if _, err := f.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	f.dec = json.NewDecoder(lz4.NewReader(bufio.NewReader(f.file)))
	return nil
}

// Read returns the next document or nil at end of file.
func (f *File) Read() (*riverdb.Value, error) {
	var doc riverdb.Value
	if err := f.dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// CloseAndRemove closes and removes the underlying file.
func (f *File) CloseAndRemove() error {
	err := f.file.Close()
	if rmErr := os.Remove(f.file.Name()); err == nil {
		err = rmErr
	}
	return err
}

func (f *File) Size() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
