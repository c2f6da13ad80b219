package fileutil

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

// LockExt is the file extension added to file names as contents are written.
const LockExt = ".lck"

// BlockSize is the number of bytes read into memory.
const BlockSize = 8192

// FindLine searches the given file for the provided byte array and returns
// that line if found.
func FindLine(path string, b []byte) string {
	fh, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer fh.Close()
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		fb := scanner.Bytes()
		if bytes.Contains(fb, b) {
			return string(fb)
		}
	}
	return ""
}

// WriteJSON writes the input data in JSON format to the specified path.
func WriteJSON(path string, data interface{}) (err error) {
	var jsonBytes []byte
	if jsonBytes, err = json.Marshal(data); err != nil {
		return
	}
	if err = ioutil.WriteFile(path+LockExt, jsonBytes, 0644); err != nil {
		return
	}
	err = os.Rename(path+LockExt, path)
	return
}

// LoadJSON reads the file at specified path and decodes the JSON into the
// specified struct.  The input data struct should be a pointer.
func LoadJSON(path string, data interface{}) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	fromJSON := json.NewDecoder(fh)
	err = fromJSON.Decode(data)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

// StringMD5 computes the MD5 hash from an array of bytes.
func StringMD5(data string) string {
	h := md5.New()
	h.Write([]byte(data))
	return HashHex(h)
}

// HashHex calls Sum(nil) on the input hash and formats the result in
// hexadecimal.
func HashHex(h hash.Hash) string {
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Copy copies a file byte by byte from the src path to the dst path.
func Copy(src, dst string) error {
	fpSrc, err := os.Open(src)
	if err != nil {
		return err
	}
	defer fpSrc.Close()
	fpDst, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer fpDst.Close()
	_, err = io.Copy(fpDst, fpSrc)
	if err != nil {
		return err
	}
	return nil
}

// Move moves a file from one path to another.  It attempts to do a rename and,
// if that fails, will instead do a copy followed by a deletion of the
// original.  If the destination file already exists it will be overwritten.
func Move(src, dst string) error {
	var err error
	if err = os.Rename(src, dst+LockExt); err != nil {
		if err = Copy(src, dst+LockExt); err != nil {
			return err
		}
		if err = os.Remove(src); err != nil {
			return err
		}
	}
	if err = os.Rename(dst+LockExt, dst); err != nil {
		return err
	}
	return nil
}

// IsSafeRelPath reports whether name is safe to join onto a base output
// directory: no NUL bytes, no ".." segments, and no leading path separator
// or absolute prefix, so a malicious sender can never escape it.
func IsSafeRelPath(name string) bool {
	if name == "" || strings.Contains(name, "\x00") {
		return false
	}
	if filepath.IsAbs(name) {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(name))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return false
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
