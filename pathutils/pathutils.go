package pathutils

import (
	"os"
	"path/filepath"
	"strings"
)

// Sep is the path separator.
const Sep = string(os.PathSeparator)

var gRoot string

// GetRoot returns the camxfer root. It will use $CAMXFER_DATA and fall back
// to the absolute directory of the executable, or to "/camxfer" if that
// directory cannot be resolved.
func GetRoot() string {
	if gRoot == "" {
		gRoot = os.Getenv("CAMXFER_DATA")
		if gRoot == "" {
			var err error
			gRoot, err = filepath.Abs(filepath.Dir(os.Args[0]))
			if err != nil {
				gRoot = Sep + "camxfer"
			}
		}
	}
	return gRoot
}

// Join combines N path elements via the Sep string.
func Join(params ...string) string {
	return strings.Join(params, Sep)
}
