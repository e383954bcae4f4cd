package loader

import (
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// decodeCSV opens dataDir/filename and unmarshals it into out (a pointer
// to a slice of structs tagged with `csv:"column_name"`), the gocsv
// equivalent of the teacher's struct-tag based JSON decoding.
func decodeCSV(dataDir, filename string, out any) error {
	f, err := os.Open(filepath.Join(dataDir, filename))
	if err != nil {
		return err
	}
	defer f.Close()

	return gocsv.UnmarshalFile(f, out)
}
