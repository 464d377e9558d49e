package extract

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// stage writes data to a uniquely named temporary file, hands its path to
// parse and removes the file afterwards, whether parse returns or panics.
func (e *Extractor) stage(data []byte, suffix string, parse func(path string) error) (err error) {
	f, err := os.CreateTemp(e.tempDir, "extract-"+uuid.NewString()+"-*"+suffix)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Errorf("remove staging file %s: %s", path, rmErr)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}

	defer func() {
		if obj := recover(); obj != nil {
			err = fmt.Errorf("parser panicked: %v", obj)
		}
	}()
	return parse(path)
}
