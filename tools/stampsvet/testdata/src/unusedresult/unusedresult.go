package unusedresult

import (
	"errors"
	"fmt"
)

func bad() {
	errors.New("stamps storage is corrupt") // want "result of errors.New call not used"
	fmt.Errorf("stamps storage is corrupt") // want "result of fmt.Errorf call not used"
}

func good() {
	err := errors.New("stamps storage is corrupt")
	_ = err

	_ = fmt.Errorf("stamps storage is corrupt")
}
