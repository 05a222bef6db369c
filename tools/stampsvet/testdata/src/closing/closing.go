package closing

import "os"

func openLog(path string) {
	os.Open(path) // want "unchecked error"
}

func openLogIgnored(path string) {
	_, _ = os.Open(path) // OK - explicitly ignored
}

func openLogChecked(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	_ = f
	return nil
}
