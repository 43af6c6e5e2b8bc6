package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("BARANGAYLINK_TEST_MODE") == "" {
			_ = os.Setenv("BARANGAYLINK_TEST_MODE", "1")
		}
	})
}
