//go:build !unix

package receiptlog

import "os"

// Only the in-process mutex guards appends on this platform.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
