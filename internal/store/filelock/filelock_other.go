//go:build !unix

package filelock

import "os"

// tryLock on non-Unix platforms falls back to a directory-mkdir mutual
// exclusion primitive (mkdir is atomic on every filesystem Go supports),
// since no Windows-specific locking library exists anywhere in the example
// pack to ground a LockFileEx backend on.
func tryLock(f *os.File) (bool, error) {
	dir := f.Name() + ".d"
	err := os.Mkdir(dir, 0o755)
	if err == nil {
		return true, nil
	}
	if os.IsExist(err) {
		return false, nil
	}
	return false, err
}

func unlock(f *os.File) {
	_ = os.Remove(f.Name() + ".d")
}
