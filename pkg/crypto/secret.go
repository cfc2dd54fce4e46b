package crypto

import "runtime"

// Erase overwrites b with zeros. Owners of key material call it through
// defer so that it also runs on early-return error paths.
func Erase(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// EraseAll erases every slice in bs.
func EraseAll(bs ...[]byte) {
	for _, b := range bs {
		Erase(b)
	}
}
